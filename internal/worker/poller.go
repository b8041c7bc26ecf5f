// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package worker runs the extraction plane: it claims queued jobs, resolves
// their dataset, drives the registered runner, and feeds emitted records
// through ingestion. Workers share no state; any number may poll the same
// backlog because the claim is atomic at the storage layer.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/item"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/observability/logger"
	"github.com/harvestd/harvestd/internal/runner"
)

// Config holds poller configuration
type Config struct {
	PollerID      string
	PollInterval  time.Duration
	RunnerTimeout time.Duration
}

// Poller is one claim-and-execute loop.
type Poller struct {
	cfg      Config
	jobs     *job.Service
	datasets *dataset.Service
	items    *item.Service
	registry *runner.Registry

	// wake shortens idle latency when a queue consumer is attached; nil
	// means pure interval polling.
	wake <-chan struct{}
	log  *slog.Logger
}

// NewPoller creates a poller. wake may be nil.
func NewPoller(cfg Config, jobs *job.Service, datasets *dataset.Service, items *item.Service, registry *runner.Registry, wake <-chan struct{}, log *slog.Logger) *Poller {
	return &Poller{
		cfg:      cfg,
		jobs:     jobs,
		datasets: datasets,
		items:    items,
		registry: registry,
		wake:     wake,
		log:      log,
	}
}

// Run polls until the context is canceled. Each wake-up or tick drains the
// backlog completely before sleeping again.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("worker poller started",
		logger.PollerID(p.cfg.PollerID),
		logger.String("poll_interval", p.cfg.PollInterval.String()),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("worker poller stopping", logger.PollerID(p.cfg.PollerID))
			return ctx.Err()
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// drain claims and executes jobs until the backlog is empty.
func (p *Poller) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		j, err := p.jobs.Claim(ctx, p.cfg.PollerID)
		if errors.Is(err, job.ErrNoWork) {
			return
		}
		if err != nil {
			p.log.Error("claim failed", logger.PollerID(p.cfg.PollerID), logger.Error(err))
			return
		}

		p.Execute(ctx, j)
	}
}

// Execute runs one claimed job to a terminal state. It never returns an
// error: every failure path is recorded on the job itself.
func (p *Poller) Execute(ctx context.Context, j *job.Job) {
	jobsClaimed.Inc()
	start := time.Now()

	outcome := p.execute(ctx, j)

	jobsFinished.WithLabelValues(outcome).Inc()
	jobDuration.Observe(time.Since(start).Seconds())
	p.log.Info("job finished",
		logger.JobID(j.ID),
		logger.DatasetID(j.DatasetID),
		logger.String("outcome", outcome),
		logger.Duration(time.Since(start).Milliseconds()),
	)
}

func (p *Poller) execute(ctx context.Context, j *job.Job) (outcome string) {
	d, err := p.datasets.Resolve(ctx, j.DatasetID)
	if err != nil {
		p.fail(ctx, j, "dataset is gone: "+err.Error())
		return "failed"
	}

	r, err := p.registry.Lookup(d.Extractor)
	if err != nil {
		p.fail(ctx, j, err.Error())
		return "failed"
	}

	runCtx := ctx
	if p.cfg.RunnerTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunnerTimeout)
		defer cancel()
	}

	counts := map[item.IngestResult]int{}
	emit := func(rec item.RawRecord) error {
		res, err := p.items.Ingest(runCtx, d, rec)
		if err != nil {
			return err
		}
		counts[res]++
		itemsIngested.WithLabelValues(string(res)).Inc()
		return nil
	}

	quick := j.Mode() == job.ModeQuickCheck
	opts := runner.Options{
		QuickCheck: quick,
		Progress: func(ctx context.Context, percent int, stats runner.Stats) {
			if err := p.jobs.ReportProgress(ctx, j.ID, percent, stats); err != nil {
				p.log.Warn("progress report dropped", logger.JobID(j.ID), logger.Error(err))
			}
		},
		Canceled: func(ctx context.Context) bool {
			st, err := p.jobs.StatusOf(ctx, j.ID)
			return err == nil && st == job.StatusCanceled
		},
	}

	runStats, runErr := r.Run(runCtx, d, opts, emit)

	// A cancellation observed mid-run leaves the job CANCELED already;
	// items ingested before the checkpoint are retained.
	if st, err := p.jobs.StatusOf(ctx, j.ID); err == nil && st == job.StatusCanceled {
		return "canceled"
	}

	if runErr != nil {
		p.fail(ctx, j, runErr.Error())
		return "failed"
	}

	final := runner.Stats{}
	for k, v := range runStats {
		final[k] = v
	}
	final["items_created"] = counts[item.ResultCreated]
	final["items_updated"] = counts[item.ResultUpdated]
	final["items_unchanged"] = counts[item.ResultUnchanged]
	if quick {
		final[job.StatsNewItemsKey] = counts[item.ResultCreated] > 0
	}

	if err := p.jobs.Succeed(ctx, j.ID, final); err != nil {
		p.log.Error("failed to mark job succeeded", logger.JobID(j.ID), logger.Error(err))
		return "failed"
	}
	return "succeeded"
}

func (p *Poller) fail(ctx context.Context, j *job.Job, message string) {
	if err := p.jobs.Fail(ctx, j.ID, message); err != nil {
		p.log.Error("failed to mark job failed", logger.JobID(j.ID), logger.Error(err))
	}
}
