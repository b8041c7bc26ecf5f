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

// Package scheduler enqueues periodic quick checks so dataset sources are
// probed for new items without anyone asking. It is a pure producer: the
// cheap probe either finds nothing or makes the job service enqueue the
// expensive full run on its own.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/observability/logger"
	"github.com/harvestd/harvestd/internal/tenant"
)

// Scheduler sweeps enabled datasets on a fixed interval and enqueues one
// quick check per dataset, skipping datasets that already have a probe
// queued or running.
type Scheduler struct {
	interval time.Duration
	datasets *dataset.Service
	jobs     *job.Service
	tenants  *tenant.Service
	log      *slog.Logger
}

// New creates a scheduler.
func New(interval time.Duration, datasets *dataset.Service, jobs *job.Service, tenants *tenant.Service, log *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		datasets: datasets,
		jobs:     jobs,
		tenants:  tenants,
		log:      log,
	}
}

// Run sweeps immediately and then on every tick until the context is
// canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", logger.String("interval", s.interval.String()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues quick checks for every enabled dataset that has none
// pending. Failures on one dataset never stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	datasets, err := s.datasets.ListEnabled(ctx)
	if err != nil {
		s.log.Error("scheduler sweep failed to list datasets", logger.Error(err))
		return
	}

	enqueued := 0
	for _, d := range datasets {
		if ctx.Err() != nil {
			return
		}
		if s.sweepOne(ctx, d) {
			enqueued++
		}
	}

	s.log.Info("scheduler sweep complete",
		slog.Int("datasets", len(datasets)),
		slog.Int("quick_checks_enqueued", enqueued),
	)
}

func (s *Scheduler) sweepOne(ctx context.Context, d *dataset.Dataset) bool {
	pending, err := s.jobs.HasPendingQuickCheck(ctx, d.ID)
	if err != nil {
		s.log.Error("quick check probe failed", logger.DatasetID(d.ID), logger.Error(err))
		return false
	}
	if pending {
		return false
	}

	t, err := s.attributeTenant(ctx, d)
	if err != nil {
		s.log.Warn("no tenant to attribute quick check to",
			logger.DatasetID(d.ID),
			logger.Error(err),
		)
		return false
	}

	j, err := s.jobs.Create(ctx, t, d.ID, job.ModeQuickCheck)
	if err != nil {
		// Racing a manual enqueue or a disable is normal here.
		if errors.Is(err, dataset.ErrDatasetDisabled) ||
			errors.Is(err, dataset.ErrDatasetNotFound) ||
			errors.Is(err, tenant.ErrTenantDisabled) {
			return false
		}
		s.log.Error("failed to enqueue quick check", logger.DatasetID(d.ID), logger.Error(err))
		return false
	}

	s.log.Info("quick check enqueued",
		logger.JobID(j.ID),
		logger.DatasetID(d.ID),
		logger.TenantID(t.ID),
	)
	return true
}

// attributeTenant picks the tenant a scheduled job runs as: the dataset's
// owner for owned datasets, otherwise any enabled tenant for shared ones.
func (s *Scheduler) attributeTenant(ctx context.Context, d *dataset.Dataset) (*tenant.Tenant, error) {
	if d.OwnerTenantID != nil {
		return s.tenants.GetTenant(ctx, *d.OwnerTenantID)
	}
	return s.tenants.FirstEnabled(ctx)
}
