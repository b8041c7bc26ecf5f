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

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/id"
	"github.com/harvestd/harvestd/internal/observability/logger"
	"github.com/harvestd/harvestd/internal/pagination"
	"github.com/harvestd/harvestd/internal/tenant"
)

var (
	ErrInvalidProgress     = errors.New("progress must be between 0 and 100")
	ErrInvalidStatusFilter = errors.New("invalid status filter")
	ErrInvalidMode         = errors.New("unknown job mode")
)

// DatasetResolver resolves a dataset with the caller's visibility applied.
// Implemented by dataset.Service.
type DatasetResolver interface {
	Get(ctx context.Context, t *tenant.Tenant, datasetID string) (*dataset.Dataset, error)
}

// Service owns the job state machine and the claim protocol.
type Service struct {
	repo        Repository
	datasets    DatasetResolver
	notifier    Notifier
	auditLogger audit.Logger
}

// NewService creates a new job service. The notifier is an injected
// dependency, never a package-level singleton; pass NopNotifier when no
// queue is configured.
func NewService(repo Repository, datasets DatasetResolver, notifier Notifier, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		datasets:    datasets,
		notifier:    notifier,
		auditLogger: auditLogger,
	}
}

// Create enqueues a job against a dataset the tenant can see. Fails with
// dataset.ErrDatasetNotFound when the dataset is missing or invisible,
// dataset.ErrDatasetDisabled / tenant.ErrTenantDisabled when either side is
// disabled. mode defaults to a full run.
func (s *Service) Create(ctx context.Context, t *tenant.Tenant, datasetID, mode string) (*Job, error) {
	if !t.IsEnabled {
		return nil, tenant.ErrTenantDisabled
	}

	d, err := s.datasets.Get(ctx, t, datasetID)
	if err != nil {
		return nil, err
	}
	if !d.IsEnabled {
		return nil, dataset.ErrDatasetDisabled
	}

	if mode == "" {
		mode = ModeFull
	}
	if mode != ModeFull && mode != ModeQuickCheck {
		return nil, fmt.Errorf("%w %q", ErrInvalidMode, mode)
	}

	j := &Job{
		ID:        id.NewUUIDv7(),
		DatasetID: d.ID,
		TenantID:  t.ID,
		Status:    StatusQueued,
		Progress:  0,
		Stats:     map[string]any{StatsModeKey: mode},
		CreatedAt: time.Now(),
	}

	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// Wake-up only; the poll scan remains the ground truth for what work
	// exists, so a failed publish is not a failed enqueue.
	if err := s.notifier.NotifyQueued(ctx, j); err != nil {
		slog.WarnContext(ctx, "job wake-up notification failed",
			logger.JobID(j.ID),
			logger.Error(err),
		)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeJobEnqueued,
		TenantID: t.ID,
		ActorID:  t.ID,
		Resource: "job",
		Metadata: map[string]any{"job_id": j.ID, "dataset_id": d.ID, "mode": mode},
	})

	return j, nil
}

// Claim atomically transitions the oldest QUEUED job to RUNNING on behalf
// of pollerID. Returns ErrNoWork when the backlog is empty. Races between
// concurrent claimers are resolved inside the repository; no two claims
// ever both win the same job.
func (s *Service) Claim(ctx context.Context, pollerID string) (*Job, error) {
	j, err := s.repo.ClaimOldestQueued(ctx)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "job claimed",
		logger.JobID(j.ID),
		logger.DatasetID(j.DatasetID),
		logger.PollerID(pollerID),
	)
	return j, nil
}

// ReportProgress records best-effort progress for a RUNNING job. A value
// lower than the stored progress is clamped (the update keeps the higher
// value) rather than rejected; stats keys are merged last-write-wins.
func (s *Service) ReportProgress(ctx context.Context, jobID string, progress int, stats map[string]any) error {
	if progress < 0 || progress > 100 {
		return ErrInvalidProgress
	}

	err := s.repo.UpdateProgress(ctx, jobID, progress, stats)
	if errors.Is(err, ErrJobNotFound) {
		return s.disambiguate(ctx, jobID, nil)
	}
	return err
}

// Succeed moves a RUNNING job to SUCCEEDED, setting finished_at and
// progress 100 and merging finalStats. Calling it again on an already
// succeeded job is a no-op, tolerating runner retry-after-timeout.
func (s *Service) Succeed(ctx context.Context, jobID string, finalStats map[string]any) error {
	err := s.repo.MarkSucceeded(ctx, jobID, finalStats)
	if errors.Is(err, ErrJobNotFound) {
		return s.disambiguate(ctx, jobID, func(st Status) bool { return st == StatusSucceeded })
	}
	if err != nil {
		return err
	}

	s.maybeTriggerFullRun(ctx, jobID)
	return nil
}

// Fail moves a RUNNING job to FAILED with an operator-visible message.
// Idempotent against repeated failure reports.
func (s *Service) Fail(ctx context.Context, jobID, message string) error {
	err := s.repo.MarkFailed(ctx, jobID, message)
	if errors.Is(err, ErrJobNotFound) {
		return s.disambiguate(ctx, jobID, func(st Status) bool { return st == StatusFailed })
	}
	return err
}

// Cancel moves a QUEUED job straight to CANCELED. For a RUNNING job the
// transition only records the request: the runner observes it at its next
// checkpoint and stops cooperatively; in-flight work is never interrupted
// forcibly. Requires visibility of the job's dataset.
func (s *Service) Cancel(ctx context.Context, t *tenant.Tenant, jobID string) error {
	j, err := s.repo.GetVisible(ctx, jobID, t.ID)
	if err != nil {
		return err
	}
	if j.Status == StatusCanceled {
		return nil
	}

	err = s.repo.MarkCanceled(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return s.disambiguate(ctx, jobID, func(st Status) bool { return st == StatusCanceled })
	}
	if err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeJobCanceled,
		TenantID: t.ID,
		ActorID:  t.ID,
		Resource: "job",
		Metadata: map[string]any{"job_id": jobID},
	})
	return nil
}

// FindOne returns one job the tenant may see, by its dataset's visibility.
func (s *Service) FindOne(ctx context.Context, t *tenant.Tenant, jobID string) (*Job, error) {
	return s.repo.GetVisible(ctx, jobID, t.ID)
}

// FindAll lists visible jobs ordered by (created_at desc, id desc) with
// keyset pagination, optionally filtered by dataset and status.
func (s *Service) FindAll(ctx context.Context, t *tenant.Tenant, f ListFilter, limit int, cursor string) (pagination.Page[*Job], error) {
	var none pagination.Page[*Job]

	if f.Status != "" && !f.Status.Valid() {
		return none, ErrInvalidStatusFilter
	}

	limit, err := pagination.ClampLimit(limit)
	if err != nil {
		return none, err
	}

	var cur *pagination.Cursor
	if cursor != "" {
		c, err := pagination.Decode(cursor)
		if err != nil {
			return none, err
		}
		cur = &c
	}

	rows, err := s.repo.ListVisible(ctx, t.ID, f, limit, cur)
	if err != nil {
		return none, err
	}

	return pagination.NewPage(rows, limit, func(j *Job) pagination.Cursor {
		return pagination.Cursor{Primary: j.CreatedAt, Tiebreak: j.ID}
	}), nil
}

// StatusOf is the worker-plane status peek used for cooperative
// cancellation checkpoints.
func (s *Service) StatusOf(ctx context.Context, jobID string) (Status, error) {
	j, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	return j.Status, nil
}

// HasPendingQuickCheck reports whether a quick check for the dataset is
// already queued or running, so the scheduler never piles up probes.
func (s *Service) HasPendingQuickCheck(ctx context.Context, datasetID string) (bool, error) {
	return s.repo.HasQueuedQuickCheck(ctx, datasetID)
}

// disambiguate turns a zero-rows conditional update into the right caller
// error: the job is either gone or in a state the transition forbids.
// alreadyDone marks states in which the requested transition is an
// idempotent no-op.
func (s *Service) disambiguate(ctx context.Context, jobID string, alreadyDone func(Status) bool) error {
	j, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if alreadyDone != nil && alreadyDone(j.Status) {
		return nil
	}
	return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, j.Status)
}

// maybeTriggerFullRun enqueues a full run after a quick check that found
// new items, mirroring the scheduler's cheap-probe-then-harvest pattern.
func (s *Service) maybeTriggerFullRun(ctx context.Context, jobID string) {
	j, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return
	}
	if j.Mode() != ModeQuickCheck {
		return
	}
	if found, _ := j.Stats[StatsNewItemsKey].(bool); !found {
		return
	}

	follow := &Job{
		ID:        id.NewUUIDv7(),
		DatasetID: j.DatasetID,
		TenantID:  j.TenantID,
		Status:    StatusQueued,
		Stats:     map[string]any{StatsModeKey: ModeFull},
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, follow); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue follow-up full run",
			logger.JobID(jobID),
			logger.Error(err),
		)
		return
	}
	if err := s.notifier.NotifyQueued(ctx, follow); err != nil {
		slog.WarnContext(ctx, "job wake-up notification failed",
			logger.JobID(follow.ID),
			logger.Error(err),
		)
	}

	slog.InfoContext(ctx, "quick check found new items, enqueued full run",
		logger.JobID(follow.ID),
		logger.DatasetID(follow.DatasetID),
	)
}
