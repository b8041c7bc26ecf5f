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

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/pagination"
)

const jobColumns = `id, dataset_id, tenant_id, status, progress, stats, error_message, created_at, started_at, finished_at`

// visibleJobColumns qualifies jobColumns for the reads that join datasets
// to apply the visibility predicate.
const visibleJobColumns = `j.id, j.dataset_id, j.tenant_id, j.status, j.progress, j.stats, j.error_message, j.created_at, j.started_at, j.finished_at`

// JobRepository implements job.Repository
type JobRepository struct {
	db Querier
}

// NewJobRepository creates a new job repository
func NewJobRepository(db Querier) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new queued job
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	stats, err := marshalStats(j.Stats)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO jobs (id, dataset_id, tenant_id, status, progress, stats, error_message, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		j.ID, j.DatasetID, j.TenantID, j.Status, j.Progress, stats,
		j.ErrorMessage, j.CreatedAt, j.StartedAt, j.FinishedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job without tenant scoping. Reserved for the worker
// plane, which checks cancellation on jobs it already claimed.
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*job.Job, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, jobID))
}

// GetVisible retrieves a job only if its parent dataset is visible to the
// tenant. Jobs carry no visibility of their own: a job on a shared dataset
// is visible to every tenant, whoever triggered it.
func (r *JobRepository) GetVisible(ctx context.Context, jobID, tenantID string) (*job.Job, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+visibleJobColumns+`
		FROM jobs j
		JOIN datasets d ON d.id = j.dataset_id
		WHERE j.id = $1 AND (d.owner_tenant_id IS NULL OR d.owner_tenant_id = $2)
	`, jobID, tenantID))
}

func (r *JobRepository) scanOne(row pgx.Row) (*job.Job, error) {
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListVisible retrieves jobs on datasets visible to the tenant, newest
// first, fetching one row beyond the limit so the caller can detect
// whether more pages exist.
func (r *JobRepository) ListVisible(ctx context.Context, tenantID string, f job.ListFilter, limit int, cur *pagination.Cursor) ([]*job.Job, error) {
	query := `
		SELECT ` + visibleJobColumns + `
		FROM jobs j
		JOIN datasets d ON d.id = j.dataset_id
		WHERE (d.owner_tenant_id IS NULL OR d.owner_tenant_id = $1)`
	args := []any{tenantID}

	if f.DatasetID != "" {
		args = append(args, f.DatasetID)
		query += ` AND j.dataset_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND j.status = $` + strconv.Itoa(len(args))
	}
	if cur != nil {
		args = append(args, cur.Primary, cur.Tiebreak)
		query += fmt.Sprintf(` AND (j.created_at, j.id) < ($%d, $%d)`, len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += ` ORDER BY j.created_at DESC, j.id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

// ClaimOldestQueued atomically flips the oldest QUEUED job to RUNNING.
//
// The subselect takes a row lock with SKIP LOCKED so concurrent claimers
// never block on each other, and the outer status recheck guarantees a job
// canceled between the select and the update is not claimed. Exactly one of
// N racing claimers wins any given job.
func (r *JobRepository) ClaimOldestQueued(ctx context.Context) (*job.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'RUNNING', started_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'QUEUED'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'QUEUED'
		RETURNING `+jobColumns+`
	`))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrNoWork
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return j, nil
}

// UpdateProgress raises progress and merges stats while the job is RUNNING.
// GREATEST keeps progress monotonic even if reports arrive out of order.
func (r *JobRepository) UpdateProgress(ctx context.Context, jobID string, progress int, stats map[string]any) error {
	merged, err := marshalStats(stats)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, $2), stats = stats || $3::jsonb
		WHERE id = $1 AND status = 'RUNNING'
	`, jobID, progress, merged)

	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}

	return nil
}

// MarkSucceeded completes a RUNNING job
func (r *JobRepository) MarkSucceeded(ctx context.Context, jobID string, stats map[string]any) error {
	merged, err := marshalStats(stats)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'SUCCEEDED', progress = 100, stats = stats || $2::jsonb, finished_at = now()
		WHERE id = $1 AND status = 'RUNNING'
	`, jobID, merged)

	if err != nil {
		return fmt.Errorf("failed to mark job succeeded: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}

	return nil
}

// MarkFailed fails a RUNNING job with a diagnostic message
func (r *JobRepository) MarkFailed(ctx context.Context, jobID, message string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'FAILED', error_message = $2, finished_at = now()
		WHERE id = $1 AND status = 'RUNNING'
	`, jobID, message)

	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}

	return nil
}

// MarkCanceled cancels a job that has not finished yet
func (r *JobRepository) MarkCanceled(ctx context.Context, jobID string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'CANCELED', finished_at = now()
		WHERE id = $1 AND status IN ('QUEUED', 'RUNNING')
	`, jobID)

	if err != nil {
		return fmt.Errorf("failed to mark job canceled: %w", err)
	}

	if result.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}

	return nil
}

// HasQueuedQuickCheck reports whether a quick-check job is already waiting
// for the dataset, so the scheduler does not pile up duplicates.
func (r *JobRepository) HasQueuedQuickCheck(ctx context.Context, datasetID string) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE dataset_id = $1
			  AND status IN ('QUEUED', 'RUNNING')
			  AND stats->>'mode' = 'quick_check'
		)
	`, datasetID).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check queued quick-check: %w", err)
	}

	return exists, nil
}

// scanJob reads one job row, decoding the stats JSONB column.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j     job.Job
		stats []byte
	)

	err := row.Scan(
		&j.ID, &j.DatasetID, &j.TenantID, &j.Status, &j.Progress, &stats,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &j.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode job stats: %w", err)
		}
	}

	return &j, nil
}

func marshalStats(stats map[string]any) ([]byte, error) {
	if stats == nil {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job stats: %w", err)
	}
	return b, nil
}
