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
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/pagination"
)

var jobColumnNames = []string{
	"id", "dataset_id", "tenant_id", "status", "progress", "stats",
	"error_message", "created_at", "started_at", "finished_at",
}

// TestPurpose: Validates the claim query atomically returns the flipped job
// and that an empty backlog maps to ErrNoWork rather than a raw no-rows
// error.
//
// Scope: JobRepository.ClaimOldestQueued.
//
// Expected: A returned row yields a RUNNING job; pgx.ErrNoRows yields
// job.ErrNoWork.
//
// Test Case ID: STORE-JOB-01
func TestJobRepository_ClaimOldestQueued(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	started := now.Add(time.Second)
	mock.ExpectQuery("UPDATE jobs").
		WillReturnRows(pgxmock.NewRows(jobColumnNames).AddRow(
			"job-1", "ds-1", "tenant-1", "RUNNING", 0, []byte(`{"mode":"full"}`),
			nil, now, &started, nil,
		))

	repo := NewJobRepository(mock)
	j, err := repo.ClaimOldestQueued(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, job.StatusRunning, j.Status)
	assert.Equal(t, job.ModeFull, j.Mode())
	require.NotNil(t, j.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ClaimOldestQueued_EmptyBacklog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(pgxmock.NewRows(jobColumnNames))

	repo := NewJobRepository(mock)
	_, err = repo.ClaimOldestQueued(context.Background())
	assert.ErrorIs(t, err, job.ErrNoWork)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurpose: Validates progress updates only touch RUNNING rows and that
// a zero-row outcome maps to ErrJobNotFound so the service can disambiguate
// terminal states.
//
// Scope: JobRepository.UpdateProgress.
//
// Expected: One affected row succeeds; zero affected rows returns
// job.ErrJobNotFound.
//
// Test Case ID: STORE-JOB-02
func TestJobRepository_UpdateProgress(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", 40, []byte(`{"pages_crawled":2}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewJobRepository(mock)
	err = repo.UpdateProgress(context.Background(), "job-1", 40, map[string]any{"pages_crawled": 2})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_UpdateProgress_NotRunning(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", 40, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewJobRepository(mock)
	err = repo.UpdateProgress(context.Background(), "job-1", 40, nil)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurpose: Validates terminal transitions are conditional on the prior
// status, returning ErrJobNotFound when the guard matched nothing.
//
// Scope: JobRepository.MarkSucceeded, MarkFailed, MarkCanceled.
//
// Expected: Each update guards on status and maps zero rows to
// job.ErrJobNotFound.
//
// Test Case ID: STORE-JOB-03
func TestJobRepository_TerminalTransitions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", []byte(`{"items_scraped":7}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.MarkSucceeded(ctx, "job-1", map[string]any{"items_scraped": 7}))

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-2", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkFailed(ctx, "job-2", "boom"), job.ErrJobNotFound)

	mock.ExpectExec("UPDATE jobs").
		WithArgs("job-3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.MarkCanceled(ctx, "job-3"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurpose: Validates the paginated list applies the dataset visibility
// join and that a cursor adds the row-value predicate with one extra row
// fetched for has-more detection.
//
// Scope: JobRepository.ListVisible with filter and cursor.
//
// Expected: The query joins datasets on the owner predicate and carries
// tenant, status, cursor columns and limit+1.
//
// Test Case ID: STORE-JOB-04
func TestJobRepository_ListVisible_WithCursor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	cur := &pagination.Cursor{Primary: now, Tiebreak: "job-5"}

	mock.ExpectQuery(`(?s)SELECT (.+) FROM jobs j\s+JOIN datasets d ON d\.id = j\.dataset_id.+owner_tenant_id IS NULL OR d\.owner_tenant_id = \$1`).
		WithArgs("tenant-1", job.StatusSucceeded, cur.Primary, cur.Tiebreak, 3).
		WillReturnRows(pgxmock.NewRows(jobColumnNames).
			AddRow("job-4", "ds-1", "tenant-1", "SUCCEEDED", 100, []byte(`{}`), nil, now.Add(-time.Second), nil, nil).
			AddRow("job-3", "ds-1", "tenant-1", "SUCCEEDED", 100, []byte(`{}`), nil, now.Add(-2*time.Second), nil, nil))

	repo := NewJobRepository(mock)
	jobs, err := repo.ListVisible(context.Background(), "tenant-1",
		job.ListFilter{Status: job.StatusSucceeded}, 2, cur)
	require.NoError(t, err)

	assert.Len(t, jobs, 2)
	assert.Equal(t, "job-4", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurpose: Validates job reads inherit visibility from the parent
// dataset instead of being scoped to the triggering tenant, so a job
// another tenant started on a shared dataset is still retrievable.
//
// Scope: JobRepository.GetVisible join predicate.
//
// Expected: The lookup joins datasets on the owner-or-shared predicate and
// returns the row even though the caller is not the triggering tenant.
//
// Test Case ID: STORE-JOB-06
func TestJobRepository_GetVisible_SharedDataset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)SELECT (.+) FROM jobs j\s+JOIN datasets d ON d\.id = j\.dataset_id\s+WHERE j\.id = \$1 AND \(d\.owner_tenant_id IS NULL OR d\.owner_tenant_id = \$2\)`).
		WithArgs("job-1", "tenant-2").
		WillReturnRows(pgxmock.NewRows(jobColumnNames).
			AddRow("job-1", "ds-shared", "tenant-1", "QUEUED", 0, []byte(`{}`), nil, now, nil, nil))

	repo := NewJobRepository(mock)
	j, err := repo.GetVisible(context.Background(), "job-1", "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", j.TenantID)
	assert.Equal(t, "ds-shared", j.DatasetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurpose: Validates the quick-check dedup probe reads the mode out of
// the stats JSONB.
//
// Scope: JobRepository.HasQueuedQuickCheck.
//
// Expected: The EXISTS result is passed through.
//
// Test Case ID: STORE-JOB-05
func TestJobRepository_HasQueuedQuickCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ds-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewJobRepository(mock)
	got, err := repo.HasQueuedQuickCheck(context.Background(), "ds-1")
	require.NoError(t, err)
	assert.True(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
