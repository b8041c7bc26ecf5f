package job

import (
	"context"
	"errors"

	"github.com/harvestd/harvestd/internal/pagination"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition means the caller acted on a stale job snapshot:
	// the state machine does not permit the requested move.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrNoWork is the non-error outcome of a claim against an empty backlog.
	ErrNoWork = errors.New("no queued job available")
)

// ListFilter narrows ListVisible results. Zero values mean "no filter".
type ListFilter struct {
	DatasetID string
	Status    Status
}

// Repository defines the interface for job storage.
//
// ClaimOldestQueued is the contended operation: it must atomically select
// the oldest QUEUED job and flip it to RUNNING in a single conditional
// update, so that of N racing claimers exactly one observes any given job.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetVisible(ctx context.Context, jobID, tenantID string) (*Job, error)
	ListVisible(ctx context.Context, tenantID string, f ListFilter, limit int, cur *pagination.Cursor) ([]*Job, error)

	ClaimOldestQueued(ctx context.Context) (*Job, error)

	// UpdateProgress bumps progress (never lowering it) and merges stats,
	// only while the job is RUNNING. Returns ErrJobNotFound if no RUNNING
	// row matched.
	UpdateProgress(ctx context.Context, jobID string, progress int, stats map[string]any) error

	// MarkSucceeded / MarkFailed / MarkCanceled perform conditional
	// transitions; each returns ErrJobNotFound when zero rows matched the
	// required prior status, leaving disambiguation to the service.
	MarkSucceeded(ctx context.Context, jobID string, stats map[string]any) error
	MarkFailed(ctx context.Context, jobID, message string) error
	MarkCanceled(ctx context.Context, jobID string) error

	HasQueuedQuickCheck(ctx context.Context, datasetID string) (bool, error)
}
