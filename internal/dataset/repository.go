package dataset

import (
	"context"
	"errors"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrDatasetDisabled = errors.New("dataset is disabled")
	ErrNotOwner        = errors.New("dataset is not owned by the caller")
	ErrMissingField    = errors.New("missing required dataset field")
)

// ListFilter narrows ListVisible results. Zero values mean "no filter".
type ListFilter struct {
	EntityType string
	Tag        string
	Source     string
	MineOnly   bool
}

// Repository defines the interface for dataset storage. Visibility-scoped
// reads take the calling tenant's ID and fold the access predicate into the
// query; GetByID is the unscoped lookup reserved for the worker plane.
type Repository interface {
	Create(ctx context.Context, d *Dataset) error
	GetByID(ctx context.Context, datasetID string) (*Dataset, error)
	GetVisible(ctx context.Context, datasetID, tenantID string) (*Dataset, error)
	ListVisible(ctx context.Context, tenantID string, f ListFilter) ([]*Dataset, error)
	ListEnabled(ctx context.Context) ([]*Dataset, error)
	Update(ctx context.Context, d *Dataset) error
}
