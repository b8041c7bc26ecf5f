package item

import (
	"context"
	"errors"
	"time"

	"github.com/harvestd/harvestd/internal/pagination"
)

var (
	ErrItemNotFound = errors.New("item not found")
	// ErrDuplicateURL is returned by Insert when another writer created the
	// (dataset_id, url) row first; the caller falls back to the update path.
	ErrDuplicateURL = errors.New("item url already exists in dataset")
)

// ListFilter narrows ListVisible results. Zero values mean "no filter".
type ListFilter struct {
	DatasetID  string
	EntityType string
	Tag        string
	Source     string
	Since      *time.Time
	Until      *time.Time
}

// Repository defines the interface for item storage.
type Repository interface {
	Insert(ctx context.Context, it *Item) error
	GetByDatasetURL(ctx context.Context, datasetID, url string) (*Item, error)

	// UpdatePayload rewrites the mutable fields of an existing row while
	// preserving its identity and created_at.
	UpdatePayload(ctx context.Context, it *Item) error

	// TouchObserved bumps observed_at only, for unchanged re-confirmation.
	TouchObserved(ctx context.Context, itemID string, observedAt time.Time) error

	GetVisible(ctx context.Context, itemID, tenantID string) (*Item, error)
	ListVisible(ctx context.Context, tenantID string, f ListFilter, limit int, cur *pagination.Cursor) ([]*Item, error)
}
