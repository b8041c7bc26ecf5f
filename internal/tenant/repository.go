package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantDisabled = errors.New("tenant is disabled")
	ErrInvalidAPIKey  = errors.New("invalid api key")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByAPIKeyID(ctx context.Context, keyID string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	FirstEnabled(ctx context.Context) (*Tenant, error)
}
