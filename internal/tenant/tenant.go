package tenant

import (
	"time"
)

// Tenant represents an isolated caller identity. A tenant owns zero or more
// datasets and authenticates with an opaque API credential.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	APIKeyID   string    `json:"-"`
	APIKeyHash string    `json:"-"`
	IsEnabled  bool      `json:"is_enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
