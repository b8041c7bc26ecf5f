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

package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/id"
)

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	hasher      *KeyHasher
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, hasher *KeyHasher, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// CreateTenant provisions a new enabled tenant and mints its API key. The
// plaintext key is returned exactly once and never stored.
func (s *Service) CreateTenant(ctx context.Context, name string) (*Tenant, string, error) {
	if name == "" {
		return nil, "", fmt.Errorf("tenant name is required")
	}

	plaintext, keyID, keyHash, err := s.hasher.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate api key: %w", err)
	}

	now := time.Now()
	t := &Tenant{
		ID:         id.NewUUIDv7(),
		Name:       name,
		APIKeyID:   keyID,
		APIKeyHash: keyHash,
		IsEnabled:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		Resource: "tenant",
		Metadata: map[string]any{"name": t.Name},
	})

	return t, plaintext, nil
}

// Authenticate resolves an opaque API credential to its tenant. Unknown
// credentials and disabled tenants both fail closed.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*Tenant, error) {
	keyID, secret, err := SplitAPIKey(apiKey)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetByAPIKeyID(ctx, keyID)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	ok, err := s.hasher.Verify(secret, t.APIKeyHash)
	if err != nil || !ok {
		return nil, ErrInvalidAPIKey
	}

	if !t.IsEnabled {
		return nil, ErrTenantDisabled
	}

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetByID(ctx, tenantID)
}

// SetEnabled flips the tenant enablement flag, the only mutable field.
func (s *Service) SetEnabled(ctx context.Context, tenantID string, enabled bool) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	t.IsEnabled = enabled
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantToggled,
		TenantID: t.ID,
		Resource: "tenant",
		Metadata: map[string]any{"is_enabled": enabled},
	})

	return t, nil
}

// FirstEnabled returns an arbitrary enabled tenant, used by the scheduler
// to attribute jobs enqueued against shared datasets.
func (s *Service) FirstEnabled(ctx context.Context) (*Tenant, error) {
	return s.repo.FirstEnabled(ctx)
}
