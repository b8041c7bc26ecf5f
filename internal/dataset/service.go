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

package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harvestd/harvestd/internal/access"
	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/id"
	"github.com/harvestd/harvestd/internal/tenant"
)

// Service provides dataset registry business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger

	// sharedWritable permits non-owners to update shared datasets. The
	// upstream policy was deliberately left open, so it is configuration
	// rather than a hardcoded behavior.
	sharedWritable bool
}

// NewService creates a new dataset service
func NewService(repo Repository, auditLogger audit.Logger, sharedWritable bool) *Service {
	return &Service{
		repo:           repo,
		auditLogger:    auditLogger,
		sharedWritable: sharedWritable,
	}
}

// CreateParams carries the caller-supplied fields for a new dataset.
type CreateParams struct {
	Name       string
	EntityType string
	Extractor  string
	Tags       []string
	Sources    []string
	Config     json.RawMessage
}

// Create registers a dataset owned by the calling tenant.
func (s *Service) Create(ctx context.Context, t *tenant.Tenant, p CreateParams) (*Dataset, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if p.EntityType == "" {
		return nil, fmt.Errorf("%w: entity_type", ErrMissingField)
	}
	if p.Extractor == "" {
		return nil, fmt.Errorf("%w: extractor", ErrMissingField)
	}

	// The tags and sources columns are NOT NULL; an omitted field must
	// insert an empty array, not a NULL.
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	sources := p.Sources
	if sources == nil {
		sources = []string{}
	}

	owner := t.ID
	now := time.Now()
	d := &Dataset{
		ID:            id.NewUUIDv7(),
		OwnerTenantID: &owner,
		Name:          p.Name,
		EntityType:    p.EntityType,
		Extractor:     p.Extractor,
		Tags:          tags,
		Sources:       sources,
		Config:        p.Config,
		IsEnabled:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDatasetCreated,
		TenantID: t.ID,
		ActorID:  t.ID,
		Resource: "dataset",
		Metadata: map[string]any{"dataset_id": d.ID, "name": d.Name},
	})

	return d, nil
}

// Get returns one dataset the tenant may see. Invisible and missing are
// both reported as ErrDatasetNotFound.
func (s *Service) Get(ctx context.Context, t *tenant.Tenant, datasetID string) (*Dataset, error) {
	d, err := s.repo.GetVisible(ctx, datasetID, t.ID)
	if err != nil {
		return nil, err
	}
	if !access.Visible(d.OwnerTenantID, t.ID) {
		return nil, ErrDatasetNotFound
	}
	return d, nil
}

// List returns all datasets visible to the tenant, optionally filtered.
func (s *Service) List(ctx context.Context, t *tenant.Tenant, f ListFilter) ([]*Dataset, error) {
	return s.repo.ListVisible(ctx, t.ID, f)
}

// Resolve is the worker-plane lookup by bare ID. A claim against a dataset
// disabled after enqueue is allowed to proceed; callers that care check
// IsEnabled themselves.
func (s *Service) Resolve(ctx context.Context, datasetID string) (*Dataset, error) {
	return s.repo.GetByID(ctx, datasetID)
}

// ListEnabled returns every enabled dataset, for the scheduler.
func (s *Service) ListEnabled(ctx context.Context) ([]*Dataset, error) {
	return s.repo.ListEnabled(ctx)
}

// UpdatePatch carries a partial dataset update. Nil fields are left as-is.
type UpdatePatch struct {
	Name       *string
	EntityType *string
	Extractor  *string
	Tags       []string
	Sources    []string
	Config     json.RawMessage
	IsEnabled  *bool
}

// Update applies a partial update. Owned datasets may only be mutated by
// their owner; shared datasets only when the registry was configured
// writable. Both refusals surface as ErrDatasetNotFound-adjacent errors at
// the transport layer, not as "forbidden".
func (s *Service) Update(ctx context.Context, t *tenant.Tenant, datasetID string, p UpdatePatch) (*Dataset, error) {
	d, err := s.Get(ctx, t, datasetID)
	if err != nil {
		return nil, err
	}

	if !access.Owns(d.OwnerTenantID, t.ID) {
		if d.OwnerTenantID != nil || !s.sharedWritable {
			return nil, ErrNotOwner
		}
	}

	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.EntityType != nil {
		d.EntityType = *p.EntityType
	}
	if p.Extractor != nil {
		d.Extractor = *p.Extractor
	}
	if p.Tags != nil {
		d.Tags = p.Tags
	}
	if p.Sources != nil {
		d.Sources = p.Sources
	}
	if p.Config != nil {
		d.Config = p.Config
	}
	if p.IsEnabled != nil {
		d.IsEnabled = *p.IsEnabled
	}
	d.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update dataset: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDatasetUpdated,
		TenantID: t.ID,
		ActorID:  t.ID,
		Resource: "dataset",
		Metadata: map[string]any{"dataset_id": d.ID},
	})

	return d, nil
}
