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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harvestd/harvestd/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db Querier
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db Querier) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tenants (id, name, api_key_id, api_key_hash, is_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		t.ID, t.Name, t.APIKeyID, t.APIKeyHash, t.IsEnabled, t.CreatedAt, t.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return r.get(ctx, "id", id)
}

// GetByAPIKeyID retrieves a tenant by its API key identifier
func (r *TenantRepository) GetByAPIKeyID(ctx context.Context, keyID string) (*tenant.Tenant, error) {
	return r.get(ctx, "api_key_id", keyID)
}

func (r *TenantRepository) get(ctx context.Context, column, value string) (*tenant.Tenant, error) {
	var t tenant.Tenant

	err := r.db.QueryRow(ctx, `
		SELECT id, name, api_key_id, api_key_hash, is_enabled, created_at, updated_at
		FROM tenants
		WHERE `+column+` = $1
	`, value).Scan(
		&t.ID, &t.Name, &t.APIKeyID, &t.APIKeyHash, &t.IsEnabled, &t.CreatedAt, &t.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &t, nil
}

// Update updates a tenant's mutable fields
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	result, err := r.db.Exec(ctx, `
		UPDATE tenants
		SET name = $2, api_key_id = $3, api_key_hash = $4, is_enabled = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Name, t.APIKeyID, t.APIKeyHash, t.IsEnabled, t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	if result.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}

	return nil
}

// List retrieves tenants ordered by creation time
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, api_key_id, api_key_hash, is_enabled, created_at, updated_at
		FROM tenants
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.APIKeyID, &t.APIKeyHash, &t.IsEnabled, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}

	return tenants, rows.Err()
}

// FirstEnabled returns the oldest enabled tenant. The scheduler attributes
// quick-check jobs for shared datasets to it.
func (r *TenantRepository) FirstEnabled(ctx context.Context) (*tenant.Tenant, error) {
	var t tenant.Tenant

	err := r.db.QueryRow(ctx, `
		SELECT id, name, api_key_id, api_key_hash, is_enabled, created_at, updated_at
		FROM tenants
		WHERE is_enabled
		ORDER BY created_at ASC
		LIMIT 1
	`).Scan(
		&t.ID, &t.Name, &t.APIKeyID, &t.APIKeyHash, &t.IsEnabled, &t.CreatedAt, &t.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get first enabled tenant: %w", err)
	}

	return &t, nil
}
