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
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/harvestd/harvestd/internal/dataset"
)

const datasetColumns = `id, owner_tenant_id, name, entity_type, extractor, tags, sources, config, is_enabled, created_at, updated_at`

// DatasetRepository implements dataset.Repository
type DatasetRepository struct {
	db Querier
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db Querier) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// Create creates a new dataset
func (r *DatasetRepository) Create(ctx context.Context, d *dataset.Dataset) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO datasets (id, owner_tenant_id, name, entity_type, extractor, tags, sources, config, is_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		d.ID, d.OwnerTenantID, d.Name, d.EntityType, d.Extractor,
		d.Tags, d.Sources, d.Config, d.IsEnabled, d.CreatedAt, d.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}

	return nil
}

// GetByID retrieves a dataset without tenant scoping. Reserved for the
// worker plane, which resolves datasets for claimed jobs.
func (r *DatasetRepository) GetByID(ctx context.Context, datasetID string) (*dataset.Dataset, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		WHERE id = $1
	`, datasetID))
}

// GetVisible retrieves a dataset only if the tenant may see it. Invisible
// and nonexistent datasets are indistinguishable to the caller.
func (r *DatasetRepository) GetVisible(ctx context.Context, datasetID, tenantID string) (*dataset.Dataset, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		WHERE id = $1 AND (owner_tenant_id IS NULL OR owner_tenant_id = $2)
	`, datasetID, tenantID))
}

func (r *DatasetRepository) scanOne(row pgx.Row) (*dataset.Dataset, error) {
	var d dataset.Dataset

	err := row.Scan(
		&d.ID, &d.OwnerTenantID, &d.Name, &d.EntityType, &d.Extractor,
		&d.Tags, &d.Sources, &d.Config, &d.IsEnabled, &d.CreatedAt, &d.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dataset.ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return &d, nil
}

// ListVisible retrieves every dataset the tenant may see, newest first,
// applying the optional filters.
func (r *DatasetRepository) ListVisible(ctx context.Context, tenantID string, f dataset.ListFilter) ([]*dataset.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE (owner_tenant_id IS NULL OR owner_tenant_id = $1)`
	args := []any{tenantID}

	if f.MineOnly {
		query += ` AND owner_tenant_id = $1`
	}
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		query += ` AND entity_type = $` + strconv.Itoa(len(args))
	}
	if f.Tag != "" {
		args = append(args, f.Tag)
		query += ` AND $` + strconv.Itoa(len(args)) + ` = ANY(tags)`
	}
	if f.Source != "" {
		args = append(args, f.Source)
		query += ` AND $` + strconv.Itoa(len(args)) + ` = ANY(sources)`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListEnabled retrieves every enabled dataset regardless of owner. The
// scheduler uses it to decide what to quick-check.
func (r *DatasetRepository) ListEnabled(ctx context.Context) ([]*dataset.Dataset, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		WHERE is_enabled
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled datasets: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *DatasetRepository) scanAll(rows pgx.Rows) ([]*dataset.Dataset, error) {
	var datasets []*dataset.Dataset
	for rows.Next() {
		var d dataset.Dataset
		if err := rows.Scan(
			&d.ID, &d.OwnerTenantID, &d.Name, &d.EntityType, &d.Extractor,
			&d.Tags, &d.Sources, &d.Config, &d.IsEnabled, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, &d)
	}

	return datasets, rows.Err()
}

// Update updates a dataset's mutable fields
func (r *DatasetRepository) Update(ctx context.Context, d *dataset.Dataset) error {
	result, err := r.db.Exec(ctx, `
		UPDATE datasets
		SET name = $2, entity_type = $3, extractor = $4, tags = $5, sources = $6, config = $7, is_enabled = $8, updated_at = $9
		WHERE id = $1
	`,
		d.ID, d.Name, d.EntityType, d.Extractor, d.Tags, d.Sources, d.Config, d.IsEnabled, d.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}

	if result.RowsAffected() == 0 {
		return dataset.ErrDatasetNotFound
	}

	return nil
}
