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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harvestd/harvestd/internal/item"
	"github.com/harvestd/harvestd/internal/pagination"
)

const itemColumns = `id, dataset_id, tenant_id, entity_type, tags, source, url, canonical_url, hash, published_at, observed_at, created_at, data`

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// ItemRepository implements item.Repository
type ItemRepository struct {
	db Querier
}

// NewItemRepository creates a new item repository
func NewItemRepository(db Querier) *ItemRepository {
	return &ItemRepository{db: db}
}

// Insert creates a new item row. A concurrent writer that creates the same
// (dataset_id, url) first surfaces as ErrDuplicateURL so the caller can
// fall back to the update path.
func (r *ItemRepository) Insert(ctx context.Context, it *item.Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO items (id, dataset_id, tenant_id, entity_type, tags, source, url, canonical_url, hash, published_at, observed_at, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		it.ID, it.DatasetID, it.TenantID, it.EntityType, it.Tags, it.Source,
		it.URL, it.CanonicalURL, it.Hash, it.PublishedAt, it.ObservedAt, it.CreatedAt, it.Data,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return item.ErrDuplicateURL
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}

	return nil
}

// GetByDatasetURL retrieves an item by its dedup key
func (r *ItemRepository) GetByDatasetURL(ctx context.Context, datasetID, url string) (*item.Item, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE dataset_id = $1 AND url = $2
	`, datasetID, url))
}

// UpdatePayload rewrites the mutable fields of an existing row. Identity and
// created_at stay fixed so pagination over creation order is stable.
func (r *ItemRepository) UpdatePayload(ctx context.Context, it *item.Item) error {
	result, err := r.db.Exec(ctx, `
		UPDATE items
		SET entity_type = $2, tags = $3, source = $4, canonical_url = $5, hash = $6, published_at = $7, observed_at = $8, data = $9
		WHERE id = $1
	`,
		it.ID, it.EntityType, it.Tags, it.Source, it.CanonicalURL,
		it.Hash, it.PublishedAt, it.ObservedAt, it.Data,
	)

	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return item.ErrItemNotFound
	}

	return nil
}

// TouchObserved bumps observed_at for an unchanged re-observation
func (r *ItemRepository) TouchObserved(ctx context.Context, itemID string, observedAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE items
		SET observed_at = $2
		WHERE id = $1
	`, itemID, observedAt)

	if err != nil {
		return fmt.Errorf("failed to touch item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return item.ErrItemNotFound
	}

	return nil
}

// GetVisible retrieves an item only if the tenant may see it. Items inherit
// visibility from their dataset: a nil tenant_id marks a shared row.
func (r *ItemRepository) GetVisible(ctx context.Context, itemID, tenantID string) (*item.Item, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND (tenant_id IS NULL OR tenant_id = $2)
	`, itemID, tenantID))
}

// ListVisible retrieves visible items most recently observed first, fetching
// one row beyond the limit so the caller can detect whether more pages
// exist. The cursor predicate uses a row-value comparison so rows that share
// an observed_at are split deterministically by id.
func (r *ItemRepository) ListVisible(ctx context.Context, tenantID string, f item.ListFilter, limit int, cur *pagination.Cursor) ([]*item.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE (tenant_id IS NULL OR tenant_id = $1)`
	args := []any{tenantID}

	if f.DatasetID != "" {
		args = append(args, f.DatasetID)
		query += ` AND dataset_id = $` + strconv.Itoa(len(args))
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
		query += ` AND source = $` + strconv.Itoa(len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += ` AND observed_at >= $` + strconv.Itoa(len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += ` AND observed_at < $` + strconv.Itoa(len(args))
	}
	if cur != nil {
		args = append(args, cur.Primary, cur.Tiebreak)
		query += fmt.Sprintf(` AND (observed_at, id) < ($%d, $%d)`, len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += ` ORDER BY observed_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		var it item.Item
		if err := rows.Scan(
			&it.ID, &it.DatasetID, &it.TenantID, &it.EntityType, &it.Tags, &it.Source,
			&it.URL, &it.CanonicalURL, &it.Hash, &it.PublishedAt, &it.ObservedAt, &it.CreatedAt, &it.Data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, &it)
	}

	return items, rows.Err()
}

func (r *ItemRepository) scanOne(row pgx.Row) (*item.Item, error) {
	var it item.Item

	err := row.Scan(
		&it.ID, &it.DatasetID, &it.TenantID, &it.EntityType, &it.Tags, &it.Source,
		&it.URL, &it.CanonicalURL, &it.Hash, &it.PublishedAt, &it.ObservedAt, &it.CreatedAt, &it.Data,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, item.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return &it, nil
}
