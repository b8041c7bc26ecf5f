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

package item

import (
	"context"
	"errors"
	"time"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/pagination"
	"github.com/harvestd/harvestd/internal/tenant"
)

// Service owns the idempotent ingestion rule and item querying.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new item service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Ingest applies the dedup rule for one observed record:
//
//   - no row for (dataset, url): insert, created
//   - row exists, identical hash: bump observed_at only, unchanged
//   - row exists, different hash: rewrite payload fields, updated
//
// Re-ingesting the same record any number of times converges to one stored
// row; only the first call reports created. created_at and row identity
// survive updates.
func (s *Service) Ingest(ctx context.Context, d *dataset.Dataset, rec RawRecord) (IngestResult, error) {
	candidate, err := Normalize(d, rec, s.now())
	if err != nil {
		return "", err
	}

	existing, err := s.repo.GetByDatasetURL(ctx, d.ID, candidate.URL)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return "", err
	}

	switch Decide(existing, candidate) {
	case ResultCreated:
		if err := s.repo.Insert(ctx, candidate); err != nil {
			if errors.Is(err, ErrDuplicateURL) {
				// Lost the insert race; the row exists now, retry as update.
				return s.Ingest(ctx, d, rec)
			}
			return "", err
		}
		return ResultCreated, nil

	case ResultUnchanged:
		if err := s.repo.TouchObserved(ctx, existing.ID, candidate.ObservedAt); err != nil {
			return "", err
		}
		return ResultUnchanged, nil

	default:
		candidate.ID = existing.ID
		candidate.CreatedAt = existing.CreatedAt
		if err := s.repo.UpdatePayload(ctx, candidate); err != nil {
			return "", err
		}
		return ResultUpdated, nil
	}
}

// FindOne returns one item the tenant may see, through its dataset's
// visibility.
func (s *Service) FindOne(ctx context.Context, t *tenant.Tenant, itemID string) (*Item, error) {
	return s.repo.GetVisible(ctx, itemID, t.ID)
}

// FindAll lists visible items ordered by (observed_at desc, id desc) with
// keyset pagination and optional filters.
func (s *Service) FindAll(ctx context.Context, t *tenant.Tenant, f ListFilter, limit int, cursor string) (pagination.Page[*Item], error) {
	var none pagination.Page[*Item]

	limit, err := pagination.ClampLimit(limit)
	if err != nil {
		return none, err
	}

	var cur *pagination.Cursor
	if cursor != "" {
		c, err := pagination.Decode(cursor)
		if err != nil {
			return none, err
		}
		cur = &c
	}

	rows, err := s.repo.ListVisible(ctx, t.ID, f, limit, cur)
	if err != nil {
		return none, err
	}

	return pagination.NewPage(rows, limit, func(it *Item) pagination.Cursor {
		return pagination.Cursor{Primary: it.ObservedAt, Tiebreak: it.ID}
	}), nil
}
