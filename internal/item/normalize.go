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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/id"
)

var ErrMissingURL = errors.New("raw record has no url")

// Normalize turns a raw extractor record into an Item candidate for its
// dataset. Defaults are filled from the dataset (entity type, source from
// the URL host) and the content hash is computed over the payload.
func Normalize(d *dataset.Dataset, rec RawRecord, now time.Time) (*Item, error) {
	if rec.URL == "" {
		return nil, ErrMissingURL
	}

	entityType := rec.EntityType
	if entityType == "" {
		entityType = d.EntityType
	}

	source := rec.Source
	if source == "" {
		if u, err := url.Parse(rec.URL); err == nil {
			source = u.Host
		}
	}

	// The tags column is NOT NULL; a runner that emits no tags must not
	// produce a NULL array.
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record payload: %w", err)
	}

	it := &Item{
		ID:          id.NewUUIDv7(),
		DatasetID:   d.ID,
		TenantID:    d.OwnerTenantID,
		EntityType:  entityType,
		Tags:        tags,
		Source:      source,
		URL:         rec.URL,
		Hash:        PayloadHash(rec.Data),
		PublishedAt: rec.PublishedAt,
		ObservedAt:  now,
		CreatedAt:   now,
		Data:        data,
	}
	if rec.CanonicalURL != "" {
		canonical := rec.CanonicalURL
		it.CanonicalURL = &canonical
	}
	return it, nil
}

// PayloadHash fingerprints a normalized payload. encoding/json writes map
// keys in sorted order, so equal payloads hash equally regardless of the
// order an extractor populated them in.
func PayloadHash(data map[string]any) string {
	encoded, err := json.Marshal(data)
	if err != nil {
		// Maps of JSON-compatible values cannot fail to encode; guard anyway.
		encoded = []byte(fmt.Sprintf("%v", data))
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
