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
	"encoding/json"
	"time"
)

// Item is one normalized, deduplicated record produced by extraction.
// The pair (DatasetID, URL) is unique: re-observation of the same URL
// updates the existing row instead of inserting a new one.
type Item struct {
	ID           string          `json:"id"`
	DatasetID    string          `json:"dataset_id"`
	TenantID     *string         `json:"tenant_id,omitempty"`
	EntityType   string          `json:"entity_type"`
	Tags         []string        `json:"tags"`
	Source       string          `json:"source"`
	URL          string          `json:"url"`
	CanonicalURL *string         `json:"canonical_url,omitempty"`
	Hash         string          `json:"hash"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
	ObservedAt   time.Time       `json:"observed_at"`
	CreatedAt    time.Time       `json:"created_at"`
	Data         json.RawMessage `json:"data"`
}

// RawRecord is what an extractor emits: one observation of a page, before
// normalization. Data is the opaque payload whose shape is described by
// EntityType; the platform never inspects it beyond hashing.
type RawRecord struct {
	EntityType   string
	URL          string
	CanonicalURL string
	Source       string
	Tags         []string
	PublishedAt  *time.Time
	Data         map[string]any
}

// IngestResult classifies the outcome of one ingest call.
type IngestResult string

const (
	ResultCreated   IngestResult = "created"
	ResultUpdated   IngestResult = "updated"
	ResultUnchanged IngestResult = "unchanged"
)

// Decide applies the dedup rule to an existing row and a freshly
// normalized candidate for the same (dataset, URL) key.
func Decide(existing *Item, candidate *Item) IngestResult {
	if existing == nil {
		return ResultCreated
	}
	if existing.Hash == candidate.Hash {
		return ResultUnchanged
	}
	return ResultUpdated
}
