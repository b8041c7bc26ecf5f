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

package http

import (
	"net/http"
	"time"

	"github.com/harvestd/harvestd/internal/id"
	"github.com/harvestd/harvestd/internal/item"
)

// ListItems lists visible items with keyset pagination
// @Summary List Items
// @Description List normalized items most recently observed first
// @Tags Items
// @Produce json
// @Security APIKeyAuth
// @Param dataset_id query string false "Dataset filter"
// @Param entity_type query string false "Entity type filter"
// @Param tag query string false "Tag filter"
// @Param source query string false "Source filter"
// @Param since query string false "Observed-at lower bound (RFC 3339)"
// @Param until query string false "Observed-at upper bound (RFC 3339)"
// @Param limit query int false "Page size (max 100)"
// @Param cursor query string false "Opaque page cursor"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	f := item.ListFilter{
		DatasetID:  r.URL.Query().Get("dataset_id"),
		EntityType: r.URL.Query().Get("entity_type"),
		Tag:        r.URL.Query().Get("tag"),
		Source:     r.URL.Query().Get("source"),
	}
	if f.DatasetID != "" && !id.Valid(f.DatasetID) {
		// A filter on an ID that cannot exist matches nothing.
		respondJSON(w, http.StatusOK, map[string]any{
			"items":       []*item.Item{},
			"next_cursor": nil,
		})
		return
	}

	f.Since, err = parseTimeParam(r, "since")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}
	f.Until, err = parseTimeParam(r, "until")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid until timestamp")
		return
	}

	page, err := h.itemService.FindAll(r.Context(), t, f, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []*item.Item{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items":       page.Items,
		"next_cursor": page.NextCursor,
	})
}

// GetItem retrieves one visible item
// @Summary Get Item
// @Description Retrieve an item the tenant may see
// @Tags Items
// @Produce json
// @Security APIKeyAuth
// @Param itemID path string true "Item ID"
// @Success 200 {object} item.Item
// @Failure 404 {object} map[string]string
// @Router /items/{itemID} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	itemID, ok := pathID(r, "itemID")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	it, err := h.itemService.FindOne(r.Context(), t, itemID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, it)
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
