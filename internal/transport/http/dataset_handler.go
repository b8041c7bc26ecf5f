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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/observability/logger"
)

// CreateDatasetRequest represents dataset registration data
type CreateDatasetRequest struct {
	Name       string          `json:"name" binding:"required" example:"tech-news"`
	EntityType string          `json:"entity_type" binding:"required" example:"article.v1"`
	Extractor  string          `json:"extractor" binding:"required" example:"json_feed"`
	Tags       []string        `json:"tags"`
	Sources    []string        `json:"sources"`
	Config     json.RawMessage `json:"config"`
}

// CreateDataset registers a dataset owned by the calling tenant
// @Summary Create Dataset
// @Description Register a new extraction configuration
// @Tags Datasets
// @Accept json
// @Produce json
// @Security APIKeyAuth
// @Param request body CreateDatasetRequest true "Dataset Data"
// @Success 201 {object} dataset.Dataset
// @Failure 400 {object} map[string]string
// @Router /datasets [post]
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	var req CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := req.Config
	if cfg == nil {
		cfg = json.RawMessage(`{}`)
	}

	d, err := h.datasetService.Create(r.Context(), t, dataset.CreateParams{
		Name:       req.Name,
		EntityType: req.EntityType,
		Extractor:  req.Extractor,
		Tags:       req.Tags,
		Sources:    req.Sources,
		Config:     cfg,
	})
	if err != nil {
		if !errors.Is(err, dataset.ErrMissingField) {
			slog.ErrorContext(r.Context(), "failed to create dataset",
				logger.Error(err),
				logger.TenantID(t.ID),
			)
		}
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, d)
}

// ListDatasets lists datasets visible to the tenant
// @Summary List Datasets
// @Description List shared datasets plus the tenant's own, with optional filters
// @Tags Datasets
// @Produce json
// @Security APIKeyAuth
// @Param entity_type query string false "Entity type filter"
// @Param tag query string false "Tag filter"
// @Param source query string false "Source filter"
// @Param mine query bool false "Only datasets owned by the caller"
// @Success 200 {array} dataset.Dataset
// @Router /datasets [get]
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	f := dataset.ListFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		Tag:        r.URL.Query().Get("tag"),
		Source:     r.URL.Query().Get("source"),
		MineOnly:   r.URL.Query().Get("mine") == "true",
	}

	datasets, err := h.datasetService.List(r.Context(), t, f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if datasets == nil {
		datasets = []*dataset.Dataset{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

// GetDataset retrieves one visible dataset
// @Summary Get Dataset
// @Description Retrieve a dataset the tenant may see
// @Tags Datasets
// @Produce json
// @Security APIKeyAuth
// @Param datasetID path string true "Dataset ID"
// @Success 200 {object} dataset.Dataset
// @Failure 404 {object} map[string]string
// @Router /datasets/{datasetID} [get]
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	datasetID, ok := pathID(r, "datasetID")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	d, err := h.datasetService.Get(r.Context(), t, datasetID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, d)
}

// UpdateDatasetRequest represents a partial dataset update
type UpdateDatasetRequest struct {
	Name       *string         `json:"name"`
	EntityType *string         `json:"entity_type"`
	Extractor  *string         `json:"extractor"`
	Tags       []string        `json:"tags"`
	Sources    []string        `json:"sources"`
	Config     json.RawMessage `json:"config"`
	IsEnabled  *bool           `json:"is_enabled"`
}

// UpdateDataset applies a partial update to an owned dataset
// @Summary Update Dataset
// @Description Patch a dataset; absent fields are left unchanged
// @Tags Datasets
// @Accept json
// @Produce json
// @Security APIKeyAuth
// @Param datasetID path string true "Dataset ID"
// @Param request body UpdateDatasetRequest true "Fields to change"
// @Success 200 {object} dataset.Dataset
// @Failure 404 {object} map[string]string
// @Router /datasets/{datasetID} [patch]
func (h *Handler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	datasetID, ok := pathID(r, "datasetID")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	var req UpdateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := h.datasetService.Update(r.Context(), t, datasetID, dataset.UpdatePatch{
		Name:       req.Name,
		EntityType: req.EntityType,
		Extractor:  req.Extractor,
		Tags:       req.Tags,
		Sources:    req.Sources,
		Config:     req.Config,
		IsEnabled:  req.IsEnabled,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, d)
}
