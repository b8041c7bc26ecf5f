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
	"net/http"
	"strconv"

	"github.com/harvestd/harvestd/internal/id"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/pagination"
)

// CreateJobRequest represents a job trigger
type CreateJobRequest struct {
	DatasetID string `json:"dataset_id" binding:"required"`
	Mode      string `json:"mode" example:"full"`
}

// CreateJob enqueues an extraction job
// @Summary Create Job
// @Description Trigger an extraction run against a visible, enabled dataset
// @Tags Jobs
// @Accept json
// @Produce json
// @Security APIKeyAuth
// @Param request body CreateJobRequest true "Job Data"
// @Success 201 {object} job.Job
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DatasetID == "" {
		respondError(w, http.StatusBadRequest, "dataset_id is required")
		return
	}

	if !id.Valid(req.DatasetID) {
		// Malformed IDs match nothing; report them like missing rows.
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	j, err := h.jobService.Create(r.Context(), t, req.DatasetID, req.Mode)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, j)
}

// ListJobs lists jobs on visible datasets with keyset pagination
// @Summary List Jobs
// @Description List jobs newest first; use the returned cursor to fetch the next page
// @Tags Jobs
// @Produce json
// @Security APIKeyAuth
// @Param dataset_id query string false "Dataset filter"
// @Param status query string false "Status filter"
// @Param limit query int false "Page size (max 100)"
// @Param cursor query string false "Opaque page cursor"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	f := job.ListFilter{
		DatasetID: r.URL.Query().Get("dataset_id"),
		Status:    job.Status(r.URL.Query().Get("status")),
	}
	if f.DatasetID != "" && !id.Valid(f.DatasetID) {
		// A filter on an ID that cannot exist matches nothing.
		respondJSON(w, http.StatusOK, map[string]any{
			"jobs":        []*job.Job{},
			"next_cursor": nil,
		})
		return
	}

	page, err := h.jobService.FindAll(r.Context(), t, f, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []*job.Job{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"jobs":        page.Items,
		"next_cursor": page.NextCursor,
	})
}

// GetJob retrieves a job on a dataset visible to the tenant
// @Summary Get Job
// @Description Retrieve a job on a visible dataset
// @Tags Jobs
// @Produce json
// @Security APIKeyAuth
// @Param jobID path string true "Job ID"
// @Success 200 {object} job.Job
// @Failure 404 {object} map[string]string
// @Router /jobs/{jobID} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	jobID, ok := pathID(r, "jobID")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	j, err := h.jobService.FindOne(r.Context(), t, jobID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, j)
}

// CancelJob requests cancellation of a queued or running job
// @Summary Cancel Job
// @Description Cancel a QUEUED job immediately; a RUNNING job stops at its next checkpoint
// @Tags Jobs
// @Produce json
// @Security APIKeyAuth
// @Param jobID path string true "Job ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /jobs/{jobID}/cancel [post]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	t := GetTenant(r.Context())

	jobID, ok := pathID(r, "jobID")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.jobService.Cancel(r.Context(), t, jobID); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "cancellation requested",
	})
}

// parseLimit reads the optional limit query parameter. Absent means the
// default page size; an explicit zero or negative value is the caller's
// error and is rejected downstream.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return pagination.DefaultLimit, nil
	}
	return strconv.Atoi(raw)
}
