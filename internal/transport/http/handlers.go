// @title Harvestd API
// @version 1.0.0
// @description Multi-tenant data extraction platform
// @termsOfService http://swagger.io/terms/

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /v1

// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/id"
	"github.com/harvestd/harvestd/internal/item"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/observability/metrics"
	"github.com/harvestd/harvestd/internal/pagination"
	"github.com/harvestd/harvestd/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenantService  *tenant.Service
	datasetService *dataset.Service
	jobService     *job.Service
	itemService    *item.Service
	auditLogger    audit.Logger
	bootstrapToken string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenantService *tenant.Service,
	datasetService *dataset.Service,
	jobService *job.Service,
	itemService *item.Service,
	auditLogger audit.Logger,
	bootstrapToken string,
) *Handler {
	return &Handler{
		tenantService:  tenantService,
		datasetService: datasetService,
		jobService:     jobService,
		itemService:    itemService,
		auditLogger:    auditLogger,
		bootstrapToken: bootstrapToken,
	}
}

// NewRouter creates a new HTTP router. meter may be nil when request
// metrics are disabled.
func NewRouter(h *Handler, rateLimiter *RateLimiter, meter *metrics.Meter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware(meter))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		// Deployment bootstrap: provisioning the first tenants happens
		// before any API key exists, so this is token-guarded instead of
		// key-guarded.
		r.With(h.BootstrapMiddleware).Post("/tenants", h.CreateTenant)

		// Tenant-scoped endpoints (FAIL-CLOSED)
		r.Group(func(r chi.Router) {
			r.Use(h.APIKeyMiddleware)
			r.Use(RequireTenant)

			r.Route("/datasets", func(r chi.Router) {
				r.Post("/", h.CreateDataset)
				r.Get("/", h.ListDatasets)
				r.Get("/{datasetID}", h.GetDataset)
				r.Patch("/{datasetID}", h.UpdateDataset)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.CreateJob)
				r.Get("/", h.ListJobs)
				r.Get("/{jobID}", h.GetJob)
				r.Post("/{jobID}/cancel", h.CancelJob)
			})

			r.Route("/items", func(r chi.Router) {
				r.Get("/", h.ListItems)
				r.Get("/{itemID}", h.GetItem)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "harvestd",
	})
}

// respondDomainError maps domain sentinel errors to HTTP statuses. Missing
// and invisible resources are indistinguishable on purpose: both are 404.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dataset.ErrDatasetNotFound),
		errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, item.ErrItemNotFound),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, dataset.ErrNotOwner):
		respondError(w, http.StatusNotFound, "not found")

	case errors.Is(err, pagination.ErrInvalidCursor):
		respondError(w, http.StatusBadRequest, "invalid cursor")
	case errors.Is(err, pagination.ErrInvalidLimit):
		respondError(w, http.StatusBadRequest, "invalid limit")
	case errors.Is(err, job.ErrInvalidStatusFilter):
		respondError(w, http.StatusBadRequest, "invalid status filter")
	case errors.Is(err, job.ErrInvalidMode),
		errors.Is(err, dataset.ErrMissingField):
		respondError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, dataset.ErrDatasetDisabled):
		respondError(w, http.StatusConflict, "dataset is disabled")
	case errors.Is(err, tenant.ErrTenantDisabled):
		respondError(w, http.StatusForbidden, "tenant is disabled")
	case errors.Is(err, job.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())

	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// pathID extracts a UUID path parameter. Malformed values match nothing,
// so they are reported exactly like unknown but well-formed IDs.
func pathID(r *http.Request, name string) (string, bool) {
	v := chi.URLParam(r, name)
	return v, id.Valid(v)
}
