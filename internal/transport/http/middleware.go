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
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/observability/logger"
	"github.com/harvestd/harvestd/internal/observability/metrics"
	"github.com/harvestd/harvestd/internal/tenant"
)

// Tenant Context Principles:
// 1. Tenant context is derived EXCLUSIVELY from the API credential.
// 2. No header, query parameter, or body field may select a tenant.
// 3. Every data read below the middleware is scoped to the resolved tenant.

// LoggingMiddleware logs HTTP requests and records request metrics when a
// meter is configured.
func LoggingMiddleware(meter *metrics.Meter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Log request start
			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				elapsed := time.Since(start)
				meter.RecordRequest(r.Context(), r.Method, r.URL.Path, ww.Status(), elapsed)
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(elapsed.Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// APIKeyMiddleware resolves the X-API-Key header to a tenant and stores it
// in the request context. Requests without a valid credential fail closed;
// a disabled tenant is rejected identically to an unknown key so probing
// cannot distinguish the two.
func (h *Handler) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "X-API-Key header is required")
			return
		}

		t, err := h.tenantService.Authenticate(r.Context(), apiKey)
		if err != nil {
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypeAPIKeyRejected,
				Resource:  "api_key",
				IPAddress: clientAddr(r),
				UserAgent: r.UserAgent(),
				Metadata:  map[string]any{"reason": rejectionReason(err)},
			})
			respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t)))
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, tenant.ErrTenantDisabled):
		return "tenant_disabled"
	case errors.Is(err, tenant.ErrInvalidAPIKey):
		return "invalid_key"
	default:
		return "error"
	}
}

// RequireTenant enforces that an authenticated tenant is present.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetTenant(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BootstrapMiddleware guards tenant provisioning with a static deployment
// token. An empty configured token disables the endpoint entirely.
func (h *Handler) BootstrapMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.bootstrapToken == "" {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		got := r.Header.Get("X-Bootstrap-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.bootstrapToken)) != 1 {
			slog.WarnContext(r.Context(), "bootstrap token rejected",
				logger.RemoteAddr(r.RemoteAddr),
			)
			respondError(w, http.StatusUnauthorized, "invalid bootstrap token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
