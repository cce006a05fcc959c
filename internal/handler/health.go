package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// HealthHandler probes the database and, when configured, Redis. Only the database is required.
type HealthHandler struct {
	DB    ports.HealthChecker
	Redis ports.HealthChecker
}

func (h HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	status, code := "ok", http.StatusOK
	if err := h.DB.Health(ctx); err != nil {
		checks["database"] = "down"
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if h.Redis != nil {
		checks["redis"] = "ok"
		// replay protection is lost but postings still work
		if err := h.Redis.Health(ctx); err != nil {
			checks["redis"] = "down"
			if code == http.StatusOK {
				status = "degraded"
			}
		}
	}
	writeRawJSON(w, code, map[string]any{"status": status, "checks": checks})
}
