package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"ebidash/internal/services"
)

// HealthHandler serves the probes under /api/health and the build info at
// /api/version.
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{service: service, logger: logger.With(slog.String("handler", "health"))}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck answers 503 while the catalog is empty or a report reads a
// source with no configured location.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != services.StatusReady {
		attrs := make([]any, 0, len(status.Services))
		for name, sh := range status.Services {
			if sh.Status != services.StatusReady {
				attrs = append(attrs, slog.String(name, sh.Message))
			}
		}
		h.logger.WarnContext(r.Context(), "not ready", attrs...)
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
