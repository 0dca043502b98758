package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "ebidash/internal/errors"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts/domain"
)

// SourceCache is the part of the source cache exposed over HTTP
type SourceCache interface {
	Stats() sources.CacheStats
	Invalidate(ids ...domain.SourceID)
}

// SourcesHandler reports and resets the ledger cache
type SourcesHandler struct {
	cache        SourceCache
	configured   []string
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// SourcesStatus is the response of GET /api/sources
type SourcesStatus struct {
	Configured []string           `json:"configured"`
	Cache      sources.CacheStats `json:"cache"`
}

// RefreshResult is the response of POST /api/sources/refresh
type RefreshResult struct {
	Invalidated []string `json:"invalidated"`
}

// NewSourcesHandler creates a sources handler
func NewSourcesHandler(cache SourceCache, configured []string, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *SourcesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourcesHandler{
		cache:        cache,
		configured:   configured,
		logger:       logger.With(slog.String("handler", "sources")),
		errorHandler: errorHandler,
	}
}

// Routes returns the source routes
func (h *SourcesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.Status)
	r.Post("/refresh", h.Refresh)
	return r
}

// Status handles GET /api/sources
func (h *SourcesHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SourcesStatus{Configured: h.configured, Cache: h.cache.Stats()})
}

// Refresh handles POST /api/sources/refresh?source=funding. Without a
// source parameter every cached ledger is dropped.
func (h *SourcesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var ids []domain.SourceID
	var names []string
	for _, s := range r.URL.Query()["source"] {
		id := domain.SourceID(s)
		if !id.Known() {
			h.errorHandler.HandleError(w, r, apierrors.NewValidationErrors([]apierrors.ValidationError{
				{Field: "source", Message: "unknown source " + s},
			}))
			return
		}
		ids = append(ids, id)
		names = append(names, s)
	}
	if len(ids) == 0 {
		for _, id := range domain.KnownSources {
			names = append(names, id.String())
		}
	}

	h.cache.Invalidate(ids...)
	h.logger.InfoContext(r.Context(), "source cache invalidated", slog.Any("sources", names))
	render.JSON(w, r, RefreshResult{Invalidated: names})
}
