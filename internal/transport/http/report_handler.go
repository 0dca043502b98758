package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ebidash/internal/aggregate"
	apierrors "ebidash/internal/errors"
	"ebidash/internal/exporter"
	"ebidash/internal/middleware"
	"ebidash/internal/pipeline"
	"ebidash/pkg/contracts/domain"
)

// ReportService is what the report handler needs from the service layer
type ReportService interface {
	List(ctx context.Context) []pipeline.Summary
	Describe(ctx context.Context, name string) (pipeline.Summary, error)
	DefaultRange(name string) (domain.YearRange, error)
	Generate(ctx context.Context, name string, req pipeline.Request) (*domain.Report, error)
}

// ReportHandler serves the report catalog
type ReportHandler struct {
	service      ReportService
	validator    *middleware.ValidationMiddleware
	exporter     *exporter.Exporter
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// ReportList is the catalog listing response
type ReportList struct {
	Reports []pipeline.Summary `json:"reports"`
	Count   int                `json:"count"`
}

// NewReportHandler creates a report handler
func NewReportHandler(
	service ReportService,
	validator *middleware.ValidationMiddleware,
	exp *exporter.Exporter,
	logger *slog.Logger,
	errorHandler *apierrors.ErrorHandler,
) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{
		service:      service,
		validator:    validator,
		exporter:     exp,
		logger:       logger.With(slog.String("handler", "report")),
		errorHandler: errorHandler,
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListReports)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.GetReport)
		r.Get("/spec", h.DescribeReport)
		r.Get("/series/{aggregate}", h.GetSeries)
	})
	return r
}

// ListReports handles GET /api/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports := h.service.List(r.Context())
	render.JSON(w, r, ReportList{Reports: reports, Count: len(reports)})
}

// DescribeReport handles GET /api/reports/{name}/spec
func (h *ReportHandler) DescribeReport(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Describe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// GetReport handles GET /api/reports/{name}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	q, ok := h.validator.ParseReportQuery(w, r, name)
	if !ok {
		return
	}
	format, err := exporter.ParseFormat(q.Format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	rep, ok := h.generate(w, r, name, q)
	if !ok {
		return
	}

	if format == exporter.FormatJSON {
		render.JSON(w, r, rep)
		return
	}
	h.writeExport(w, r, format, rep)
}

// SeriesResponse is one aggregate flattened into chart points
type SeriesResponse struct {
	Report    string                  `json:"report"`
	Aggregate string                  `json:"aggregate"`
	Range     domain.YearRange        `json:"range"`
	Points    []aggregate.SeriesPoint `json:"points"`
}

// GetSeries handles GET /api/reports/{name}/series/{aggregate}
func (h *ReportHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	aggName := chi.URLParam(r, "aggregate")

	q, ok := h.validator.ParseReportQuery(w, r, name)
	if !ok {
		return
	}
	rep, ok := h.generate(w, r, name, q)
	if !ok {
		return
	}

	res := rep.Aggregate(aggName)
	if res == nil {
		h.errorHandler.HandleError(w, r,
			apierrors.NewNotFoundError(fmt.Sprintf("aggregate %q of report %s", aggName, name)))
		return
	}
	render.JSON(w, r, SeriesResponse{
		Report:    rep.Name,
		Aggregate: aggName,
		Range:     rep.Range,
		Points:    aggregate.Series(res),
	})
}

func (h *ReportHandler) generate(w http.ResponseWriter, r *http.Request, name string, q middleware.ReportQuery) (*domain.Report, bool) {
	fallback, err := h.service.DefaultRange(name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	rep, err := h.service.Generate(r.Context(), name, pipeline.Request{
		Range: q.Range(fallback),
		Query: q.Query,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return rep, true
}

// writeExport buffers the encoded report so a failed export still gets a
// problem response instead of a truncated file
func (h *ReportHandler) writeExport(w http.ResponseWriter, r *http.Request, format exporter.Format, rep *domain.Report) {
	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, format, rep); err != nil {
		h.logger.ErrorContext(r.Context(), "report export failed",
			slog.String("report", rep.Name),
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, fmt.Errorf("export %s as %s: %w", rep.Name, format, err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, format.FileName(rep.Name, rep.Range.String())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write export",
			slog.String("report", rep.Name),
			slog.String("error", err.Error()))
	}
}
