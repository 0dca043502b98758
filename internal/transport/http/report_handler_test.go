package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apierrors "ebidash/internal/errors"
	"ebidash/internal/exporter"
	"ebidash/internal/middleware"
	"ebidash/internal/pipeline"
	"ebidash/internal/services"
	"ebidash/internal/shared/testutil"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts"
)

func newTestRouter(t *testing.T, configured []string) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	catalog, err := pipeline.DefaultCatalog(pipeline.CatalogOptions{})
	require.NoError(t, err)
	runner := pipeline.NewRunner(sources.NewMemorySource(testutil.AllTables()), pipeline.WithLogger(logger))

	errorHandler := apierrors.NewErrorHandler(logger, false)
	reports := NewReportHandler(
		services.NewReportService(catalog, runner, logger),
		middleware.NewValidationMiddleware(logger, errorHandler),
		exporter.New(logger),
		logger,
		errorHandler,
	)
	health := NewHealthHandler(services.NewHealthService(contracts.GetVersionInfo(), catalog, configured, logger), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(errorHandler.NotFound)
	r.Mount("/api/reports", reports.Routes())
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/health/ready", health.ReadinessCheck)
	r.Get("/api/health/live", health.LivenessCheck)
	r.Get("/api/version", health.Version)
	r.Handle("/metrics", NewMetricsHandler(nil))
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestReportHandler_List(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := get(t, router, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ReportList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(body.Reports), body.Count)
	assert.GreaterOrEqual(t, body.Count, 11)

	names := make([]string, 0, body.Count)
	for _, s := range body.Reports {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, pipeline.ReportTopPIs)
	assert.Contains(t, names, pipeline.ReportSearch)
}

func TestReportHandler_Describe(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := get(t, router, "/api/reports/search/spec")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, pipeline.ReportSearch, summary.Name)
	assert.True(t, summary.Searchable)

	rec = get(t, router, "/api/reports/unknown/spec")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportHandler_GetReport(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "json with default window",
			target:     "/api/reports/top-pis",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, pipeline.ReportTopPIs, body["name"])
				window := body["range"].(map[string]any)
				assert.EqualValues(t, pipeline.DefaultStartYear, window["start"])
				assert.EqualValues(t, pipeline.DefaultEndYear, window["end"])
			},
		},
		{
			name:       "explicit window",
			target:     "/api/reports/top-pis?start=2016&end=2018",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				window := body["range"].(map[string]any)
				assert.EqualValues(t, 2016, window["start"])
				assert.EqualValues(t, 2018, window["end"])
			},
		},
		{
			name:       "search as csv",
			target:     "/api/reports/search?q=algae&format=csv",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, exporter.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="search_`)
				assert.Contains(t, strings.ToLower(rec.Body.String()), "algae")
			},
		},
		{
			name:       "xlsx workbook",
			target:     "/api/reports/top-pis?format=xlsx",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
				require.NoError(t, err)
				defer f.Close()
				assert.Contains(t, f.GetSheetList(), "top-pis")
			},
		},
		{
			name:       "inverted window",
			target:     "/api/reports/top-pis?start=2020&end=2010",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "query on report without search",
			target:     "/api/reports/top-pis?q=algae",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown format",
			target:     "/api/reports/top-pis?format=pdf",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "yearly series",
			target:     "/api/reports/funding-by-type/series/by-type?start=2016&end=2020",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body SeriesResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "by-type", body.Aggregate)
				require.NotEmpty(t, body.Points)
				for _, p := range body.Points {
					assert.True(t, body.Range.Contains(p.Year), "year %d outside window", p.Year)
				}
			},
		},
		{
			name:       "series of unknown aggregate",
			target:     "/api/reports/funding-by-type/series/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown report",
			target:     "/api/reports/no-such-report",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, rec.Header().Get("Content-Type"), "json")
				assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.target)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	all := []string{"funding", "productivity", "administrative", "berkeley", "ip", "portfolio"}

	t.Run("ready", func(t *testing.T) {
		router := newTestRouter(t, all)
		rec := get(t, router, "/api/health/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ready"`)
	})

	t.Run("not ready without sources", func(t *testing.T) {
		router := newTestRouter(t, []string{"funding"})
		rec := get(t, router, "/api/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "unconfigured sources")
	})

	t.Run("probes and version", func(t *testing.T) {
		router := newTestRouter(t, nil)
		assert.Equal(t, http.StatusOK, get(t, router, "/api/health").Code)
		assert.Contains(t, get(t, router, "/api/health/live").Body.String(), `"status":"alive"`)
		assert.Contains(t, get(t, router, "/api/version").Body.String(), contracts.Version)
	})
}

func TestMetricsHandler(t *testing.T) {
	rec := get(t, newTestRouter(t, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
