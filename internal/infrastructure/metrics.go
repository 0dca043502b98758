package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// PipelineMetrics holds the report pipeline instruments
type PipelineMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Pipeline metrics
	RunsTotal     metric.Int64Counter
	RunDuration   metric.Float64Histogram
	RunErrors     metric.Int64Counter
	StageDuration metric.Float64Histogram
	ParseWarnings metric.Int64Counter
	JoinDropped   metric.Int64Counter
	JoinAmbiguous metric.Int64Counter
	Undefined     metric.Int64Counter

	// Source metrics
	SourceLoads      metric.Int64Counter
	SourceLoadErrors metric.Int64Counter
	SourceRows       metric.Int64Histogram
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&m.RunsTotal, "pipeline_runs_total", "Total number of report pipeline runs"},
		{&m.RunErrors, "pipeline_run_errors_total", "Total number of failed report pipeline runs"},
		{&m.ParseWarnings, "pipeline_parse_warnings_total", "Numeric cells defaulted to zero"},
		{&m.JoinDropped, "pipeline_join_dropped_total", "Rows left out of the funding to productivity join"},
		{&m.JoinAmbiguous, "pipeline_join_ambiguous_total", "Join tokens with several candidate rows"},
		{&m.Undefined, "pipeline_undefined_metrics_total", "Ratios with a zero denominator"},
		{&m.SourceLoads, "source_loads_total", "Total number of source table loads"},
		{&m.SourceLoadErrors, "source_load_errors_total", "Total number of failed source table loads"},
		{&m.CacheHits, "source_cache_hits_total", "Total number of source cache hits"},
		{&m.CacheMisses, "source_cache_misses_total", "Total number of source cache misses"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.HTTPRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&m.RunDuration, "pipeline_run_duration_seconds", "Report pipeline run duration in seconds"},
		{&m.StageDuration, "pipeline_stage_duration_seconds", "Report pipeline stage duration in seconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, err
		}
	}

	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.SourceRows, err = meter.Int64Histogram(
		"source_rows",
		metric.WithDescription("Rows per loaded source table"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "failure")
	}
	return attribute.String("status", "success")
}

func errorType(err error) string {
	if t := apperrors.TypeOf(err); t != "" {
		return string(t)
	}
	return "INTERNAL"
}

// RecordRun records one pipeline run
func (m *PipelineMetrics) RecordRun(ctx context.Context, report string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("report", report)}

	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.RunDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(append(attrs, status(err))...))
	if err != nil {
		m.RunErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", errorType(err)))...))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("pipeline.metrics_recorded",
			trace.WithAttributes(
				attribute.String("report", report),
				attribute.Bool("success", err == nil),
				attribute.Float64("duration_seconds", duration.Seconds()),
			),
		)
	}
}

// RecordStage records one stage of a pipeline run
func (m *PipelineMetrics) RecordStage(ctx context.Context, report, stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("report", report),
		attribute.String("stage", stage),
		status(err),
	))
}

// RecordDiagnostics counts the non-fatal conditions of a finished run
func (m *PipelineMetrics) RecordDiagnostics(ctx context.Context, report string, diag domain.Diagnostics, join *domain.JoinStats) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("report", report))

	m.ParseWarnings.Add(ctx, int64(len(diag.ParseWarnings)), attrs)
	m.JoinAmbiguous.Add(ctx, int64(len(diag.JoinNotices)), attrs)
	m.Undefined.Add(ctx, int64(len(diag.Undefined)), attrs)
	if join != nil {
		m.JoinDropped.Add(ctx, int64(join.UnmatchedFunding), metric.WithAttributes(
			attribute.String("report", report), attribute.String("side", "funding")))
		m.JoinDropped.Add(ctx, int64(join.UnmatchedProductivity), metric.WithAttributes(
			attribute.String("report", report), attribute.String("side", "productivity")))
	}
}

// RecordHTTPRequest records a served request
func (m *PipelineMetrics) RecordHTTPRequest(ctx context.Context, method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", code),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// SourceLoaded records a load that reached the underlying source
func (m *PipelineMetrics) SourceLoaded(ctx context.Context, id domain.SourceID, rows int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", id.String()), status(err))
	m.SourceLoads.Add(ctx, 1, attrs)
	if err != nil {
		m.SourceLoadErrors.Add(ctx, 1, attrs)
		return
	}
	m.SourceRows.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("source", id.String())))
}

// CacheHit records a table served from the freshness cache
func (m *PipelineMetrics) CacheHit(ctx context.Context, id domain.SourceID) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("source", id.String())))
}

// CacheMiss records a table that had to be loaded
func (m *PipelineMetrics) CacheMiss(ctx context.Context, id domain.SourceID) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("source", id.String())))
}
