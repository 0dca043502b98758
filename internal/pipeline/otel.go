package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ebidash/internal/infrastructure"
	"ebidash/pkg/contracts/domain"
)

const (
	TracerName = "ebidash.pipeline"
)

// Stage names used for spans and the stage duration histogram
const (
	StageLoad      = "load"
	StageFunding   = "funding"
	StageProjects  = "projects"
	StageJoin      = "join"
	StageTables    = "tables"
	StageAggregate = "aggregate"
	StageSearch    = "search"
)

// runTracer instruments one pipeline run with spans and pipeline metrics
type runTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

func newRunTracer(tracer trace.Tracer, metrics *infrastructure.PipelineMetrics) *runTracer {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &runTracer{tracer: tracer, metrics: metrics}
}

// traceRun opens the span covering a whole run
func (rt *runTracer) traceRun(ctx context.Context, runID string, spec *ReportSpec, window domain.YearRange) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.String("pipeline.report", spec.Name),
			attribute.Int("pipeline.start_year", window.Start),
			attribute.Int("pipeline.end_year", window.End),
			attribute.Int("pipeline.aggregations", len(spec.Aggregations)),
		),
	)
}

// stage runs fn inside a child span and records its duration
func (rt *runTracer) stage(ctx context.Context, report, name string, fn func(context.Context) error) error {
	ctx, span := rt.tracer.Start(ctx, fmt.Sprintf("pipeline.stage.%s", name),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.report", report),
			attribute.String("stage.name", name),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	rt.metrics.RecordStage(ctx, report, name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// finish closes the run span and records the run metrics
func (rt *runTracer) finish(ctx context.Context, span trace.Span, report string, duration time.Duration, rep *domain.Report, err error) {
	defer span.End()
	rt.metrics.RecordRun(ctx, report, duration, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	rt.metrics.RecordDiagnostics(ctx, report, rep.Diagnostics, rep.Join)
	span.SetAttributes(
		attribute.Float64("pipeline.duration_seconds", duration.Seconds()),
		attribute.Int("pipeline.aggregates", len(rep.Aggregates)),
		attribute.Int("pipeline.diagnostics", rep.Diagnostics.Count()),
	)
	span.SetStatus(codes.Ok, "")
}
