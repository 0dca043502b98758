package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"ebidash/internal/aggregate"
	"ebidash/internal/consolidate"
	apperrors "ebidash/internal/errors"
	"ebidash/internal/identity"
	"ebidash/internal/infrastructure"
	"ebidash/internal/join"
	"ebidash/internal/normalize"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts/domain"
)

// Request carries the per-call parameters of a run
type Request struct {
	// Range overrides the report's default window
	Range *domain.YearRange `json:"range,omitempty"`
	// Query feeds the search stage
	Query string `json:"query,omitempty"`
}

// Runner executes report specs against a table source
type Runner struct {
	src       sources.TableSource
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *infrastructure.PipelineMetrics
	threshold float64
	tieBreak  identity.TieBreak
	now       func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and stage spans
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithMetrics records run, stage and diagnostics metrics
func WithMetrics(m *infrastructure.PipelineMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithResolverDefaults sets the identity threshold and tie-break used by
// project stages that do not pin their own
func WithResolverDefaults(threshold float64, tb identity.TieBreak) Option {
	return func(r *Runner) {
		if threshold > 0 {
			r.threshold = threshold
		}
		r.tieBreak = tb
	}
}

// WithClock replaces time.Now for report timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner reading from src
func NewRunner(src sources.TableSource, opts ...Option) *Runner {
	r := &Runner{
		src:       src,
		logger:    slog.Default(),
		threshold: identity.DefaultThreshold,
		tieBreak:  identity.TieBreakFirstSeen,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "pipeline"))
	return r
}

// runState is the working set of one run; nothing in it outlives the call
type runState struct {
	spec   *ReportSpec
	req    Request
	window domain.YearRange
	report *domain.Report

	tables        map[domain.SourceID]*domain.Table
	funding       []domain.ConsolidatedRow
	fundingSchema []string
	projects      *domain.Table
	enriched      []domain.EnrichedRecord
	aux           map[string]auxTable
	results       map[string]*domain.AggregateResult
}

type auxTable struct {
	records []domain.Record
	schema  []string
}

// Run loads every source the report spec names, then runs its stages in order:
// funding, projects, join, tables, search and aggregations. Any fatal error
// aborts the run and no partial report is returned.
func (r *Runner) Run(ctx context.Context, spec *ReportSpec, req Request) (*domain.Report, error) {
	if spec == nil {
		return nil, apperrors.NewAppValidationError("pipeline: nil report spec")
	}
	window, err := spec.Window(req.Range)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(infrastructure.EnsureTraceID(ctx), runID)
	rt := newRunTracer(r.tracer, r.metrics)
	ctx, span := rt.traceRun(ctx, runID, spec, window)

	logger := r.logger.With(slog.String("report", spec.Name))
	logger.DebugContext(ctx, "report run started", slog.String("range", window.String()))

	start := r.now()
	st := &runState{
		spec:   spec,
		req:    req,
		window: window,
		report: &domain.Report{
			Name:        spec.Name,
			RunID:       runID,
			GeneratedAt: start.UTC(),
			Range:       window,
			Aggregates:  make(map[string]*domain.AggregateResult),
			Metrics:     make(map[string]domain.Ratio),
			Counts:      make(map[string]int),
		},
		aux:     make(map[string]auxTable),
		results: make(map[string]*domain.AggregateResult),
	}

	err = r.execute(ctx, rt, st)
	duration := r.now().Sub(start)
	rt.finish(ctx, span, spec.Name, duration, st.report, err)
	if err != nil {
		logger.ErrorContext(ctx, "report failed",
			slog.String("error", err.Error()),
			slog.String("error_type", string(apperrors.TypeOf(err))),
		)
		return nil, err
	}

	for _, n := range st.report.Diagnostics.JoinNotices {
		logger.WarnContext(ctx, "ambiguous join key",
			slog.String("token", n.Token),
			slog.Int("candidates", len(n.Candidates)),
			slog.String("policy", n.Policy),
			slog.Bool("dropped", n.Dropped),
		)
	}
	logger.InfoContext(ctx, "report generated",
		slog.String("range", window.String()),
		slog.Int("aggregates", len(st.report.Aggregates)),
		slog.Int("parse_warnings", len(st.report.Diagnostics.ParseWarnings)),
		slog.Int("undefined_metrics", len(st.report.Diagnostics.Undefined)),
		slog.Duration("duration", duration),
	)
	return st.report, nil
}

func (r *Runner) execute(ctx context.Context, rt *runTracer, st *runState) error {
	spec := st.spec
	steps := []struct {
		name string
		on   bool
		fn   func(context.Context, *runState) error
	}{
		{StageLoad, true, r.load},
		{StageFunding, spec.Funding != nil, r.fundingStage},
		{StageProjects, spec.Projects != nil, r.projectStage},
		{StageJoin, spec.Join != nil, r.joinStage},
		{StageTables, len(spec.Tables) > 0, r.tableStage},
		{StageSearch, spec.Search != nil, r.searchStage},
		{StageAggregate, len(spec.Aggregations) > 0, r.aggregateStage},
	}
	for _, step := range steps {
		if !step.on {
			continue
		}
		if err := ctx.Err(); err != nil {
			return apperrors.NewNetworkError("report run cancelled", err)
		}
		fn := step.fn
		if err := rt.stage(ctx, spec.Name, step.name, func(ctx context.Context) error {
			return fn(ctx, st)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) load(ctx context.Context, st *runState) error {
	tables, err := sources.LoadAll(ctx, r.src, st.spec.Sources()...)
	if err != nil {
		return err
	}
	st.tables = tables
	return nil
}

func (r *Runner) fundingStage(_ context.Context, st *runState) error {
	stage := st.spec.Funding.withDefaults()
	raw := normalize.CleanColumns(st.tables[stage.Source], false)
	if raw.HasColumn(stage.TypeColumn) {
		raw = normalize.DropBlank(raw, stage.TypeColumn)
		if len(stage.Types) > 0 {
			types := toSet(stage.Types)
			raw = raw.Filter(func(row domain.Row) bool {
				return types[row.Attr(stage.TypeColumn)]
			})
		}
	}

	fixed := dedupStrings(append(append(append([]string(nil), stage.Key...), stage.Labels...), stage.TypeColumn))
	numeric := normalize.NumericColumnsExcept(raw, fixed...)
	norm, err := normalize.Normalize(raw, normalize.Options{
		Numeric: numeric,
		Labels:  presentColumns(raw, fixed),
	})
	if err != nil {
		return err
	}
	st.report.Diagnostics.AddParseWarnings(norm.Warnings...)

	res, err := consolidate.Merge(norm.Table, consolidate.Options{
		Key:       stage.Key,
		Numeric:   numeric,
		Labels:    presentColumns(raw, stage.Labels),
		Rename:    stage.Rename,
		Overrides: stage.Overrides,
		KeepZero:  stage.KeepZero,
	})
	if err != nil {
		return err
	}

	st.funding = res.Rows
	st.fundingSchema = append(append([]string(nil), fixed...), numeric...)
	st.report.Consolidated = res.Rows
	st.report.Diagnostics.DroppedZero = append(st.report.Diagnostics.DroppedZero, res.DroppedZero...)
	st.report.Counts["funding.rows"] = len(res.Rows)
	st.report.Counts["funding.masked"] = res.Masked
	return nil
}

func (r *Runner) projectStage(_ context.Context, st *runState) error {
	stage := st.spec.Projects
	t := normalize.CleanColumns(st.tables[stage.Source], false)
	norm, err := normalize.Normalize(t, normalize.Options{Labels: t.ColumnNames()})
	if err != nil {
		return err
	}

	threshold := r.threshold
	if stage.Threshold > 0 {
		threshold = stage.Threshold
	}
	tb := r.tieBreak
	if stage.TieBreak != nil {
		tb = *stage.TieBreak
	}

	res := identity.ConsolidateProjects(norm.Table, identity.ProjectOptions{
		Dedup:    stage.Dedup,
		Resolver: []identity.Option{identity.WithThreshold(threshold), identity.WithTieBreak(tb)},
	})
	st.projects = res.Table
	st.report.Entities = res.Entities
	st.report.Counts["projects"] = res.Table.Len()
	st.report.Counts["projects.duplicates"] = res.Duplicates
	st.report.Counts["projects.blank"] = res.Blank
	st.report.Counts["entities"] = len(res.Entities)
	return nil
}

func (r *Runner) joinStage(ctx context.Context, st *runState) error {
	stage := st.spec.Join
	res, err := join.Join(ctx, st.funding, st.projects, join.Options{
		Policy:     stage.Policy,
		Attributes: stage.Attributes,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	st.enriched = res.Records
	st.report.Enriched = res.Records
	stats := res.Stats
	st.report.Join = &stats
	st.report.Diagnostics.AddJoinNotices(res.Notices...)
	return nil
}

func (r *Runner) tableStage(_ context.Context, st *runState) error {
	for _, ts := range st.spec.Tables {
		t := normalize.CleanColumns(st.tables[ts.Source], ts.CollapseHeaders)
		numeric := ts.Numeric
		if len(ts.NumericExcept) > 0 {
			numeric = normalize.NumericColumnsExcept(t, ts.NumericExcept...)
		}
		labels := exceptColumns(t.ColumnNames(), numeric)

		norm, err := normalize.Normalize(t, normalize.Options{
			Numeric: numeric,
			Labels:  labels,
		})
		if err != nil {
			return apperrors.NewConfigError("table stage "+ts.Name+" cannot be normalized", err).
				WithContext("source", ts.Source.String())
		}
		st.report.Diagnostics.AddParseWarnings(norm.Warnings...)

		if !ts.Consolidate {
			st.aux[ts.Name] = auxTable{records: norm.Table.Records(), schema: norm.Table.ColumnNames()}
			st.report.Counts[ts.Name+".rows"] = norm.Table.Len()
			continue
		}

		res, err := consolidate.Merge(norm.Table, consolidate.Options{
			Key:         ts.Key,
			Numeric:     numeric,
			Labels:      labels,
			Occurrences: ts.Occurrences,
			Exclude:     ts.Exclude,
			Rename:      ts.Rename,
			KeepZero:    ts.KeepZero,
		})
		if err != nil {
			return err
		}
		st.report.Diagnostics.DroppedZero = append(st.report.Diagnostics.DroppedZero, res.DroppedZero...)
		st.aux[ts.Name] = auxTable{
			records: domain.ConsolidatedRecords(res.Rows),
			schema:  append(append([]string(nil), labels...), numeric...),
		}
		st.report.Counts[ts.Name+".rows"] = len(res.Rows)
	}
	return nil
}

func (r *Runner) searchStage(_ context.Context, st *runState) error {
	st.report.Matches = Search(st.projects, st.req.Query, st.spec.Search.Columns...)
	st.report.Counts["matches"] = st.report.Matches.Len()
	return nil
}

func (r *Runner) aggregateStage(_ context.Context, st *runState) error {
	for _, a := range st.spec.Aggregations {
		if err := st.aggregate(a); err != nil {
			return err
		}
	}
	return nil
}

// input resolves an aggregation input to records and the schema templates are checked against
func (st *runState) input(in Input) ([]domain.Record, []string) {
	switch in {
	case InputEnriched:
		return domain.EnrichedRecords(st.enriched), st.fundingSchema
	case InputFunding:
		return domain.ConsolidatedRecords(st.funding), st.fundingSchema
	case InputProjects:
		return st.projects.Records(), st.projects.ColumnNames()
	}
	name, _ := in.TableName()
	aux := st.aux[name]
	return aux.records, aux.schema
}

func (st *runState) aggregate(a *Aggregation) error {
	window := st.window
	if a.Range != nil {
		window = *a.Range
	}

	if a.Kind == KindCombine {
		inputs := make([]*domain.AggregateResult, 0, len(a.Of))
		for _, name := range a.Of {
			inputs = append(inputs, st.results[name])
		}
		return st.finish(a, aggregate.Combine(a.Name, inputs...), nil)
	}

	records, schema := st.input(a.Input)
	if keep := a.filter(); keep != nil {
		records = filterRecords(records, keep)
	}
	if a.EntityAttr != "" {
		st.report.Counts[a.Name+".entities"] = aggregate.DistinctEntities(records, a.EntityAttr)
	}

	var res, budget *domain.AggregateResult
	switch a.Kind {
	case KindSum:
		opts := aggregate.Options{
			Name:       a.Name,
			GroupBy:    a.GroupBy,
			Range:      window,
			Templates:  a.Templates,
			EntityAttr: a.EntityAttr,
			Schema:     schema,
		}
		var err error
		if res, err = aggregate.Sum(records, opts); err != nil {
			return annotate(err, st.spec.Name, a.Name)
		}
		if len(a.Budget) > 0 {
			opts.Name = a.Name + ".budget"
			opts.Templates = a.Budget
			if budget, err = aggregate.Sum(records, opts); err != nil {
				return annotate(err, st.spec.Name, a.Name)
			}
		}
	case KindCountDistinct:
		res = aggregate.CountDistinct(a.Name, records, a.GroupBy, a.Column)
		st.report.Counts[a.Name+".distinct"] = aggregate.DistinctEntities(records, a.Column)
	case KindCountRows:
		res = aggregate.CountRows(a.Name, records, a.GroupBy)
	case KindDeliverables:
		for category, r := range aggregate.Deliverables(records, a.GroupBy, a.Column) {
			r.Name = a.Name + "." + category
			st.results[r.Name] = r
			st.report.Aggregates[r.Name] = r
		}
		return nil
	}
	return st.finish(a, res, budget)
}

// finish applies relabeling, ranking and the derived ratios, then stores the result
func (st *runState) finish(a *Aggregation, res, budget *domain.AggregateResult) error {
	if len(a.Relabel) > 0 || a.PositiveOnly {
		res = aggregate.RelabelGroups(res, a.Relabel, a.PositiveOnly)
		if budget != nil {
			budget = aggregate.RelabelGroups(budget, a.Relabel, false)
		}
	}
	if a.TopN > 0 {
		res = aggregate.TopN(res, a.TopN, a.Ties)
	}

	if budget != nil {
		ratios, undefined := aggregate.Utilization(res, budget)
		st.addRatios(a.Name+"."+aggregate.MetricUtilization, ratios, undefined)
		overall, u := aggregate.OverallUtilization(res.Sum(), budget.Sum())
		st.report.Metrics[a.Name+"."+aggregate.MetricUtilization] = overall
		if u != nil {
			u.Metric = a.Name + "." + u.Metric
			st.report.Diagnostics.AddUndefined(*u)
		}
		st.results[budget.Name] = budget
		st.report.Aggregates[budget.Name] = budget
	}
	if a.AveragePerEntity {
		ratios, undefined := aggregate.AveragePerEntity(res)
		st.addRatios(a.Name+".average", ratios, undefined)
	}
	if a.Shares {
		ratios, undefined := aggregate.Shares(res)
		st.addRatios(a.Name+"."+aggregate.MetricShare, ratios, undefined)
	}

	st.results[a.Name] = res
	st.report.Aggregates[a.Name] = res
	return nil
}

func (st *runState) addRatios(prefix string, ratios map[string]domain.Ratio, undefined []domain.UndefinedMetric) {
	for group, ratio := range ratios {
		st.report.Metrics[prefix+"."+group] = ratio
	}
	for _, u := range undefined {
		u.Metric = prefix
		st.report.Diagnostics.AddUndefined(u)
	}
}

func annotate(err error, report, agg string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		appErr.WithContext("report", report).WithContext("aggregation", agg)
	}
	return err
}

func filterRecords(records []domain.Record, keep func(domain.Record) bool) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// presentColumns keeps the names the table actually carries
func presentColumns(t *domain.Table, names []string) []string {
	var out []string
	for _, n := range names {
		if t.HasColumn(n) {
			out = append(out, n)
		}
	}
	return out
}

func exceptColumns(all, skip []string) []string {
	drop := toSet(skip)
	var out []string
	for _, c := range all {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
