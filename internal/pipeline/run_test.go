package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "ebidash/internal/errors"
	"ebidash/internal/normalize"
	"ebidash/internal/sources"
	"ebidash/internal/shared/testutil"
	"ebidash/pkg/contracts/domain"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog(CatalogOptions{})
	require.NoError(t, err)
	return c
}

func runReport(t *testing.T, name string, req Request) *domain.Report {
	t.Helper()
	spec, err := newCatalog(t).Get(name)
	require.NoError(t, err)
	runner := NewRunner(sources.NewMemorySource(testutil.AllTables()))
	rep, err := runner.Run(context.Background(), spec, req)
	require.NoError(t, err)
	return rep
}

func totals(t *testing.T, rep *domain.Report, agg string) map[string]float64 {
	t.Helper()
	res := rep.Aggregate(agg)
	require.NotNil(t, res, "aggregate %s missing", agg)
	return res.AsMap()
}

func TestRun_FundingByDiscipline(t *testing.T) {
	rep := runReport(t, ReportFundingByDiscipline, Request{})

	assert.Equal(t, domain.YearRange{Start: 2008, End: 2023}, rep.Range)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, map[string]float64{"Biology": 500, "Ecology": 1300, "Chemistry": 210}, totals(t, rep, "by-discipline"))
	assert.Equal(t, 3, rep.Counts["by-discipline.entities"])
	assert.Equal(t, 5, rep.Counts["funding.rows"])
	assert.Equal(t, 5, rep.Counts["entities"])

	require.NotNil(t, rep.Join)
	assert.Equal(t, domain.JoinStats{
		FundingRows:           5,
		ProductivityRows:      5,
		ProductivityGroups:    4,
		Matched:               4,
		MatchedGroups:         3,
		UnmatchedFunding:      1,
		UnmatchedProductivity: 1,
		Ambiguous:             1,
	}, *rep.Join)
	require.Len(t, rep.Diagnostics.JoinNotices, 1)
	assert.Equal(t, "Smith", rep.Diagnostics.JoinNotices[0].Token)
	assert.Len(t, rep.Diagnostics.DroppedZero, 1, "Brown has no activity")

	share := rep.Metrics["by-discipline.share.Ecology"]
	require.True(t, share.Defined)
	assert.InDelta(t, 1300.0/2010*100, share.Value, 0.001)
}

func TestRun_RequestRange(t *testing.T) {
	rep := runReport(t, ReportFundingByDiscipline, Request{Range: &domain.YearRange{Start: 2019, End: 2019}})

	assert.Equal(t, domain.YearRange{Start: 2019, End: 2019}, rep.Range)
	assert.Equal(t, map[string]float64{"Biology": 120, "Ecology": 300, "Chemistry": 80}, totals(t, rep, "by-discipline"))
}

func TestRun_FundingByInstitution(t *testing.T) {
	rep := runReport(t, ReportFundingByInstitution, Request{})

	// UIUC has no BP-era funding and is left out of that period
	assert.Equal(t, map[string]float64{"UC Berkeley": 100, "UC Sister Campus": 1000}, totals(t, rep, "bp"))
	assert.Equal(t, map[string]float64{"UC Berkeley": 400, "UC Sister Campus": 300, "UIUC": 210}, totals(t, rep, "shell"))
	assert.Equal(t, map[string]float64{"UC Berkeley": 500, "UC Sister Campus": 1300, "UIUC": 210}, totals(t, rep, "combined"))
	assert.Equal(t, domain.YearRange{Start: 2008, End: 2023}, rep.Aggregate("combined").Range)
}

func TestRun_ProgramDetails(t *testing.T) {
	rep := runReport(t, ReportProgramDetails, Request{})

	assert.Equal(t, map[string]float64{"Feedstocks": 500, "Soils": 1300, "Conversion": 210}, totals(t, rep, "program"))
	assert.Equal(t, map[string]float64{"Feedstocks": 570, "Soils": 1300, "Conversion": 210}, totals(t, rep, "program.budget"))
	assert.Equal(t, map[string]float64{"Feedstocks": 450, "Soils": 1300, "Conversion": 210}, totals(t, rep, "program-research"))
	assert.Equal(t, map[string]float64{"Feedstocks": 50}, totals(t, rep, "program-subaward"))

	util := rep.Metrics["program.utilization.Feedstocks"]
	require.True(t, util.Defined)
	assert.InDelta(t, 87.72, util.Value, 0.01)
	assert.InDelta(t, 100, rep.Metrics["program.utilization.Soils"].Value, 0.001)
	assert.InDelta(t, 2010.0/2080*100, rep.Metrics["program.utilization"].Value, 0.001)
	assert.InDelta(t, 500, rep.Metrics["program.average.Feedstocks"].Value, 0.001)
	assert.Empty(t, rep.Diagnostics.Undefined)
}

func TestRun_TopPIsAndTypes(t *testing.T) {
	rep := runReport(t, ReportTopPIs, Request{})
	top := rep.Aggregate("top-pis")
	require.NotNil(t, top)
	assert.Equal(t, []string{"Garcia", "Smith", "Nguyen", "Okafor"}, top.Keys())
	assert.Equal(t, map[string]float64{"Garcia": 1300, "Smith": 500, "Nguyen": 210, "Okafor": 40}, top.AsMap())
	assert.Nil(t, rep.Join, "top-pis does not join")

	rep = runReport(t, ReportFundingByType, Request{})
	assert.Equal(t, map[string]float64{"Research": 2000, "Sub-award": 50}, totals(t, rep, "by-type"))
}

func TestRun_CampusContribution(t *testing.T) {
	rep := runReport(t, ReportCampusContribution, Request{})

	// the administrative ledger carries 920 and 50 for the same rows
	assert.Equal(t, 950.0, rep.Aggregate("research-budget").Sum())
	assert.Equal(t, 50.0, rep.Aggregate("subaward-actual").Sum())
	assert.Equal(t, map[string]float64{"Total": 1000}, totals(t, rep, "contribution"))

	campus, err := newCatalog(t).Get(ReportCampusContribution)
	require.NoError(t, err)
	assert.Equal(t, []domain.SourceID{domain.SourceFunding}, campus.Sources())
}

func TestRun_BerkeleyLookback(t *testing.T) {
	rep := runReport(t, ReportBerkeleyLookback, Request{Range: &domain.YearRange{Start: 2020, End: 2020}})

	assert.Equal(t, map[string]float64{
		"EBI Squared":               7000,
		"EBI Recharge":              1400,
		"Research (Berkeley only)":  700,
		"Industrial Research Funds": 350,
	}, totals(t, rep, "lookback"), "pinned window ignores the request range")
	assert.Equal(t, map[string]float64{
		"EBI Squared":               5000,
		"NSF":                       2500,
		"EBI Recharge":              1000,
		"Research (Berkeley only)":  500,
		"Industrial Research Funds": 250,
	}, totals(t, rep, "forecast"))
	assert.Equal(t, LookbackWindow, rep.Aggregate("lookback").Range)
}

func TestRun_ProjectsByProgram(t *testing.T) {
	rep := runReport(t, ReportProjectsByProgram, Request{})

	assert.Equal(t, map[string]float64{"Feedstocks": 1, "Soils": 1, "Conversion": 2, "Separations": 1}, totals(t, rep, "projects"))
	assert.Equal(t, map[string]float64{"Feedstocks": 1, "Soils": 1, "Conversion": 2, "Separations": 1}, totals(t, rep, "pis"))
	pubs := totals(t, rep, "deliverables.publications")
	assert.Equal(t, 2.0, pubs["Feedstocks"])
	assert.Equal(t, 3.0, pubs["Soils"])
	assert.Equal(t, 1, rep.Counts["projects.duplicates"])
	assert.Equal(t, 1, rep.Counts["projects.blank"])
}

func TestRun_IPSummary(t *testing.T) {
	rep := runReport(t, ReportIPSummary, Request{})

	tests := []struct {
		agg  string
		want map[string]float64
	}{
		{"by-discipline", map[string]float64{"Chemistry": 2, "Biology": 1}},
		{"by-sponsor", map[string]float64{"Shell": 2, "BP": 1}},
		{"by-pi", map[string]float64{"Nguyen": 1, "Smith": 2}},
		{"by-institution", map[string]float64{"UIUC": 1, "UC Berkeley": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.agg, func(t *testing.T) {
			assert.Equal(t, tt.want, totals(t, rep, tt.agg))
			assert.Equal(t, 3, rep.Counts[tt.agg+".distinct"])
		})
	}
}

func TestRun_Portfolio(t *testing.T) {
	rep := runReport(t, ReportPortfolio, Request{})

	assert.Equal(t, map[string]float64{"Energy": 20, "Agriculture": 3}, totals(t, rep, "by-industry"))
	assert.Equal(t, []string{"AlgaCo", "Enzymix", "SoilTech"}, rep.Aggregate("top-companies").Keys())
	assert.Equal(t, 12.5, rep.Aggregate("top-companies").Groups[0].Total)
}

func TestRun_Search(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 6},
		{"algae", 2},
		{"SHELL", 3},
		{"san diego", 1},
		{"nothing like this", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rep := runReport(t, ReportSearch, Request{Query: tt.query})
			require.NotNil(t, rep.Matches)
			assert.Equal(t, tt.want, rep.Matches.Len())
			assert.Equal(t, tt.want, rep.Counts["matches"])
		})
	}
}

func TestRun_Errors(t *testing.T) {
	catalog := newCatalog(t)
	spec, err := catalog.Get(ReportFundingByDiscipline)
	require.NoError(t, err)

	t.Run("retrieval failure aborts the run", func(t *testing.T) {
		tables := testutil.AllTables()
		delete(tables, domain.SourceProductivity)
		rep, err := NewRunner(sources.NewMemorySource(tables)).Run(context.Background(), spec, Request{})
		require.Error(t, err)
		assert.Nil(t, rep)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeRetrieval))
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := NewRunner(sources.NewMemorySource(testutil.AllTables())).
			Run(context.Background(), spec, Request{Range: &domain.YearRange{Start: 2020, End: 2010}})
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	})

	t.Run("missing template column", func(t *testing.T) {
		bad := NewReport("bad").Years(2019, 2020).
			Funding(FundingStage{Source: domain.SourceFunding}).
			Aggregate(Sum("x", InputFunding, ColumnPI, "{year} Forecast")).
			MustBuild()
		_, err := NewRunner(sources.NewMemorySource(testutil.AllTables())).Run(context.Background(), bad, Request{})
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})

	t.Run("nil spec", func(t *testing.T) {
		_, err := NewRunner(sources.NewMemorySource(nil)).Run(context.Background(), nil, Request{})
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewRunner(sources.NewMemorySource(testutil.AllTables())).Run(ctx, spec, Request{})
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestRun_ParseWarningsAndUndefinedRatios(t *testing.T) {
	funding := domain.NewTable(domain.SourceFunding, "PI", "Type", "2019 Actual", "2019 Budget")
	funding.Append(domain.Row{"PI": "Lee", "Type": "Research", "2019 Actual": "n/a", "2019 Budget": "0"})
	funding.Append(domain.Row{"PI": "Kim", "Type": "Research", "2019 Actual": "10", "2019 Budget": ""})

	spec := NewReport("util").Years(2019, 2019).
		Funding(FundingStage{Source: domain.SourceFunding, KeepZero: true}).
		Aggregate(Sum("pi", InputFunding, ColumnPI, TemplateActual).Utilization(TemplateBudget)).
		MustBuild()

	rep, err := NewRunner(sources.NewMemorySource(map[domain.SourceID]*domain.Table{domain.SourceFunding: funding})).
		Run(context.Background(), spec, Request{})
	require.NoError(t, err)

	require.Len(t, rep.Diagnostics.ParseWarnings, 2)
	assert.Equal(t, "2019 Actual", rep.Diagnostics.ParseWarnings[0].Column)
	assert.Equal(t, "n/a", rep.Diagnostics.ParseWarnings[0].Value)
	assert.Equal(t, normalize.ReasonUnparseable, rep.Diagnostics.ParseWarnings[0].Reason)
	assert.Equal(t, "2019 Budget", rep.Diagnostics.ParseWarnings[1].Column)
	assert.Equal(t, 1, rep.Diagnostics.ParseWarnings[1].Row)
	assert.Equal(t, normalize.ReasonBlank, rep.Diagnostics.ParseWarnings[1].Reason)

	assert.False(t, rep.Metrics["pi.utilization.Lee"].Defined)
	assert.False(t, rep.Metrics["pi.utilization.Kim"].Defined)
	assert.False(t, rep.Metrics["pi.utilization"].Defined)
	assert.Len(t, rep.Diagnostics.Undefined, 3)
	for _, u := range rep.Diagnostics.Undefined {
		assert.Equal(t, "pi.utilization", u.Metric)
	}
}

func TestRun_OverridesMaskObservedRows(t *testing.T) {
	overrides := &Overrides{Funding: FundingOverrides{
		Rename: map[string]string{"Okafor": "Nguyen"},
	}}
	overrides.Funding.Overrides = append(overrides.Funding.Overrides, garciaOverride())
	catalog, err := DefaultCatalog(CatalogOptions{Overrides: overrides})
	require.NoError(t, err)
	spec, err := catalog.Get(ReportTopPIs)
	require.NoError(t, err)

	rep, err := NewRunner(sources.NewMemorySource(testutil.AllTables())).Run(context.Background(), spec, Request{})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"Garcia": 999, "Smith": 500, "Nguyen": 250}, totals(t, rep, "top-pis"))
	assert.Equal(t, 1, rep.Counts["funding.masked"])

	var overridden int
	for _, row := range rep.Consolidated {
		if row.Provenance.IsOverride() {
			overridden++
			assert.Equal(t, 1300.0, row.Provenance.ObservedValues["2015 Actual"]+row.Provenance.ObservedValues["2019 Actual"])
		}
	}
	assert.Equal(t, 1, overridden)
}

func TestRun_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	logger, handler := testutil.NewTestLogger(t)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := NewRunner(sources.NewMemorySource(testutil.AllTables()),
		WithLogger(logger),
		WithTracer(tp.Tracer("test")),
		WithClock(func() time.Time { return clock }),
	)
	spec, err := newCatalog(t).Get(ReportFundingByDiscipline)
	require.NoError(t, err)

	rep, err := runner.Run(context.Background(), spec, Request{})
	require.NoError(t, err)
	assert.Equal(t, clock, rep.GeneratedAt)

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"pipeline.run", "pipeline.stage.load", "pipeline.stage.funding",
		"pipeline.stage.projects", "pipeline.stage.join", "pipeline.stage.aggregate"} {
		assert.True(t, names[want], "span %s not recorded", want)
	}
	assert.False(t, names["pipeline.stage.search"])

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "report generated")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "ambiguous join key")
	testutil.AssertLogAttr(t, handler, "token", "Smith")
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), len(rep.Diagnostics.JoinNotices),
		"one warning per ambiguous key")
	assert.True(t, handler.ContainsAttr("report", ReportFundingByDiscipline))
}

func TestRun_FailureIsLogged(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	failing := sources.SourceFunc(func(context.Context, domain.SourceID) (*domain.Table, error) {
		return nil, errors.New("quota exceeded")
	})
	spec, err := newCatalog(t).Get(ReportTopPIs)
	require.NoError(t, err)

	_, err = NewRunner(failing, WithLogger(logger)).Run(context.Background(), spec, Request{})
	require.Error(t, err)
	testutil.AssertLogContains(t, handler, slog.LevelError, "report failed")
	assert.True(t, handler.ContainsAttr("error_type", string(apperrors.ErrTypeRetrieval)))
}
