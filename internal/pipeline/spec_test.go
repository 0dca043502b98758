package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ebidash/internal/consolidate"
	apperrors "ebidash/internal/errors"
	"ebidash/internal/join"
	"ebidash/pkg/contracts/domain"
)

func garciaOverride() consolidate.Override {
	return consolidate.Override{
		Key:    "Garcia",
		Column: ColumnPI,
		Equals: []string{"Garcia"},
		Labels: map[string]string{ColumnType: "Research"},
		Values: map[string]float64{"2019 Actual": 999},
		Note:   "confirmed by finance",
	}
}

func fundingReport(name string) *ReportBuilder {
	return NewReport(name).Years(2015, 2020).Funding(FundingStage{Source: domain.SourceFunding})
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		builder *ReportBuilder
		wantErr string
	}{
		{
			name: "valid joined report",
			builder: fundingReport("ok").
				Projects(ProjectStage{Source: domain.SourceProductivity}).
				Join(JoinStage{Policy: join.RequireAttribute(ColumnProgram)}).
				Aggregate(Sum("a", InputEnriched, ColumnProgram, TemplateActual).Entities(ColumnPI).Average()),
		},
		{
			name:    "missing window",
			builder: NewReport("nowin").Funding(FundingStage{Source: domain.SourceFunding}),
			wantErr: "DefaultRange.Start failed required",
		},
		{
			name:    "inverted window",
			builder: fundingReport("inv").Years(2020, 2010),
			wantErr: "DefaultRange.End failed gtefield",
		},
		{
			name:    "join without projects",
			builder: fundingReport("j").Join(JoinStage{}),
			wantErr: "join needs both",
		},
		{
			name:    "enriched input without join",
			builder: fundingReport("e").Aggregate(Sum("a", InputEnriched, ColumnProgram, TemplateActual)),
			wantErr: "enriched input needs a join stage",
		},
		{
			name:    "unknown table input",
			builder: fundingReport("u").Aggregate(CountRows("a", Table("nope"), ColumnProgram)),
			wantErr: `unknown input "table:nope"`,
		},
		{
			name: "duplicate aggregation",
			builder: fundingReport("d").Aggregate(
				Sum("a", InputFunding, ColumnPI, TemplateActual),
				Sum("a", InputFunding, ColumnType, TemplateActual),
			),
			wantErr: `duplicate aggregation "a"`,
		},
		{
			name:    "combine of a later aggregation",
			builder: fundingReport("c").Aggregate(Combine("all", "later"), Sum("later", InputFunding, ColumnPI, TemplateActual)),
			wantErr: `combine input "later" is not an earlier aggregation`,
		},
		{
			name:    "average without entities",
			builder: fundingReport("avg").Aggregate(Sum("a", InputFunding, ColumnPI, TemplateActual).Average()),
			wantErr: "average per entity needs an entity attribute",
		},
		{
			name:    "utilization on counts",
			builder: fundingReport("uc").Aggregate(CountRows("a", InputFunding, ColumnPI).Utilization(TemplateBudget)),
			wantErr: "utilization applies to sums only",
		},
		{
			name:    "sum without templates",
			builder: fundingReport("st").Aggregate(Sum("a", InputFunding, ColumnPI)),
			wantErr: "sum needs column templates",
		},
		{
			name:    "unknown kind",
			builder: fundingReport("k").Aggregate(&Aggregation{Name: "a", Kind: "median", Input: InputFunding}),
			wantErr: "Kind failed oneof",
		},
		{
			name:    "search without projects",
			builder: fundingReport("s").Search(ColumnProgram),
			wantErr: "search needs a projects stage",
		},
		{
			name:    "consolidated table without key",
			builder: fundingReport("tk").Table(TableStage{Name: "t", Source: domain.SourceBerkeley, Consolidate: true}),
			wantErr: "Key failed required_if",
		},
		{
			name: "override without values",
			builder: NewReport("ov").Years(2015, 2020).
				Funding(FundingStage{Source: domain.SourceFunding, Overrides: []consolidate.Override{{Key: "x"}}}),
			wantErr: "Values failed required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := tt.builder.Build()
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, spec)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_Defaults(t *testing.T) {
	spec := fundingReport("defaults").
		Table(TableStage{Source: domain.SourcePortfolio}).
		MustBuild()

	assert.Equal(t, []string{ColumnPI, ColumnType}, spec.Funding.Key)
	assert.Equal(t, []string{ColumnGift}, spec.Funding.Labels)
	assert.Equal(t, DefaultFundingTypes, spec.Funding.Types)
	assert.Equal(t, "portfolio", spec.Tables[0].Name)
	assert.Equal(t, []domain.SourceID{domain.SourceFunding, domain.SourcePortfolio}, spec.Sources())
	assert.Panics(t, func() { NewReport("").MustBuild() })
}

func TestWindow(t *testing.T) {
	spec := fundingReport("w").MustBuild()

	r, err := spec.Window(nil)
	require.NoError(t, err)
	assert.Equal(t, domain.YearRange{Start: 2015, End: 2020}, r)

	r, err = spec.Window(&domain.YearRange{Start: 2019, End: 2019})
	require.NoError(t, err)
	assert.Equal(t, 2019, r.Start)

	_, err = spec.Window(&domain.YearRange{Start: 2020, End: 2019})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestAggregationFilter(t *testing.T) {
	a := Sum("a", InputFunding, ColumnPI, TemplateActual).
		Where(ColumnType, "Research", "Sub-award").
		Without(ColumnPI, "Brown")
	keep := a.filter()
	require.NotNil(t, keep)

	assert.True(t, keep(domain.Row{ColumnType: "Research", ColumnPI: "Smith"}))
	assert.False(t, keep(domain.Row{ColumnType: "Research Total", ColumnPI: "Smith"}))
	assert.False(t, keep(domain.Row{ColumnType: "Sub-award", ColumnPI: "Brown"}))
	assert.Nil(t, Sum("b", InputFunding, ColumnPI, TemplateActual).filter())
}

func TestCatalog(t *testing.T) {
	c := newCatalog(t)

	assert.Equal(t, []string{
		ReportFundingByDiscipline, ReportFundingByInstitution, ReportProgramDetails, ReportTopPIs,
		ReportFundingByType, ReportCampusContribution, ReportBerkeleyLookback, ReportProjectsByProgram,
		ReportIPSummary, ReportPortfolio, ReportSearch,
	}, c.Names())

	_, err := c.Get("nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	summaries := c.Summaries()
	require.Len(t, summaries, 11)
	assert.Equal(t, []domain.SourceID{domain.SourceFunding, domain.SourceProductivity}, summaries[0].Sources)
	assert.True(t, summaries[10].Searchable)

	ranged, err := DefaultCatalog(CatalogOptions{Range: domain.YearRange{Start: 2010, End: 2012}})
	require.NoError(t, err)
	spec, err := ranged.Get(ReportTopPIs)
	require.NoError(t, err)
	assert.Equal(t, 2010, spec.DefaultRange.Start)

	_, err = NewCatalog(spec, spec)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestLoadOverrides(t *testing.T) {
	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "overrides.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("empty path", func(t *testing.T) {
		o, err := LoadOverrides("")
		require.NoError(t, err)
		assert.True(t, o.Empty())
	})

	t.Run("rename and override", func(t *testing.T) {
		o, err := LoadOverrides(write(t, `
funding:
  rename:
    Okafor: Nguyen
  overrides:
    - key: Garcia
      column: PI
      equals: [Garcia]
      values:
        "2019 Actual": 999
`))
		require.NoError(t, err)
		assert.Equal(t, "Nguyen", o.Funding.Rename["Okafor"])
		require.Len(t, o.Funding.Overrides, 1)
		assert.Equal(t, 999.0, o.Funding.Overrides[0].Values["2019 Actual"])

		stage := o.apply(FundingStage{Rename: map[string]string{"Smyth": "Smith"}})
		assert.Equal(t, map[string]string{"Smyth": "Smith", "Okafor": "Nguyen"}, stage.Rename)
		assert.Len(t, stage.Overrides, 1)
	})

	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "funding: [\n"},
		{"override without match", "funding:\n  overrides:\n    - key: x\n      values: {a: 1}\n"},
		{"override without values", "funding:\n  overrides:\n    - key: x\n      column: PI\n      equals: [x]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOverrides(write(t, tt.body))
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}

	_, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestSearch(t *testing.T) {
	table := domain.NewTable(domain.SourceProductivity, ColumnInvestigator, ColumnProject)
	table.Append(domain.Row{ColumnInvestigator: "José Núñez", ColumnProject: "Bio-Fuels"})
	table.Append(domain.Row{ColumnInvestigator: "Ann Lee", ColumnProject: "Soil"})

	assert.Equal(t, 1, Search(table, "jose", ColumnInvestigator).Len())
	assert.Equal(t, 1, Search(table, "BIOFUELS", ColumnProject).Len())
	assert.Equal(t, 0, Search(table, "soil", ColumnInvestigator).Len(), "only listed columns are searched")
	assert.Equal(t, 2, Search(table, "  ", ColumnInvestigator).Len())
	assert.Nil(t, Search(nil, "x"))
}
