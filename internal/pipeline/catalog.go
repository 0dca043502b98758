package pipeline

import (
	"fmt"

	"ebidash/internal/aggregate"
	apperrors "ebidash/internal/errors"
	"ebidash/internal/identity"
	"ebidash/internal/join"
	"ebidash/pkg/contracts/domain"
)

// Report names served by DefaultCatalog
const (
	ReportFundingByDiscipline  = "funding-by-discipline"
	ReportFundingByInstitution = "funding-by-institution"
	ReportProgramDetails       = "program-details"
	ReportTopPIs               = "top-pis"
	ReportFundingByType        = "funding-by-type"
	ReportCampusContribution   = "campus-contribution"
	ReportBerkeleyLookback     = "berkeley-lookback"
	ReportProjectsByProgram    = "projects-by-program"
	ReportIPSummary            = "ip-summary"
	ReportPortfolio            = "portfolio"
	ReportSearch               = "search"
)

// Default reporting window
const (
	DefaultStartYear = 2008
	DefaultEndYear   = 2023
)

// Ledger-specific columns
const (
	ColumnLegend       = "Legend"
	ColumnPatentTitle  = "Patent Title"
	ColumnCompany      = "Company"
	ColumnIndustry     = "Primary_Industry_Code"
	ColumnTotalRaised  = "Total_Raised"
	ColumnEmployees    = "Employees"
	TemplateYear       = "{year}"
	TypeResearchTotal  = "Research Total"
	TypeSubAwardTotal  = "Sub Award Total"
	CategoryNSF        = "NSF"
	CategoryEBISquared = "EBI Squared"
	CategoryRecharge   = "EBI Recharge"
)

// SponsorEras are the funding periods of the two industry sponsors
var SponsorEras = []aggregate.Period{
	{Name: "bp", Range: domain.YearRange{Start: 2008, End: 2015}},
	{Name: "shell", Range: domain.YearRange{Start: 2016, End: 2023}},
}

// Berkeley category ledger windows
var (
	LookbackWindow = domain.YearRange{Start: 2018, End: 2024}
	ForecastWindow = domain.YearRange{Start: 2025, End: 2029}
)

// InstitutionLabels relabels institutions for the share-of-funding chart
var InstitutionLabels = map[string]string{
	"UC San Diego": "UC Sister Campus",
}

// TopLimit is how many groups the ranking reports keep
const TopLimit = 10

// Catalog is a fixed set of named report specs
type Catalog struct {
	specs map[string]*ReportSpec
	order []string
}

// NewCatalog indexes specs by name, keeping their order
func NewCatalog(specs ...*ReportSpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*ReportSpec, len(specs))}
	for _, s := range specs {
		if _, dup := c.specs[s.Name]; dup {
			return nil, apperrors.NewConfigError(fmt.Sprintf("duplicate report %q", s.Name), nil)
		}
		c.specs[s.Name] = s
		c.order = append(c.order, s.Name)
	}
	return c, nil
}

// Get returns a report spec by name
func (c *Catalog) Get(name string) (*ReportSpec, error) {
	s, ok := c.specs[name]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("report %q", name)).WithContext("report", name)
	}
	return s, nil
}

// Names lists report names in catalog order
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Specs lists report specs in catalog order
func (c *Catalog) Specs() []*ReportSpec {
	out := make([]*ReportSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.specs[name])
	}
	return out
}

// Summary describes a report for listings
type Summary struct {
	Name         string            `json:"name"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	DefaultRange domain.YearRange  `json:"default_range"`
	Sources      []domain.SourceID `json:"sources"`
	Aggregations []string          `json:"aggregations,omitempty"`
	Searchable   bool              `json:"searchable,omitempty"`
}

// Summaries describes every report in catalog order
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.order))
	for _, s := range c.Specs() {
		sum := Summary{
			Name:         s.Name,
			Title:        s.Title,
			Description:  s.Description,
			DefaultRange: s.DefaultRange,
			Sources:      s.Sources(),
			Searchable:   s.Search != nil,
		}
		for _, a := range s.Aggregations {
			sum.Aggregations = append(sum.Aggregations, a.Name)
		}
		out = append(out, sum)
	}
	return out
}

// CatalogOptions parameterize DefaultCatalog
type CatalogOptions struct {
	// Range is the default window; zero uses 2008-2023
	Range domain.YearRange
	// Overrides are applied to every funding stage
	Overrides *Overrides
}

// DefaultCatalog builds the dashboard's report catalog
func DefaultCatalog(opts CatalogOptions) (*Catalog, error) {
	r := opts.Range
	if r.Start == 0 && r.End == 0 {
		r = domain.YearRange{Start: DefaultStartYear, End: DefaultEndYear}
	}
	funding := opts.Overrides.apply(FundingStage{Source: domain.SourceFunding})
	projects := ProjectStage{Source: domain.SourceProductivity, Dedup: identity.DedupFirst}
	joined := JoinStage{Policy: join.FirstMatch()}

	builders := []*ReportBuilder{
		NewReport(ReportFundingByDiscipline).
			Title("Funding by discipline").
			Describe("Actual funding joined to the project ledger, summed per discipline with PI counts.").
			Window(r).
			Funding(funding).Projects(projects).Join(joined).
			Aggregate(
				Sum("by-discipline", InputEnriched, ColumnDiscipline, TemplateActual).
					Entities(ColumnPI).WithShares(),
			),

		NewReport(ReportFundingByInstitution).
			Title("Funding by institution").
			Describe("Actual funding per institution over each sponsor era and combined.").
			Window(r).
			Funding(funding).Projects(projects).Join(joined).
			Aggregate(eraAggregations()...),

		NewReport(ReportProgramDetails).
			Title("Program details").
			Describe("Per program totals, research and sub-award split, PI counts, average per PI and utilization.").
			Window(r).
			Funding(funding).Projects(projects).Join(joined).
			Aggregate(
				Sum("program", InputEnriched, ColumnProgram, TemplateActual).
					Entities(ColumnPI).Utilization(TemplateBudget).Average(),
				Sum("program-research", InputEnriched, ColumnProgram, TemplateActual).
					Where(ColumnType, "Research"),
				Sum("program-subaward", InputEnriched, ColumnProgram, TemplateActual).
					Where(ColumnType, "Sub-award"),
				Sum("pi-totals", InputEnriched, ColumnPI, TemplateActual),
			),

		NewReport(ReportTopPIs).
			Title("Top PIs").
			Describe("The PIs with the most actual funding over the window.").
			Window(r).
			Funding(funding).
			Aggregate(Sum("top-pis", InputFunding, ColumnPI, TemplateActual).Top(TopLimit)),

		NewReport(ReportFundingByType).
			Title("Funding by type").
			Describe("Research against sub-award funding per year.").
			Window(r).
			Funding(funding).
			Aggregate(Sum("by-type", InputFunding, ColumnType, TemplateActual).WithShares()),

		NewReport(ReportCampusContribution).
			Title("Campus contribution").
			Describe("Research budget and sub-award actuals from the funding ledger summary rows.").
			Window(r).
			Table(TableStage{
				Name:          "summary",
				Source:        domain.SourceFunding,
				NumericExcept: []string{ColumnType, ColumnPI, ColumnGift},
			}).
			Aggregate(
				Sum("research-budget", Table("summary"), "", TemplateBudget).Where(ColumnType, TypeResearchTotal),
				Sum("subaward-actual", Table("summary"), "", TemplateActual).Where(ColumnType, TypeSubAwardTotal),
				Combine("contribution", "research-budget", "subaward-actual"),
			),

		NewReport(ReportBerkeleyLookback).
			Title("Berkeley lookback and forecast").
			Describe("Category totals for the historical and forecast windows; NSF is left out of the lookback.").
			Window(r).
			Table(TableStage{
				Name:          "categories",
				Source:        domain.SourceBerkeley,
				NumericExcept: []string{ColumnLegend},
				Consolidate:   true,
				Key:           []string{ColumnLegend},
				Occurrences:   map[string][]string{CategoryEBISquared: {CategoryEBISquared, CategoryRecharge}},
			}).
			Aggregate(
				Sum("lookback", Table("categories"), ColumnLegend, TemplateYear).
					Within(LookbackWindow.Start, LookbackWindow.End).
					Without(ColumnLegend, CategoryNSF).WithShares(),
				Sum("forecast", Table("categories"), ColumnLegend, TemplateYear).
					Within(ForecastWindow.Start, ForecastWindow.End).WithShares(),
			),

		NewReport(ReportProjectsByProgram).
			Title("Projects by program").
			Describe("Project and PI counts per program after de-duplication, with deliverable counts.").
			Window(r).
			Projects(ProjectStage{Source: domain.SourceProductivity, Dedup: identity.DedupLongestDeliverables}).
			Aggregate(
				CountRows("projects", InputProjects, ColumnProgram),
				CountDistinct("pis", InputProjects, ColumnProgram, ColumnInvestigator),
				Deliverables("deliverables", InputProjects, ColumnProgram, ColumnDeliverables),
			),

		NewReport(ReportIPSummary).
			Title("Intellectual property").
			Describe("Distinct patent titles per discipline, sponsor, PI and institution.").
			Window(r).
			Table(TableStage{Name: "ip", Source: domain.SourceIP}).
			Aggregate(
				CountDistinct("by-discipline", Table("ip"), ColumnDiscipline, ColumnPatentTitle),
				CountDistinct("by-sponsor", Table("ip"), ColumnSponsor, ColumnPatentTitle),
				CountDistinct("by-pi", Table("ip"), ColumnPI, ColumnPatentTitle),
				CountDistinct("by-institution", Table("ip"), ColumnInstitution, ColumnPatentTitle),
			),

		NewReport(ReportPortfolio).
			Title("Startup portfolio").
			Describe("Capital raised per industry and the best funded companies.").
			Window(r).
			Table(TableStage{
				Name:            "portfolio",
				Source:          domain.SourcePortfolio,
				CollapseHeaders: true,
				Numeric:         []string{ColumnTotalRaised, ColumnEmployees},
			}).
			Aggregate(
				Sum("by-industry", Table("portfolio"), ColumnIndustry, ColumnTotalRaised).WithShares(),
				Sum("top-companies", Table("portfolio"), ColumnCompany, ColumnTotalRaised).Top(TopLimit),
			),

		NewReport(ReportSearch).
			Title("Project search").
			Describe("Case-insensitive search across the project ledger.").
			Window(r).
			Projects(ProjectStage{Source: domain.SourceProductivity, Dedup: identity.DedupNone}).
			Search(SearchColumns...),
	}

	specs := make([]*ReportSpec, 0, len(builders))
	for _, b := range builders {
		spec, err := b.Build()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return NewCatalog(specs...)
}

func eraAggregations() []*Aggregation {
	aggs := make([]*Aggregation, 0, len(SponsorEras)+1)
	names := make([]string, 0, len(SponsorEras))
	for _, era := range SponsorEras {
		aggs = append(aggs, Sum(era.Name, InputEnriched, ColumnInstitution, TemplateActual).
			Within(era.Range.Start, era.Range.End).
			RelabelGroups(InstitutionLabels, true))
		names = append(names, era.Name)
	}
	return append(aggs, Combine("combined", names...).RelabelGroups(InstitutionLabels, true))
}
