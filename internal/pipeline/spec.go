package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"ebidash/internal/aggregate"
	"ebidash/internal/consolidate"
	apperrors "ebidash/internal/errors"
	"ebidash/internal/identity"
	"ebidash/internal/join"
	"ebidash/pkg/contracts/domain"
)

// Input names the record set an aggregation reads
type Input string

const (
	// InputEnriched is the funding rows joined to the project ledger
	InputEnriched Input = "enriched"
	// InputFunding is the consolidated funding rows
	InputFunding Input = "funding"
	// InputProjects is the cleaned project ledger
	InputProjects Input = "projects"

	tablePrefix = "table:"
)

// Table names the output of a TableStage as an aggregation input
func Table(name string) Input {
	return Input(tablePrefix + name)
}

// TableName returns the stage name of a table input
func (i Input) TableName() (string, bool) {
	return strings.CutPrefix(string(i), tablePrefix)
}

// Kind selects how an aggregation computes its groups
type Kind string

const (
	KindSum           Kind = "sum"
	KindCountDistinct Kind = "count_distinct"
	KindCountRows     Kind = "count_rows"
	KindDeliverables  Kind = "deliverables"
	KindCombine       Kind = "combine"
)

// Column names shared by the ledgers
const (
	ColumnPI           = "PI"
	ColumnType         = "Type"
	ColumnGift         = "Gift"
	ColumnProgram      = "Program"
	ColumnDiscipline   = "Discipline"
	ColumnInstitution  = "Institution"
	ColumnSponsor      = "Sponsor"
	ColumnInvestigator = identity.ColumnPI
	ColumnProject      = identity.ColumnProject
	ColumnDeliverables = identity.ColumnDeliverables
	ColumnPersonnel    = "Personnel"

	TemplateActual = "{year} Actual"
	TemplateBudget = "{year} Budget"
)

// Funding row types kept by default; the ledger's summary rows are not
var DefaultFundingTypes = []string{"Research", "Sub-award"}

// FundingStage loads and consolidates the funding ledger
type FundingStage struct {
	Source domain.SourceID `yaml:"source" json:"source" validate:"required"`
	// Key defaults to PI and Type
	Key []string `yaml:"key" json:"key,omitempty"`
	// Labels default to Gift
	Labels []string `yaml:"labels" json:"labels,omitempty"`
	// TypeColumn rows with a blank type are dropped
	TypeColumn string `yaml:"type_column" json:"type_column,omitempty"`
	// Types kept; defaults to Research and Sub-award
	Types []string `yaml:"types" json:"types,omitempty"`
	// Rename maps raw PI spellings before merging
	Rename    map[string]string      `yaml:"rename" json:"rename,omitempty"`
	Overrides []consolidate.Override `yaml:"overrides" json:"overrides,omitempty" validate:"dive"`
	KeepZero  bool                   `yaml:"keep_zero" json:"keep_zero,omitempty"`
}

func (s FundingStage) withDefaults() FundingStage {
	if len(s.Key) == 0 {
		s.Key = []string{ColumnPI, ColumnType}
	}
	if s.Labels == nil {
		s.Labels = []string{ColumnGift}
	}
	if s.TypeColumn == "" {
		s.TypeColumn = ColumnType
	}
	if s.Types == nil {
		s.Types = DefaultFundingTypes
	}
	return s
}

// ProjectStage cleans the project ledger and resolves PI identities.
// A zero Threshold uses the runner default.
type ProjectStage struct {
	Source    domain.SourceID      `yaml:"source" json:"source" validate:"required"`
	Dedup     identity.DedupPolicy `yaml:"dedup" json:"dedup"`
	Threshold float64              `yaml:"threshold" json:"threshold,omitempty" validate:"gte=0,lte=1"`
	TieBreak  *identity.TieBreak   `yaml:"tie_break" json:"tie_break,omitempty"`
}

// JoinStage joins the funding rows to the project ledger by surname
type JoinStage struct {
	Policy     join.Policy `yaml:"-" json:"policy"`
	Attributes []string    `yaml:"attributes" json:"attributes,omitempty"`
}

// TableStage prepares one auxiliary ledger. Numeric lists the coerced
// columns; NumericExcept instead coerces every column but the ones named.
// With Consolidate the rows are merged on Key.
type TableStage struct {
	Name            string              `yaml:"name" json:"name" validate:"required"`
	Source          domain.SourceID     `yaml:"source" json:"source" validate:"required"`
	Numeric         []string            `yaml:"numeric" json:"numeric,omitempty"`
	NumericExcept   []string            `yaml:"numeric_except" json:"numeric_except,omitempty"`
	CollapseHeaders bool                `yaml:"collapse_headers" json:"collapse_headers,omitempty"`
	Consolidate     bool                `yaml:"consolidate" json:"consolidate,omitempty"`
	Key             []string            `yaml:"key" json:"key,omitempty" validate:"required_if=Consolidate true"`
	Occurrences     map[string][]string `yaml:"occurrences" json:"occurrences,omitempty"`
	Exclude         []string            `yaml:"exclude" json:"exclude,omitempty"`
	Rename          map[string]string   `yaml:"rename" json:"rename,omitempty"`
	KeepZero        bool                `yaml:"keep_zero" json:"keep_zero,omitempty"`
}

// SearchStage filters the project ledger by a free-text query
type SearchStage struct {
	Columns []string `yaml:"columns" json:"columns" validate:"min=1"`
}

// Aggregation is one named output table of a report
type Aggregation struct {
	Name  string `json:"name" validate:"required"`
	Kind  Kind   `json:"kind" validate:"oneof=sum count_distinct count_rows deliverables combine"`
	Input Input  `json:"input,omitempty"`

	GroupBy   string   `json:"group_by,omitempty"`
	Templates []string `json:"templates,omitempty"`
	// Column is counted by count_distinct and classified by deliverables
	Column     string `json:"column,omitempty"`
	EntityAttr string `json:"entity_attr,omitempty"`

	Include map[string][]string `json:"include,omitempty"`
	Exclude map[string][]string `json:"exclude,omitempty"`
	// Range pins the window; nil follows the request
	Range *domain.YearRange `json:"range,omitempty"`

	// Of names earlier aggregations summed by combine
	Of []string `json:"of,omitempty"`

	TopN         int                `json:"top_n,omitempty" validate:"gte=0"`
	Ties         aggregate.TieOrder `json:"ties,omitempty"`
	Relabel      map[string]string  `json:"relabel,omitempty"`
	PositiveOnly bool               `json:"positive_only,omitempty"`

	// Budget templates turn on utilization against the same groups
	Budget           []string `json:"budget,omitempty"`
	AveragePerEntity bool     `json:"average_per_entity,omitempty"`
	Shares           bool     `json:"shares,omitempty"`
}

// Sum totals templated columns per group
func Sum(name string, input Input, groupBy string, templates ...string) *Aggregation {
	return &Aggregation{Name: name, Kind: KindSum, Input: input, GroupBy: groupBy, Templates: templates}
}

// CountDistinct counts distinct values of column per group
func CountDistinct(name string, input Input, groupBy, column string) *Aggregation {
	return &Aggregation{Name: name, Kind: KindCountDistinct, Input: input, GroupBy: groupBy, Column: column}
}

// CountRows counts records per group
func CountRows(name string, input Input, groupBy string) *Aggregation {
	return &Aggregation{Name: name, Kind: KindCountRows, Input: input, GroupBy: groupBy}
}

// Deliverables classifies the deliverables column per group, producing one
// aggregate per category named "<name>.<category>"
func Deliverables(name string, input Input, groupBy, column string) *Aggregation {
	return &Aggregation{Name: name, Kind: KindDeliverables, Input: input, GroupBy: groupBy, Column: column}
}

// Combine adds earlier aggregations group by group
func Combine(name string, of ...string) *Aggregation {
	return &Aggregation{Name: name, Kind: KindCombine, Of: of}
}

// Entities counts distinct values of attr per group
func (a *Aggregation) Entities(attr string) *Aggregation {
	a.EntityAttr = attr
	return a
}

// Top keeps the n largest groups
func (a *Aggregation) Top(n int) *Aggregation {
	a.TopN = n
	return a
}

// TieOrder sets how equal totals are ranked
func (a *Aggregation) TieOrder(t aggregate.TieOrder) *Aggregation {
	a.Ties = t
	return a
}

// Within pins the year window
func (a *Aggregation) Within(start, end int) *Aggregation {
	a.Range = &domain.YearRange{Start: start, End: end}
	return a
}

// Where keeps records whose attr is one of values
func (a *Aggregation) Where(attr string, values ...string) *Aggregation {
	if a.Include == nil {
		a.Include = make(map[string][]string)
	}
	a.Include[attr] = append(a.Include[attr], values...)
	return a
}

// Without drops records whose attr is one of values
func (a *Aggregation) Without(attr string, values ...string) *Aggregation {
	if a.Exclude == nil {
		a.Exclude = make(map[string][]string)
	}
	a.Exclude[attr] = append(a.Exclude[attr], values...)
	return a
}

// RelabelGroups renames group keys; positiveOnly drops groups not above zero
func (a *Aggregation) RelabelGroups(relabel map[string]string, positiveOnly bool) *Aggregation {
	a.Relabel = relabel
	a.PositiveOnly = positiveOnly
	return a
}

// Utilization divides the groups by the budget templates
func (a *Aggregation) Utilization(budget ...string) *Aggregation {
	a.Budget = budget
	return a
}

// Average divides each group by its distinct entities
func (a *Aggregation) Average() *Aggregation {
	a.AveragePerEntity = true
	return a
}

// WithShares adds each group's share of the total
func (a *Aggregation) WithShares() *Aggregation {
	a.Shares = true
	return a
}

// filter builds the record predicate from Include and Exclude
func (a *Aggregation) filter() func(domain.Record) bool {
	if len(a.Include) == 0 && len(a.Exclude) == 0 {
		return nil
	}
	include := make(map[string]map[string]bool, len(a.Include))
	for attr, values := range a.Include {
		include[attr] = toSet(values)
	}
	exclude := make(map[string]map[string]bool, len(a.Exclude))
	for attr, values := range a.Exclude {
		exclude[attr] = toSet(values)
	}
	return func(r domain.Record) bool {
		for attr, set := range include {
			if !set[r.Attr(attr)] {
				return false
			}
		}
		for attr, set := range exclude {
			if set[r.Attr(attr)] {
				return false
			}
		}
		return true
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// ReportSpec parameterizes one run of the pipeline
type ReportSpec struct {
	Name         string           `json:"name" validate:"required"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	DefaultRange domain.YearRange `json:"default_range"`

	Funding      *FundingStage  `json:"funding,omitempty"`
	Projects     *ProjectStage  `json:"projects,omitempty"`
	Join         *JoinStage     `json:"join,omitempty"`
	Tables       []TableStage   `json:"tables,omitempty" validate:"dive"`
	Search       *SearchStage   `json:"search,omitempty"`
	Aggregations []*Aggregation `json:"aggregations" validate:"dive"`
}

// Sources lists every source the report reads, in stage order
func (s *ReportSpec) Sources() []domain.SourceID {
	var ids []domain.SourceID
	seen := make(map[domain.SourceID]bool)
	add := func(id domain.SourceID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if s.Funding != nil {
		add(s.Funding.Source)
	}
	if s.Projects != nil {
		add(s.Projects.Source)
	}
	for _, t := range s.Tables {
		add(t.Source)
	}
	return ids
}

// Aggregation returns the named aggregation
func (s *ReportSpec) Aggregation(name string) (*Aggregation, bool) {
	for _, a := range s.Aggregations {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Window returns the requested range or the default one
func (s *ReportSpec) Window(requested *domain.YearRange) (domain.YearRange, error) {
	if requested == nil {
		return s.DefaultRange, nil
	}
	if requested.End < requested.Start {
		return domain.YearRange{}, apperrors.NewAppValidationError(
			fmt.Sprintf("end year %d before start year %d", requested.End, requested.Start))
	}
	return *requested, nil
}

// ReportBuilder assembles a ReportSpec
type ReportBuilder struct {
	spec ReportSpec
}

// NewReport starts a report definition
func NewReport(name string) *ReportBuilder {
	return &ReportBuilder{spec: ReportSpec{Name: name, Title: name}}
}

// Title sets the display title
func (b *ReportBuilder) Title(title string) *ReportBuilder {
	b.spec.Title = title
	return b
}

// Describe sets the description
func (b *ReportBuilder) Describe(text string) *ReportBuilder {
	b.spec.Description = text
	return b
}

// Years sets the default window
func (b *ReportBuilder) Years(start, end int) *ReportBuilder {
	b.spec.DefaultRange = domain.YearRange{Start: start, End: end}
	return b
}

// Window sets the default window from a range
func (b *ReportBuilder) Window(r domain.YearRange) *ReportBuilder {
	b.spec.DefaultRange = r
	return b
}

// Funding adds the funding stage
func (b *ReportBuilder) Funding(stage FundingStage) *ReportBuilder {
	stage = stage.withDefaults()
	b.spec.Funding = &stage
	return b
}

// Projects adds the project stage
func (b *ReportBuilder) Projects(stage ProjectStage) *ReportBuilder {
	b.spec.Projects = &stage
	return b
}

// Join adds the join stage
func (b *ReportBuilder) Join(stage JoinStage) *ReportBuilder {
	b.spec.Join = &stage
	return b
}

// Table adds an auxiliary table stage
func (b *ReportBuilder) Table(stage TableStage) *ReportBuilder {
	if stage.Name == "" {
		stage.Name = stage.Source.String()
	}
	b.spec.Tables = append(b.spec.Tables, stage)
	return b
}

// Search adds the search stage over the given project columns
func (b *ReportBuilder) Search(columns ...string) *ReportBuilder {
	b.spec.Search = &SearchStage{Columns: columns}
	return b
}

// Aggregate appends aggregations in evaluation order
func (b *ReportBuilder) Aggregate(aggs ...*Aggregation) *ReportBuilder {
	b.spec.Aggregations = append(b.spec.Aggregations, aggs...)
	return b
}

var validate = validator.New()

// Build validates the definition and returns a copy of it
func (b *ReportBuilder) Build() (*ReportSpec, error) {
	spec := b.spec
	spec.Aggregations = append([]*Aggregation(nil), b.spec.Aggregations...)
	spec.Tables = append([]TableStage(nil), b.spec.Tables...)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// MustBuild is Build for static definitions
func (b *ReportBuilder) MustBuild() *ReportSpec {
	spec, err := b.Build()
	if err != nil {
		panic(err)
	}
	return spec
}

// Validate checks field constraints and that every aggregation can be fed
func (s *ReportSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return s.configError(fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return s.configError(err.Error())
	}

	if s.Join != nil && (s.Funding == nil || s.Projects == nil) {
		return s.configError("join needs both a funding and a projects stage")
	}
	if s.Search != nil && s.Projects == nil {
		return s.configError("search needs a projects stage")
	}

	tables := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if tables[t.Name] {
			return s.configError(fmt.Sprintf("duplicate table stage %q", t.Name))
		}
		tables[t.Name] = true
	}

	seen := make(map[string]bool, len(s.Aggregations))
	for _, a := range s.Aggregations {
		if seen[a.Name] {
			return s.configError(fmt.Sprintf("duplicate aggregation %q", a.Name))
		}
		if err := s.validateAggregation(a, seen, tables); err != nil {
			return err
		}
		seen[a.Name] = true
	}
	return nil
}

func (s *ReportSpec) validateAggregation(a *Aggregation, earlier, tables map[string]bool) error {
	fail := func(msg string) error {
		return s.configError(msg).WithContext("aggregation", a.Name)
	}

	if a.Kind == KindCombine {
		if len(a.Of) == 0 {
			return fail("combine needs at least one input aggregation")
		}
		for _, name := range a.Of {
			if !earlier[name] {
				return fail(fmt.Sprintf("combine input %q is not an earlier aggregation", name))
			}
		}
		return nil
	}

	switch a.Input {
	case InputEnriched:
		if s.Join == nil {
			return fail("enriched input needs a join stage")
		}
	case InputFunding:
		if s.Funding == nil {
			return fail("funding input needs a funding stage")
		}
	case InputProjects:
		if s.Projects == nil {
			return fail("projects input needs a projects stage")
		}
	default:
		name, ok := a.Input.TableName()
		if !ok || !tables[name] {
			return fail(fmt.Sprintf("unknown input %q", a.Input))
		}
	}

	switch a.Kind {
	case KindSum:
		if len(a.Templates) == 0 {
			return fail("sum needs column templates")
		}
	case KindCountDistinct, KindDeliverables:
		if a.GroupBy == "" || a.Column == "" {
			return fail(fmt.Sprintf("%s needs a group and a column", a.Kind))
		}
	case KindCountRows:
		if a.GroupBy == "" {
			return fail("count_rows needs a group")
		}
	}
	if a.AveragePerEntity && a.EntityAttr == "" {
		return fail("average per entity needs an entity attribute")
	}
	if len(a.Budget) > 0 && a.Kind != KindSum {
		return fail("utilization applies to sums only")
	}
	return nil
}

func (s *ReportSpec) configError(msg string) *apperrors.AppError {
	return apperrors.NewConfigError("report "+s.Name+": "+msg, nil).WithContext("report", s.Name)
}
