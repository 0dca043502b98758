package consolidate

import (
	"strings"

	"ebidash/pkg/contracts/domain"
)

// Override asserts the totals for a set of raw rows. Matching rows are masked
// out of the merge and a single row carrying Values stands in for them.
// Column with Equals or Contains describes the match in config files;
// Match takes precedence when set from code.
type Override struct {
	Key      string             `yaml:"key" json:"key" validate:"required"`
	Column   string             `yaml:"column" json:"column"`
	Equals   []string           `yaml:"equals" json:"equals,omitempty"`
	Contains string             `yaml:"contains" json:"contains,omitempty"`
	Labels   map[string]string  `yaml:"labels" json:"labels,omitempty"`
	Values   map[string]float64 `yaml:"values" json:"values" validate:"required"`
	Source   string             `yaml:"source" json:"source,omitempty"`
	Note     string             `yaml:"note" json:"note,omitempty"`

	Match func(domain.Row) bool `yaml:"-" json:"-"`
}

// Matches reports whether a raw row is masked by the override
func (o Override) Matches(row domain.Row) bool {
	if o.Match != nil {
		return o.Match(row)
	}
	if o.Column == "" {
		return false
	}
	if len(o.Equals) > 0 && MatchLabel(o.Column, o.Equals...)(row) {
		return true
	}
	if o.Contains != "" {
		return MatchContains(o.Column, o.Contains)(row)
	}
	return false
}

func (o Override) row(observed *domain.ConsolidatedRow, numeric []string) domain.ConsolidatedRow {
	out := domain.ConsolidatedRow{
		Key:    o.Key,
		Labels: make(map[string]string, len(o.Labels)+1),
		Values: make(map[string]float64, len(numeric)),
		Provenance: domain.Provenance{
			Kind:   domain.ProvenanceOverridden,
			Source: o.Source,
			Note:   o.Note,
		},
	}
	if o.Column != "" {
		out.Labels[o.Column] = o.Key
	}
	for k, v := range o.Labels {
		out.Labels[k] = v
	}
	for _, col := range numeric {
		out.Values[col] = o.Values[col]
	}
	for col, v := range o.Values {
		out.Values[col] = v
	}
	if observed != nil {
		out.Provenance.Replaced = observed.Contributors
		out.Provenance.ObservedValues = observed.Values
	}
	return out
}

func matchOverride(overrides []Override, row domain.Row) int {
	for i, o := range overrides {
		if o.Matches(row) {
			return i
		}
	}
	return -1
}

// MatchLabel builds a matcher for rows whose column equals one of values
func MatchLabel(column string, values ...string) func(domain.Row) bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return func(r domain.Row) bool {
		return set[r.Attr(column)]
	}
}

// MatchContains builds a case-insensitive substring matcher
func MatchContains(column, substr string) func(domain.Row) bool {
	needle := strings.ToLower(substr)
	return func(r domain.Row) bool {
		return strings.Contains(strings.ToLower(r.Attr(column)), needle)
	}
}
