package domain

import (
	"sort"
	"strings"
)

// Record is anything the aggregator can group and sum: raw rows,
// consolidated rows and enriched records all satisfy it.
type Record interface {
	// Attr returns a label attribute such as Discipline or Type
	Attr(name string) string
	// Value returns a numeric column, 0 when absent
	Value(column string) float64
	// Has reports whether the numeric column exists on the record
	Has(column string) bool
}

// Entity is a canonical identity plus the raw spellings that resolved to it
type Entity struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
}

// ProvenanceKind distinguishes summed values from asserted ones
type ProvenanceKind string

const (
	// ProvenanceObserved marks values summed from contributing raw rows
	ProvenanceObserved ProvenanceKind = "observed"
	// ProvenanceOverridden marks caller-supplied totals that replace observed rows
	ProvenanceOverridden ProvenanceKind = "overridden"
)

// Provenance records where a consolidated row's numbers came from
type Provenance struct {
	Kind   ProvenanceKind `json:"kind"`
	Source string         `json:"source,omitempty"`
	Note   string         `json:"note,omitempty"`
	// Replaced counts the raw rows an override masked out
	Replaced int `json:"replaced,omitempty"`
	// ObservedValues holds the sum of the masked rows, kept for audit only
	ObservedValues map[string]float64 `json:"observed_values,omitempty"`
}

// IsOverride reports whether the row carries asserted totals
func (p Provenance) IsOverride() bool {
	return p.Kind == ProvenanceOverridden
}

// ConsolidatedRow is one logical record per group key with numeric columns summed
type ConsolidatedRow struct {
	Key          string             `json:"key"`
	Labels       map[string]string  `json:"labels"`
	Values       map[string]float64 `json:"values"`
	Contributors int                `json:"contributors"`
	Provenance   Provenance         `json:"provenance"`
}

// Attr returns a representative label
func (r ConsolidatedRow) Attr(name string) string {
	return r.Labels[name]
}

// Value returns the summed numeric column
func (r ConsolidatedRow) Value(column string) float64 {
	return r.Values[column]
}

// Has reports whether the numeric column was consolidated
func (r ConsolidatedRow) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// Total sums every numeric column of the row
func (r ConsolidatedRow) Total() float64 {
	var total float64
	for _, v := range r.Values {
		total += v
	}
	return total
}

// IsZero reports whether the row's numeric columns sum to exactly zero.
// Offsetting entries such as 100 and (100) count as no activity.
func (r ConsolidatedRow) IsZero() bool {
	return r.Total() == 0
}

// ValueColumns returns the numeric column names in sorted order
func (r ConsolidatedRow) ValueColumns() []string {
	cols := make([]string, 0, len(r.Values))
	for c := range r.Values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// EnrichedRecord is a funding-side consolidated row joined with productivity attributes
type EnrichedRecord struct {
	ConsolidatedRow
	// Entity is the join token (surname) the record matched on
	Entity string `json:"entity"`
	// Attributes holds Program, Discipline, Institution, Sponsor...
	Attributes map[string]string `json:"attributes"`
}

// Attr prefers joined attributes, falling back to the funding row labels
func (e EnrichedRecord) Attr(name string) string {
	if v, ok := e.Attributes[name]; ok {
		return v
	}
	return e.ConsolidatedRow.Attr(name)
}

// EnrichedRecords converts enriched records to aggregator input
func EnrichedRecords(records []EnrichedRecord) []Record {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i]
	}
	return out
}

// ConsolidatedRecords converts consolidated rows to aggregator input
func ConsolidatedRecords(rows []ConsolidatedRow) []Record {
	out := make([]Record, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out
}

// JoinKey builds a compound key from label parts
func JoinKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}
