package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// YearRange is an inclusive window of fiscal years
type YearRange struct {
	Start int `json:"start" validate:"required,min=1900,max=2200"`
	End   int `json:"end" validate:"required,min=1900,max=2200,gtefield=Start"`
}

// Years lists every year in the window
func (r YearRange) Years() []int {
	if r.End < r.Start {
		return nil
	}
	years := make([]int, 0, r.End-r.Start+1)
	for y := r.Start; y <= r.End; y++ {
		years = append(years, y)
	}
	return years
}

// Contains reports whether year falls inside the window
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

// String renders the window as "2015-2024"
func (r YearRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Ratio is a derived metric that may be undefined (zero denominator).
// An undefined ratio marshals to JSON null, never to 0 or Inf.
type Ratio struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// NotApplicable is the sentinel for a ratio with a zero denominator
var NotApplicable = Ratio{}

// NewRatio divides num by den, returning NotApplicable when den is zero
func NewRatio(num, den, scale float64) Ratio {
	if den == 0 {
		return NotApplicable
	}
	return Ratio{Value: num / den * scale, Defined: true}
}

// MarshalJSON renders undefined ratios as null
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// String renders the ratio for logs
func (r Ratio) String() string {
	if !r.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", r.Value)
}

// GroupTotal is one group of an aggregate result
type GroupTotal struct {
	Key      string          `json:"key"`
	Total    float64         `json:"total"`
	ByYear   map[int]float64 `json:"by_year,omitempty"`
	Entities int             `json:"entities"`
	Rows     int             `json:"rows"`
}

// AggregateResult maps group keys to totals for one window and column set.
// Groups keep first-seen order unless a ranking reorders them.
type AggregateResult struct {
	Name      string       `json:"name"`
	GroupBy   string       `json:"group_by"`
	Range     YearRange    `json:"range"`
	Templates []string     `json:"templates,omitempty"`
	Groups    []GroupTotal `json:"groups"`
}

// Get returns the total for a group key
func (a *AggregateResult) Get(key string) (float64, bool) {
	for _, g := range a.Groups {
		if g.Key == key {
			return g.Total, true
		}
	}
	return 0, false
}

// Group returns the full group entry for a key
func (a *AggregateResult) Group(key string) (GroupTotal, bool) {
	for _, g := range a.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return GroupTotal{}, false
}

// Keys returns the group keys in result order
func (a *AggregateResult) Keys() []string {
	keys := make([]string, len(a.Groups))
	for i, g := range a.Groups {
		keys[i] = g.Key
	}
	return keys
}

// Sum adds every group total
func (a *AggregateResult) Sum() float64 {
	var total float64
	for _, g := range a.Groups {
		total += g.Total
	}
	return total
}

// AsMap returns group -> total
func (a *AggregateResult) AsMap() map[string]float64 {
	out := make(map[string]float64, len(a.Groups))
	for _, g := range a.Groups {
		out[g.Key] = g.Total
	}
	return out
}

// JoinStats reports how many rows an inner join kept and dropped on each side
type JoinStats struct {
	FundingRows           int `json:"funding_rows"`
	ProductivityRows      int `json:"productivity_rows"`
	ProductivityGroups    int `json:"productivity_groups"`
	Matched               int `json:"matched"`
	MatchedGroups         int `json:"matched_groups"`
	UnmatchedFunding      int `json:"unmatched_funding"`
	UnmatchedProductivity int `json:"unmatched_productivity"`
	Ambiguous             int `json:"ambiguous"`
}

// Report is everything one pipeline run hands to a consumer
type Report struct {
	Name         string                      `json:"name"`
	RunID        string                      `json:"run_id"`
	GeneratedAt  time.Time                   `json:"generated_at"`
	Range        YearRange                   `json:"range"`
	Aggregates   map[string]*AggregateResult `json:"aggregates"`
	Metrics      map[string]Ratio            `json:"metrics,omitempty"`
	Counts       map[string]int              `json:"counts,omitempty"`
	Entities     []Entity                    `json:"entities,omitempty"`
	Consolidated []ConsolidatedRow           `json:"consolidated,omitempty"`
	Enriched     []EnrichedRecord            `json:"enriched,omitempty"`
	Join         *JoinStats                  `json:"join,omitempty"`
	// Matches holds the rows of a search report
	Matches     *Table      `json:"matches,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Aggregate returns a named aggregate or nil
func (r *Report) Aggregate(name string) *AggregateResult {
	if r.Aggregates == nil {
		return nil
	}
	return r.Aggregates[name]
}

// AggregateNames returns aggregate names in sorted order
func (r *Report) AggregateNames() []string {
	names := make([]string, 0, len(r.Aggregates))
	for name := range r.Aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
