package aggregate

import (
	"sort"

	"ebidash/pkg/contracts/domain"
)

// Period is a named year window, e.g. a sponsor's funding era
type Period struct {
	Name  string           `yaml:"name" json:"name" validate:"required"`
	Range domain.YearRange `yaml:"range" json:"range"`
}

// Periods runs Sum once per period; each result is named after its period
func Periods(records []domain.Record, opts Options, periods ...Period) ([]*domain.AggregateResult, error) {
	out := make([]*domain.AggregateResult, 0, len(periods))
	for _, p := range periods {
		o := opts
		o.Name = p.Name
		o.Range = p.Range
		res, err := Sum(records, o)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Combine adds results group by group. Groups keep first-seen order across
// the inputs and the range spans all inputs.
func Combine(name string, results ...*domain.AggregateResult) *domain.AggregateResult {
	out := &domain.AggregateResult{Name: name}
	index := make(map[string]int)
	first := true
	for _, res := range results {
		if res == nil {
			continue
		}
		if first || res.Range.Start < out.Range.Start {
			out.Range.Start = res.Range.Start
		}
		if first || res.Range.End > out.Range.End {
			out.Range.End = res.Range.End
		}
		first = false
		out.GroupBy = res.GroupBy
		out.Templates = res.Templates
		for _, g := range res.Groups {
			idx, ok := index[g.Key]
			if !ok {
				index[g.Key] = len(out.Groups)
				out.Groups = append(out.Groups, domain.GroupTotal{Key: g.Key})
				idx = len(out.Groups) - 1
			}
			mergeGroup(&out.Groups[idx], g)
		}
	}
	return out
}

func mergeGroup(dst *domain.GroupTotal, src domain.GroupTotal) {
	dst.Total += src.Total
	dst.Rows += src.Rows
	if src.Entities > dst.Entities {
		dst.Entities = src.Entities
	}
	for y, v := range src.ByYear {
		if dst.ByYear == nil {
			dst.ByYear = make(map[int]float64)
		}
		dst.ByYear[y] += v
	}
}

// RelabelGroups renames group keys, merging groups that end up with the same
// key. With positiveOnly, groups whose total is not above zero are dropped,
// which is what share-of-total charts need.
func RelabelGroups(res *domain.AggregateResult, relabel map[string]string, positiveOnly bool) *domain.AggregateResult {
	out := &domain.AggregateResult{
		Name:      res.Name,
		GroupBy:   res.GroupBy,
		Range:     res.Range,
		Templates: res.Templates,
	}
	index := make(map[string]int)
	for _, g := range res.Groups {
		if positiveOnly && !(g.Total > 0) {
			continue
		}
		key := g.Key
		if to, ok := relabel[key]; ok {
			key = to
		}
		idx, ok := index[key]
		if !ok {
			index[key] = len(out.Groups)
			out.Groups = append(out.Groups, domain.GroupTotal{Key: key})
			idx = len(out.Groups) - 1
		}
		mergeGroup(&out.Groups[idx], g)
	}
	return out
}

// SeriesPoint is one group's value in one year
type SeriesPoint struct {
	Group string  `json:"group"`
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Series flattens per-year totals into chart points, group order first then year
func Series(res *domain.AggregateResult) []SeriesPoint {
	var out []SeriesPoint
	for _, g := range res.Groups {
		years := make([]int, 0, len(g.ByYear))
		for y := range g.ByYear {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			out = append(out, SeriesPoint{Group: g.Key, Year: y, Value: g.ByYear[y]})
		}
	}
	return out
}
