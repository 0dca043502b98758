package aggregate

import (
	"sort"

	"ebidash/pkg/contracts/domain"
)

// Metric names used in diagnostics
const (
	MetricUtilization      = "utilization"
	MetricAveragePerEntity = "average_per_entity"
	MetricShare            = "share"
)

// Ratios divides num by den group by group. Groups of num missing from den
// divide by zero. Every undefined ratio is reported.
func Ratios(metric string, num, den *domain.AggregateResult, scale float64) (map[string]domain.Ratio, []domain.UndefinedMetric) {
	out := make(map[string]domain.Ratio, len(num.Groups))
	var undefined []domain.UndefinedMetric
	for _, g := range num.Groups {
		d, _ := den.Get(g.Key)
		r := domain.NewRatio(g.Total, d, scale)
		if !r.Defined {
			undefined = append(undefined, domain.UndefinedMetric{
				Metric: metric,
				Group:  g.Key,
				Reason: "zero denominator",
			})
		}
		out[g.Key] = r
	}
	return out, undefined
}

// Utilization is sum(actual) / sum(budget) * 100 per group
func Utilization(actual, budget *domain.AggregateResult) (map[string]domain.Ratio, []domain.UndefinedMetric) {
	return Ratios(MetricUtilization, actual, budget, 100)
}

// OverallUtilization is the utilization of the summed totals
func OverallUtilization(actual, budget float64) (domain.Ratio, *domain.UndefinedMetric) {
	r := domain.NewRatio(actual, budget, 100)
	if !r.Defined {
		return r, &domain.UndefinedMetric{Metric: MetricUtilization, Reason: "zero budget"}
	}
	return r, nil
}

// AveragePerEntity divides each group total by its distinct entity count
func AveragePerEntity(res *domain.AggregateResult) (map[string]domain.Ratio, []domain.UndefinedMetric) {
	out := make(map[string]domain.Ratio, len(res.Groups))
	var undefined []domain.UndefinedMetric
	for _, g := range res.Groups {
		r := domain.NewRatio(g.Total, float64(g.Entities), 1)
		if !r.Defined {
			undefined = append(undefined, domain.UndefinedMetric{
				Metric: MetricAveragePerEntity,
				Group:  g.Key,
				Reason: "no entities",
			})
		}
		out[g.Key] = r
	}
	return out, undefined
}

// Shares expresses each group as a percentage of the result sum
func Shares(res *domain.AggregateResult) (map[string]domain.Ratio, []domain.UndefinedMetric) {
	total := res.Sum()
	out := make(map[string]domain.Ratio, len(res.Groups))
	var undefined []domain.UndefinedMetric
	for _, g := range res.Groups {
		r := domain.NewRatio(g.Total, total, 100)
		if !r.Defined {
			undefined = append(undefined, domain.UndefinedMetric{Metric: MetricShare, Group: g.Key, Reason: "zero total"})
		}
		out[g.Key] = r
	}
	return out, undefined
}

// TieOrder decides the order of groups with equal totals in a ranking
type TieOrder int

const (
	// TiesFirstSeen keeps the order groups were first seen in
	TiesFirstSeen TieOrder = iota
	// TiesLexical orders tied groups by key
	TiesLexical
)

// TopN ranks groups by total descending and keeps the first n.
// n <= 0 keeps every group.
func TopN(res *domain.AggregateResult, n int, ties TieOrder) *domain.AggregateResult {
	out := *res
	out.Groups = append([]domain.GroupTotal(nil), res.Groups...)
	sort.SliceStable(out.Groups, func(i, j int) bool {
		a, b := out.Groups[i], out.Groups[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if ties == TiesLexical {
			return a.Key < b.Key
		}
		return false
	})
	if n > 0 && len(out.Groups) > n {
		out.Groups = out.Groups[:n]
	}
	return &out
}
