package aggregate

import (
	"regexp"
	"strconv"
	"strings"

	"ebidash/pkg/contracts/domain"
)

// CountDistinct counts distinct non-blank values of column per group,
// e.g. patent titles per discipline.
func CountDistinct(name string, records []domain.Record, groupBy, column string) *domain.AggregateResult {
	res := &domain.AggregateResult{Name: name, GroupBy: groupBy}
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)
	for _, r := range records {
		key := r.Attr(groupBy)
		if key == "" {
			continue
		}
		idx, ok := index[key]
		if !ok {
			idx = len(res.Groups)
			index[key] = idx
			res.Groups = append(res.Groups, domain.GroupTotal{Key: key})
			seen[key] = make(map[string]bool)
		}
		res.Groups[idx].Rows++
		v := r.Attr(column)
		if v == "" || seen[key][v] {
			continue
		}
		seen[key][v] = true
		res.Groups[idx].Total++
		res.Groups[idx].Entities++
	}
	return res
}

// CountRows counts records per group
func CountRows(name string, records []domain.Record, groupBy string) *domain.AggregateResult {
	res := &domain.AggregateResult{Name: name, GroupBy: groupBy}
	index := make(map[string]int)
	for _, r := range records {
		key := r.Attr(groupBy)
		if key == "" {
			continue
		}
		idx, ok := index[key]
		if !ok {
			idx = len(res.Groups)
			index[key] = idx
			res.Groups = append(res.Groups, domain.GroupTotal{Key: key})
		}
		res.Groups[idx].Rows++
		res.Groups[idx].Total++
	}
	return res
}

// Deliverable categories
const (
	DeliverablePublications  = "publications"
	DeliverablePresentations = "presentations"
	DeliverableReports       = "reports"
	DeliverableOther         = "other"
)

// DeliverableCategories lists categories in display order
var DeliverableCategories = []string{
	DeliverablePublications,
	DeliverablePresentations,
	DeliverableReports,
	DeliverableOther,
}

type deliverableRule struct {
	category string
	keywords []string
	count    *regexp.Regexp
}

var deliverableRules = []deliverableRule{
	{
		category: DeliverablePublications,
		keywords: []string{"publication", "paper", "journal", "article"},
		count:    regexp.MustCompile(`(\d+)\s*(?:publication|paper|article)`),
	},
	{
		category: DeliverablePresentations,
		keywords: []string{"presentation", "conference", "workshop"},
		count:    regexp.MustCompile(`(\d+)\s*(?:presentation|conference|workshop)`),
	},
	{
		category: DeliverableReports,
		keywords: []string{"report"},
		count:    regexp.MustCompile(`(\d+)\s*report`),
	},
	{
		category: DeliverableOther,
		keywords: []string{"dataset", "software", "tool", "patent"},
	},
}

// CountDeliverables classifies one free-text deliverables entry.
// "5 publications" counts 5; a keyword without a number counts 1.
func CountDeliverables(entry string) map[string]int {
	text := strings.ToLower(entry)
	out := make(map[string]int, len(deliverableRules))
	for _, rule := range deliverableRules {
		if !containsAny(text, rule.keywords) {
			continue
		}
		n := 1
		if rule.count != nil {
			if matches := rule.count.FindAllStringSubmatch(text, -1); len(matches) > 0 {
				n = 0
				for _, m := range matches {
					v, _ := strconv.Atoi(m[1])
					n += v
				}
			}
		}
		out[rule.category] += n
	}
	return out
}

// Deliverables counts deliverables per group, one result per category, keyed
// by category name.
func Deliverables(records []domain.Record, groupBy, column string) map[string]*domain.AggregateResult {
	out := make(map[string]*domain.AggregateResult, len(DeliverableCategories))
	for _, c := range DeliverableCategories {
		out[c] = &domain.AggregateResult{Name: "deliverables." + c, GroupBy: groupBy}
	}

	index := make(map[string]int)
	for _, r := range records {
		key := r.Attr(groupBy)
		if key == "" {
			continue
		}
		idx, ok := index[key]
		if !ok {
			idx = len(index)
			index[key] = idx
			for _, c := range DeliverableCategories {
				out[c].Groups = append(out[c].Groups, domain.GroupTotal{Key: key})
			}
		}
		counts := CountDeliverables(r.Attr(column))
		for _, c := range DeliverableCategories {
			g := &out[c].Groups[idx]
			g.Rows++
			g.Total += float64(counts[c])
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
