// Package aggregate sums records over year windows and derives ratios,
// rankings and counts from the sums.
//
// Column templates name year-keyed columns: "{year} Actual" expands to
// "2019 Actual", "2020 Actual" and so on. A year missing from a record
// contributes 0. A template that matches no column of the schema for any
// year is a configuration error, since that points at a renamed or mistyped
// column rather than a sparse sheet.
package aggregate

import (
	"strconv"
	"strings"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// YearToken is the placeholder replaced by a year in column templates
const YearToken = "{year}"

// TotalKey is the group key used when no group-by attribute is given
const TotalKey = "Total"

// Options configures Sum
type Options struct {
	Name string
	// GroupBy is the record attribute that forms groups; empty sums everything under TotalKey
	GroupBy string
	// Range is the inclusive year window applied to templates containing {year}
	Range domain.YearRange
	// Templates are summed together, e.g. {"{year} Actual"}
	Templates []string
	// EntityAttr counts distinct entities per group, e.g. "PI"
	EntityAttr string
	// Filter keeps only the records it returns true for
	Filter func(domain.Record) bool
	// Schema, when set, is checked so every template matches at least one column
	Schema []string
}

// Column expands a template for one year
func Column(template string, year int) string {
	return strings.ReplaceAll(template, YearToken, strconv.Itoa(year))
}

// IsYearTemplate reports whether the template carries a year placeholder
func IsYearTemplate(template string) bool {
	return strings.Contains(template, YearToken)
}

// TemplateYears returns the years for which the schema has a column matching
// the template, mapped to the column name.
func TemplateYears(schema []string, template string) map[int]string {
	out := make(map[int]string)
	prefix, suffix, ok := strings.Cut(template, YearToken)
	if !ok {
		return out
	}
	for _, col := range schema {
		if !strings.HasPrefix(col, prefix) || !strings.HasSuffix(col, suffix) || len(col) < len(prefix)+len(suffix) {
			continue
		}
		mid := col[len(prefix) : len(col)-len(suffix)]
		year, err := strconv.Atoi(mid)
		if err != nil || len(mid) != 4 {
			continue
		}
		out[year] = col
	}
	return out
}

// ValidateTemplates checks every template against a schema
func ValidateTemplates(source string, schema []string, templates ...string) error {
	cols := make(map[string]bool, len(schema))
	for _, c := range schema {
		cols[c] = true
	}
	for _, tpl := range templates {
		if IsYearTemplate(tpl) {
			if len(TemplateYears(schema, tpl)) == 0 {
				return apperrors.NewConfigError("column template matches no column", nil).
					WithContext("source", source).
					WithContext("template", tpl)
			}
			continue
		}
		if !cols[tpl] {
			return apperrors.MissingColumnError(source, tpl)
		}
	}
	return nil
}

type accumulator struct {
	total    domain.GroupTotal
	entities map[string]bool
}

// Sum totals the templated columns of records per group over opts.Range.
// Groups keep the order in which their first record appears; records with a
// blank group value are skipped.
func Sum(records []domain.Record, opts Options) (*domain.AggregateResult, error) {
	if len(opts.Templates) == 0 {
		return nil, apperrors.NewAppValidationError("aggregate: no column templates")
	}
	if opts.Schema != nil {
		if err := ValidateTemplates(opts.Name, opts.Schema, opts.Templates...); err != nil {
			return nil, err
		}
	}

	years := opts.Range.Years()
	res := &domain.AggregateResult{
		Name:      opts.Name,
		GroupBy:   opts.GroupBy,
		Range:     opts.Range,
		Templates: append([]string(nil), opts.Templates...),
	}

	groups := make(map[string]*accumulator)
	var order []string
	for _, rec := range records {
		if opts.Filter != nil && !opts.Filter(rec) {
			continue
		}
		key := TotalKey
		if opts.GroupBy != "" {
			key = rec.Attr(opts.GroupBy)
			if key == "" {
				continue
			}
		}

		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{
				total:    domain.GroupTotal{Key: key},
				entities: make(map[string]bool),
			}
			groups[key] = acc
			order = append(order, key)
		}
		acc.total.Rows++
		if opts.EntityAttr != "" {
			if e := rec.Attr(opts.EntityAttr); e != "" {
				acc.entities[e] = true
			}
		}

		for _, tpl := range opts.Templates {
			if !IsYearTemplate(tpl) {
				acc.total.Total += rec.Value(tpl)
				continue
			}
			for _, y := range years {
				v := rec.Value(Column(tpl, y))
				if acc.total.ByYear == nil {
					acc.total.ByYear = make(map[int]float64, len(years))
				}
				acc.total.ByYear[y] += v
				acc.total.Total += v
			}
		}
	}

	res.Groups = make([]domain.GroupTotal, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		acc.total.Entities = len(acc.entities)
		res.Groups = append(res.Groups, acc.total)
	}
	return res, nil
}

// Total sums the templated columns over the window across all records
func Total(records []domain.Record, r domain.YearRange, templates ...string) float64 {
	res, err := Sum(records, Options{Range: r, Templates: templates})
	if err != nil {
		return 0
	}
	return res.Sum()
}

// Match builds a record filter on an attribute value
func Match(attr string, values ...string) func(domain.Record) bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return func(r domain.Record) bool {
		return set[r.Attr(attr)]
	}
}

// DistinctEntities counts distinct non-blank values of attr across records
func DistinctEntities(records []domain.Record, attr string) int {
	seen := make(map[string]bool)
	for _, r := range records {
		if v := r.Attr(attr); v != "" {
			seen[v] = true
		}
	}
	return len(seen)
}
