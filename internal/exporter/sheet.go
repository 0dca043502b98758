package exporter

import (
	"sort"
	"strconv"

	"ebidash/pkg/contracts/domain"
)

// Sheet is one rectangular block of a report: an aggregate, the metrics,
// the counts or a table of rows. Cells hold string, float64 or int.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// ReportSheets lays a report out as sheets: aggregates by name, then
// metrics, counts, matches and diagnostics when present.
func ReportSheets(rep *domain.Report) []Sheet {
	var sheets []Sheet
	for _, name := range rep.AggregateNames() {
		sheets = append(sheets, AggregateSheet(rep.Aggregates[name]))
	}
	if len(rep.Metrics) > 0 {
		sheets = append(sheets, MetricsSheet(rep.Metrics))
	}
	if len(rep.Counts) > 0 {
		sheets = append(sheets, CountsSheet(rep.Counts))
	}
	if rep.Matches != nil {
		sheets = append(sheets, TableSheet("matches", rep.Matches))
	}
	if !rep.Diagnostics.Empty() {
		sheets = append(sheets, DiagnosticsSheet(rep.Diagnostics))
	}
	return sheets
}

// AggregateSheet renders one aggregate: a row per group with a column per
// year when the groups carry a yearly breakdown.
func AggregateSheet(res *domain.AggregateResult) Sheet {
	groupCol := res.GroupBy
	if groupCol == "" {
		groupCol = "Group"
	}

	yearSet := map[int]bool{}
	withEntities := false
	for _, g := range res.Groups {
		for y := range g.ByYear {
			yearSet[y] = true
		}
		if g.Entities > 0 {
			withEntities = true
		}
	}
	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	header := []string{groupCol}
	for _, y := range years {
		header = append(header, strconv.Itoa(y))
	}
	header = append(header, "Total")
	if withEntities {
		header = append(header, "Entities")
	}

	rows := make([][]any, 0, len(res.Groups))
	for _, g := range res.Groups {
		row := make([]any, 0, len(header))
		row = append(row, g.Key)
		for _, y := range years {
			row = append(row, g.ByYear[y])
		}
		row = append(row, g.Total)
		if withEntities {
			row = append(row, g.Entities)
		}
		rows = append(rows, row)
	}
	return Sheet{Name: res.Name, Header: header, Rows: rows}
}

// MetricsSheet lists derived ratios; undefined ones have an empty value
func MetricsSheet(metrics map[string]domain.Ratio) Sheet {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]any, 0, len(names))
	for _, name := range names {
		r := metrics[name]
		var value any = ""
		if r.Defined {
			value = r.Value
		}
		rows = append(rows, []any{name, value})
	}
	return Sheet{Name: "metrics", Header: []string{"Metric", "Value"}, Rows: rows}
}

// CountsSheet lists the run's counters
func CountsSheet(counts map[string]int) Sheet {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, []any{name, counts[name]})
	}
	return Sheet{Name: "counts", Header: []string{"Count", "Value"}, Rows: rows}
}

// TableSheet renders raw rows under the table's header
func TableSheet(name string, t *domain.Table) Sheet {
	cols := t.ColumnNames()
	rows := make([][]any, 0, t.Len())
	for _, r := range t.Rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = r.String(c)
		}
		rows = append(rows, row)
	}
	return Sheet{Name: name, Header: cols, Rows: rows}
}

// DiagnosticsSheet flattens the diagnostics log into kind/subject/detail rows
func DiagnosticsSheet(d domain.Diagnostics) Sheet {
	rows := make([][]any, 0, d.Count())
	for _, w := range d.ParseWarnings {
		rows = append(rows, []any{"parse_warning",
			string(w.Source) + "." + w.Column + " row " + strconv.Itoa(w.Row),
			w.Reason + ": " + strconv.Quote(w.Value)})
	}
	for _, n := range d.JoinNotices {
		detail := n.Policy + " chose " + strconv.Quote(n.Chosen)
		if n.Dropped {
			detail = n.Policy + " dropped the row"
		}
		rows = append(rows, []any{"join_ambiguity", n.Token, detail})
	}
	for _, u := range d.Undefined {
		subject := u.Metric
		if u.Group != "" {
			subject += "." + u.Group
		}
		rows = append(rows, []any{"undefined_metric", subject, u.Reason})
	}
	for _, key := range d.DroppedZero {
		rows = append(rows, []any{"dropped_zero", key, "no activity in any numeric column"})
	}
	return Sheet{Name: "diagnostics", Header: []string{"Kind", "Subject", "Detail"}, Rows: rows}
}

// cellText renders a cell for text formats
func cellText(v any) string {
	switch c := v.(type) {
	case float64:
		return formatFloat(c)
	case int:
		return formatInt(int64(c))
	case bool:
		return formatBool(c)
	default:
		return domain.CellString(c)
	}
}
