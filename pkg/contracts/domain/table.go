package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// SourceID identifies one of the independently maintained ledgers
type SourceID string

const (
	SourceFunding        SourceID = "funding"
	SourceProductivity   SourceID = "productivity"
	SourceAdministrative SourceID = "administrative"
	SourceBerkeley       SourceID = "berkeley"
	SourceIP             SourceID = "ip"
	SourcePortfolio      SourceID = "portfolio"
)

// KnownSources lists every ledger the report catalog reads from
var KnownSources = []SourceID{
	SourceFunding,
	SourceProductivity,
	SourceAdministrative,
	SourceBerkeley,
	SourceIP,
	SourcePortfolio,
}

// String returns the source identifier as text
func (s SourceID) String() string {
	return string(s)
}

// Known reports whether s is one of KnownSources
func (s SourceID) Known() bool {
	for _, k := range KnownSources {
		if k == s {
			return true
		}
	}
	return false
}

// Row is a single raw record: column name to cell value.
// Cells hold string, float64, int, bool or nil (empty).
type Row map[string]any

// String renders the cell as text. Nil and missing cells render as "".
func (r Row) String(column string) string {
	return CellString(r[column])
}

// Value returns the cell as a float64 when it already holds a number.
// Rows that went through the normalizer hold float64 in every numeric column.
func (r Row) Value(column string) float64 {
	switch v := r[column].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Attr implements Record for raw and normalized rows
func (r Row) Attr(name string) string {
	return strings.TrimSpace(r.String(name))
}

// Has reports whether the row carries the column at all
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Clone returns a shallow copy of the row map
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered sequence of rows loaded from one source
type Table struct {
	Source  SourceID `json:"source"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable creates a table with the given header
func NewTable(source SourceID, columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Source: source, Columns: cols}
}

// Append adds a row to the table
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the column appears in the header or in any row
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	for _, row := range t.Rows {
		if row.Has(name) {
			return true
		}
	}
	return false
}

// ColumnNames returns the header followed by any extra columns seen only in rows,
// in first-seen order.
func (t *Table) ColumnNames() []string {
	seen := make(map[string]bool, len(t.Columns))
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	for _, row := range t.Rows {
		extra := make([]string, 0)
		for k := range row {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
		// map order is random; keep the output deterministic
		sort.Strings(extra)
		for _, k := range extra {
			seen[k] = true
			names = append(names, k)
		}
	}
	return names
}

// Clone deep-copies the table so later stages never mutate a loaded table
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Source:  t.Source,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = row.Clone()
	}
	return out
}

// Filter returns a copy holding only the rows for which keep returns true
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Source: t.Source, Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row.Clone())
		}
	}
	return out
}

// Records exposes every row as a Record for the aggregator
func (t *Table) Records() []Record {
	out := make([]Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row
	}
	return out
}

// CellString renders a raw cell as text
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		if math.IsNaN(c) {
			return ""
		}
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
