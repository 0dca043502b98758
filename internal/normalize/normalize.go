// Package normalize coerces raw spreadsheet cells into numbers and clean labels.
//
// Every function returns a new table; the input table is never modified.
// Numeric coercion never fails a run: blank or unparseable cells become 0
// and are reported as domain.ParseWarning entries. The only fatal condition
// is a designated numeric column that the table does not carry at all.
package normalize

import (
	"errors"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// Warning reasons
const (
	ReasonBlank       = "blank"
	ReasonUnparseable = "unparseable"
	ReasonMissing     = "missing"
)

// Options selects which columns are coerced and how labels are cleaned
type Options struct {
	// Numeric columns are parsed with ParseAmount
	Numeric []string
	// Labels are trimmed of leading and trailing whitespace
	Labels []string
	// Collapse lists label columns whose inner whitespace runs are joined with Separator
	Collapse []string
	// Separator used by Collapse, defaults to a single space
	Separator string
}

// Result is a normalized table plus the warnings collected while building it
type Result struct {
	Table    *domain.Table
	Warnings []domain.ParseWarning
}

// Normalize returns a copy of t with numeric columns coerced to float64
// and label columns cleaned.
func Normalize(t *domain.Table, opts Options) (*Result, error) {
	if t == nil {
		return nil, apperrors.NewAppValidationError("normalize: nil table")
	}
	for _, col := range opts.Numeric {
		if !t.HasColumn(col) {
			return nil, apperrors.MissingColumnError(t.Source.String(), col)
		}
	}

	sep := opts.Separator
	if sep == "" {
		sep = " "
	}
	collapse := make(map[string]bool, len(opts.Collapse))
	for _, c := range opts.Collapse {
		collapse[c] = true
	}

	out := t.Clone()
	res := &Result{Table: out}
	for i, row := range out.Rows {
		for _, col := range opts.Numeric {
			raw, present := row[col]
			f, err := ParseAmount(raw)
			row[col] = f
			if err == nil {
				continue
			}
			reason := ReasonUnparseable
			switch {
			case !present:
				reason = ReasonMissing
			case errors.Is(err, ErrBlankCell):
				reason = ReasonBlank
			}
			res.Warnings = append(res.Warnings, domain.ParseWarning{
				Source: t.Source,
				Column: col,
				Row:    i,
				Value:  domain.CellString(raw),
				Reason: reason,
			})
		}
		for _, col := range opts.Labels {
			if !row.Has(col) {
				continue
			}
			label := Label(row.String(col))
			if collapse[col] {
				label = Collapse(label, sep)
			}
			row[col] = label
		}
	}
	return res, nil
}

// NumericColumnsExcept returns every column of t other than the given label columns
func NumericColumnsExcept(t *domain.Table, labels ...string) []string {
	skip := make(map[string]bool, len(labels))
	for _, l := range labels {
		skip[l] = true
	}
	var cols []string
	for _, c := range t.ColumnNames() {
		if !skip[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// CleanColumns trims header names and, when collapse is set, joins inner
// whitespace with "_" so names are safe to use as keys.
func CleanColumns(t *domain.Table, collapse bool) *domain.Table {
	rename := func(c string) string {
		if collapse {
			return Collapse(c, "_")
		}
		return Label(c)
	}

	out := domain.NewTable(t.Source)
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, rename(c))
	}
	for _, row := range t.Rows {
		clean := make(domain.Row, len(row))
		for k, v := range row {
			clean[rename(k)] = v
		}
		out.Append(clean)
	}
	return out
}

// DropBlank removes rows whose column is empty after trimming
func DropBlank(t *domain.Table, column string) *domain.Table {
	return t.Filter(func(r domain.Row) bool {
		return r.Attr(column) != ""
	})
}
