// Package consolidate collapses raw rows that describe one logical category
// or person into a single summed row.
//
// Numeric columns are summed so that, per column, the consolidated total
// equals the total of the contributing raw rows. Caller-asserted totals
// (overrides) replace the rows they mask and are marked as overridden in the
// row provenance, with the masked observed sums kept for audit.
package consolidate

import (
	"strings"

	apperrors "ebidash/internal/errors"
	"ebidash/internal/normalize"
	"ebidash/pkg/contracts/domain"
)

// Options drives Merge
type Options struct {
	// Key lists the columns identifying a group. Several columns form a compound key.
	Key []string
	// Numeric columns are summed
	Numeric []string
	// Labels are copied from the first row of each group
	Labels []string

	// LabelColumn is the column Rename, Exclude, Occurrences and Display act on.
	// Defaults to Key[0].
	LabelColumn string
	// Rename maps raw labels to merged labels before grouping
	Rename map[string]string
	// Occurrences relabels repeated labels by position: the n-th row carrying
	// the label gets Occurrences[label][n], when present.
	Occurrences map[string][]string
	// Exclude drops rows by label after renaming
	Exclude []string
	// Display forces the label shown for a group key
	Display map[string]string

	// Overrides mask matching rows and stand in one asserted row for each
	Overrides []Override

	// KeepZero disables the zero-activity filter
	KeepZero bool
}

func (o Options) labelColumn() string {
	if o.LabelColumn != "" {
		return o.LabelColumn
	}
	if len(o.Key) > 0 {
		return o.Key[0]
	}
	return ""
}

// Result is the consolidated output of one Merge
type Result struct {
	Rows []domain.ConsolidatedRow
	// DroppedZero lists group keys removed by the zero-activity filter
	DroppedZero []string
	// Excluded counts raw rows removed by Exclude
	Excluded int
	// Masked counts raw rows replaced by overrides
	Masked int
}

// Totals sums each numeric column across the result rows
func (r *Result) Totals() map[string]float64 {
	out := make(map[string]float64)
	for _, row := range r.Rows {
		for col, v := range row.Values {
			out[col] += v
		}
	}
	return out
}

// Row looks up a consolidated row by group key
func (r *Result) Row(key string) (domain.ConsolidatedRow, bool) {
	for _, row := range r.Rows {
		if row.Key == key {
			return row, true
		}
	}
	return domain.ConsolidatedRow{}, false
}

// Merge groups t by opts.Key and sums opts.Numeric per group.
// Groups keep first-seen order; override rows follow the observed groups.
func Merge(t *domain.Table, opts Options) (*Result, error) {
	if t == nil {
		return nil, apperrors.NewAppValidationError("consolidate: nil table")
	}
	if len(opts.Key) == 0 {
		return nil, apperrors.NewAppValidationError("consolidate: no key columns")
	}
	for _, col := range append(append([]string(nil), opts.Key...), opts.Numeric...) {
		if !t.HasColumn(col) {
			return nil, apperrors.MissingColumnError(t.Source.String(), col)
		}
	}

	labelCol := opts.labelColumn()
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[e] = true
	}

	res := &Result{}
	groups := make(map[string]*domain.ConsolidatedRow)
	var order []string
	seen := make(map[string]int)
	masked := make([]*domain.ConsolidatedRow, len(opts.Overrides))

	for _, raw := range t.Rows {
		row := raw.Clone()
		if labelCol != "" && row.Has(labelCol) {
			label := row.Attr(labelCol)
			n := seen[label]
			seen[label]++
			if alts, ok := opts.Occurrences[label]; ok && n < len(alts) && alts[n] != "" {
				label = alts[n]
			}
			label = resolveRename(opts.Rename, label)
			row[labelCol] = label
			if excluded[label] {
				res.Excluded++
				continue
			}
		}

		if idx := matchOverride(opts.Overrides, row); idx >= 0 {
			if masked[idx] == nil {
				masked[idx] = &domain.ConsolidatedRow{Values: make(map[string]float64)}
			}
			addValues(masked[idx], row, opts.Numeric)
			res.Masked++
			continue
		}

		key := groupKey(row, opts.Key)
		g, ok := groups[key]
		if !ok {
			fresh := newRow(key, row, opts)
			g = &fresh
			groups[key] = g
			order = append(order, key)
		}
		addValues(g, row, opts.Numeric)
	}

	for _, key := range order {
		row := *groups[key]
		if d, ok := opts.Display[key]; ok && labelCol != "" {
			row.Labels[labelCol] = d
		}
		res.add(row, opts.KeepZero)
	}
	for i, ov := range opts.Overrides {
		res.add(ov.row(masked[i], opts.Numeric), opts.KeepZero)
	}
	return res, nil
}

func (r *Result) add(row domain.ConsolidatedRow, keepZero bool) {
	if !keepZero && row.IsZero() {
		r.DroppedZero = append(r.DroppedZero, row.Key)
		return
	}
	r.Rows = append(r.Rows, row)
}

// RenameThenMerge applies a label mapping and merges on the renamed label
func RenameThenMerge(t *domain.Table, rename map[string]string, opts Options) (*Result, error) {
	opts.Rename = rename
	return Merge(t, opts)
}

// MaskAndReplace merges t while each override masks its matching rows and
// contributes exactly one asserted row.
func MaskAndReplace(t *domain.Table, opts Options, overrides ...Override) (*Result, error) {
	opts.Overrides = append(append([]Override(nil), opts.Overrides...), overrides...)
	return Merge(t, opts)
}

func newRow(key string, row domain.Row, opts Options) domain.ConsolidatedRow {
	out := domain.ConsolidatedRow{
		Key:        key,
		Labels:     make(map[string]string, len(opts.Key)+len(opts.Labels)),
		Values:     make(map[string]float64, len(opts.Numeric)),
		Provenance: domain.Provenance{Kind: domain.ProvenanceObserved},
	}
	for _, col := range opts.Key {
		out.Labels[col] = row.Attr(col)
	}
	for _, col := range opts.Labels {
		if row.Has(col) {
			out.Labels[col] = row.Attr(col)
		}
	}
	for _, col := range opts.Numeric {
		out.Values[col] = 0
	}
	return out
}

func addValues(dst *domain.ConsolidatedRow, row domain.Row, numeric []string) {
	for _, col := range numeric {
		dst.Values[col] += normalize.MustAmount(row[col])
	}
	dst.Contributors++
}

func groupKey(row domain.Row, cols []string) string {
	if len(cols) == 1 {
		return row.Attr(cols[0])
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = row.Attr(c)
	}
	return domain.JoinKey(parts...)
}

// resolveRename follows a mapping to its fixed point so that renaming an
// already renamed label is a no-op. Cycles stop at the first repeat.
func resolveRename(rename map[string]string, label string) string {
	if len(rename) == 0 {
		return label
	}
	visited := map[string]bool{label: true}
	for {
		next, ok := rename[label]
		if !ok {
			next, ok = rename[strings.TrimSpace(label)]
		}
		if !ok || visited[next] {
			return label
		}
		visited[next] = true
		label = next
	}
}

// ToTable turns consolidated rows back into a table so they can be fed to
// another Merge or to an exporter.
func ToTable(source domain.SourceID, rows []domain.ConsolidatedRow, labels, numeric []string) *domain.Table {
	cols := append(append([]string(nil), labels...), numeric...)
	t := domain.NewTable(source, cols...)
	for _, r := range rows {
		row := make(domain.Row, len(cols))
		for _, l := range labels {
			row[l] = r.Labels[l]
		}
		for _, n := range numeric {
			row[n] = r.Values[n]
		}
		t.Append(row)
	}
	return t
}
