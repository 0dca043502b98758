package identity

import (
	"unicode/utf8"

	"ebidash/internal/normalize"
	"ebidash/pkg/contracts/domain"
)

// Project ledger column names
const (
	ColumnPI           = "Principle Investigator"
	ColumnProject      = "Project Name"
	ColumnDeliverables = "Productivity and Deliverables"
)

// DedupPolicy selects which row survives when a project name repeats
type DedupPolicy int

const (
	// DedupFirst keeps the first row of each project
	DedupFirst DedupPolicy = iota
	// DedupLongestDeliverables keeps the row with the longest deliverables text
	DedupLongestDeliverables
	// DedupNone keeps every row
	DedupNone
)

// ProjectOptions configures ConsolidateProjects
type ProjectOptions struct {
	PIColumn           string
	ProjectColumn      string
	DeliverablesColumn string
	Dedup              DedupPolicy
	Resolver           []Option
}

func (o ProjectOptions) withDefaults() ProjectOptions {
	if o.PIColumn == "" {
		o.PIColumn = ColumnPI
	}
	if o.ProjectColumn == "" {
		o.ProjectColumn = ColumnProject
	}
	if o.DeliverablesColumn == "" {
		o.DeliverablesColumn = ColumnDeliverables
	}
	return o
}

// ProjectResult is a cleaned project ledger plus the PI entities found in it
type ProjectResult struct {
	Table    *domain.Table
	Entities []domain.Entity
	// Mapping is raw PI spelling -> canonical name
	Mapping map[string]string
	// Duplicates counts project rows removed by the dedup policy
	Duplicates int
	// Blank counts rows dropped for having no PI
	Blank int
}

// ConsolidateProjects cleans a project ledger: repeated projects are collapsed
// by the dedup policy, rows without a PI are dropped and every PI cell is
// rewritten to its canonical name.
func ConsolidateProjects(t *domain.Table, opts ProjectOptions) *ProjectResult {
	opts = opts.withDefaults()

	deduped := dedupProjects(t, opts)
	res := &ProjectResult{Duplicates: t.Len() - deduped.Len()}

	withPI := normalize.DropBlank(deduped, opts.PIColumn)
	res.Blank = deduped.Len() - withPI.Len()

	r := NewResolver(opts.Resolver...)
	res.Mapping = make(map[string]string)
	for _, row := range withPI.Rows {
		raw := row.Attr(opts.PIColumn)
		canon, ok := r.Resolve(raw)
		if !ok {
			continue
		}
		res.Mapping[raw] = canon
		row[opts.PIColumn] = canon
	}
	// rows whose PI had no usable key never got an identity
	res.Table = withPI.Filter(func(row domain.Row) bool {
		_, ok := r.Canonical(row.Attr(opts.PIColumn))
		return ok
	})
	res.Blank += withPI.Len() - res.Table.Len()
	res.Entities = r.Entities()
	return res
}

func dedupProjects(t *domain.Table, opts ProjectOptions) *domain.Table {
	if opts.Dedup == DedupNone || !t.HasColumn(opts.ProjectColumn) {
		return t.Clone()
	}

	keep := make(map[string]int)
	var order []string
	for i, row := range t.Rows {
		name := row.Attr(opts.ProjectColumn)
		prev, seen := keep[name]
		if !seen {
			keep[name] = i
			order = append(order, name)
			continue
		}
		if opts.Dedup == DedupLongestDeliverables &&
			deliverablesLen(row, opts) > deliverablesLen(t.Rows[prev], opts) {
			keep[name] = i
		}
	}

	out := domain.NewTable(t.Source, t.Columns...)
	for _, name := range order {
		out.Append(t.Rows[keep[name]].Clone())
	}
	return out
}

func deliverablesLen(row domain.Row, opts ProjectOptions) int {
	return utf8.RuneCountInString(row.String(opts.DeliverablesColumn))
}
