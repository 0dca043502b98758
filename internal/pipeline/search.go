package pipeline

import (
	"strings"

	"ebidash/internal/normalize"
	"ebidash/pkg/contracts/domain"
)

// SearchColumns are the project fields the search report looks in
var SearchColumns = []string{
	ColumnInvestigator,
	ColumnInstitution,
	ColumnProgram,
	ColumnDiscipline,
	ColumnProject,
	ColumnPersonnel,
	ColumnDeliverables,
	ColumnSponsor,
}

// Search returns the rows where any of columns contains query, compared in
// key form so case, accents and punctuation are ignored. A blank query
// matches every row.
func Search(t *domain.Table, query string, columns ...string) *domain.Table {
	if t == nil {
		return nil
	}
	q := normalize.Key(query)
	if q == "" {
		return t.Clone()
	}
	return t.Filter(func(row domain.Row) bool {
		for _, c := range columns {
			if strings.Contains(normalize.Key(row.String(c)), q) {
				return true
			}
		}
		return false
	})
}
