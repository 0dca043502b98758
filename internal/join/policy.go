package join

import (
	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// Policy names
const (
	PolicyFirstMatch       = "first-match"
	PolicyRequireAttribute = "require-attribute"
)

// Policy decides which productivity row a funding row joins when several
// rows share its surname. The zero value is first-match.
type Policy struct {
	// Attribute, when set, must hold the same value on every candidate
	Attribute string
}

// FirstMatch picks the first productivity row in ledger order
func FirstMatch() Policy {
	return Policy{}
}

// RequireAttribute keeps a match only when all candidates agree on attr
func RequireAttribute(attr string) Policy {
	return Policy{Attribute: attr}
}

// String returns the policy name
func (p Policy) String() string {
	if p.Attribute != "" {
		return PolicyRequireAttribute
	}
	return PolicyFirstMatch
}

func (p Policy) validate(t *domain.Table) error {
	if p.Attribute != "" && !t.HasColumn(p.Attribute) {
		return apperrors.MissingColumnError(t.Source.String(), p.Attribute)
	}
	return nil
}

// choose returns the chosen row (nil when the policy drops the match) and a
// notice when the surname had more than one candidate.
func (p Policy) choose(g *surnameGroup, opts Options) (domain.Row, *domain.JoinAmbiguityNotice) {
	first := g.rows[0]
	if len(g.rows) == 1 {
		return first, nil
	}

	notice := &domain.JoinAmbiguityNotice{
		Token:      g.token,
		Candidates: candidateNames(g.rows, opts.NameColumn),
		Policy:     p.String(),
	}

	if p.Attribute != "" {
		want := first.Attr(p.Attribute)
		for _, r := range g.rows[1:] {
			if r.Attr(p.Attribute) != want {
				notice.Dropped = true
				return nil, notice
			}
		}
	}
	notice.Chosen = first.Attr(opts.NameColumn)
	return first, notice
}

func candidateNames(rows []domain.Row, nameColumn string) []string {
	seen := make(map[string]bool, len(rows))
	var names []string
	for _, r := range rows {
		n := r.Attr(nameColumn)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
