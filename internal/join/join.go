// Package join attaches productivity-ledger attributes to funding rows.
//
// Funding rows name their PI by surname only; the productivity ledger holds
// full names. Each productivity name is reduced to its last whitespace token
// and the two sides are inner-joined on that token. Rows without a partner on
// either side are excluded and counted in domain.JoinStats.
package join

import (
	"context"
	"log/slog"

	apperrors "ebidash/internal/errors"
	"ebidash/internal/normalize"
	"ebidash/pkg/contracts/domain"
)

// Default column names
const (
	DefaultFundingKey = "PI"
	DefaultNameColumn = "Principle Investigator"
)

// DefaultAttributes are copied from the productivity ledger onto each match
var DefaultAttributes = []string{"Program", "Discipline", "Institution", "Sponsor"}

// Options configures Join
type Options struct {
	// FundingKey is the funding column holding the surname token
	FundingKey string
	// NameColumn is the productivity column holding the full name
	NameColumn string
	// Attributes are copied from the chosen productivity row
	Attributes []string
	Policy     Policy
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FundingKey == "" {
		o.FundingKey = DefaultFundingKey
	}
	if o.NameColumn == "" {
		o.NameColumn = DefaultNameColumn
	}
	if o.Attributes == nil {
		o.Attributes = DefaultAttributes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result holds the enriched records and what the join left behind
type Result struct {
	Records []domain.EnrichedRecord
	Stats   domain.JoinStats
	Notices []domain.JoinAmbiguityNotice
}

type surnameGroup struct {
	token   string
	rows    []domain.Row
	matched bool
}

// Join inner-joins consolidated funding rows to the productivity ledger
func Join(ctx context.Context, funding []domain.ConsolidatedRow, productivity *domain.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if productivity == nil {
		return nil, apperrors.NewAppValidationError("join: nil productivity table")
	}
	if !productivity.HasColumn(opts.NameColumn) {
		return nil, apperrors.MissingColumnError(productivity.Source.String(), opts.NameColumn)
	}
	if err := opts.Policy.validate(productivity); err != nil {
		return nil, err
	}

	groups, order := groupBySurname(productivity, opts.NameColumn)

	res := &Result{}
	res.Stats.FundingRows = len(funding)
	res.Stats.ProductivityRows = productivity.Len()
	res.Stats.ProductivityGroups = len(order)

	noticed := make(map[string]bool)
	for _, f := range funding {
		token := f.Attr(opts.FundingKey)
		g, ok := groups[normalize.Key(token)]
		if !ok || token == "" {
			continue
		}

		chosen, notice := opts.Policy.choose(g, opts)
		if notice != nil && !noticed[g.token] {
			noticed[g.token] = true
			res.Notices = append(res.Notices, *notice)
		}
		if chosen == nil {
			continue
		}

		g.matched = true
		res.Records = append(res.Records, enrich(f, token, chosen, opts))
	}

	res.Stats.Matched = len(res.Records)
	for _, key := range order {
		if groups[key].matched {
			res.Stats.MatchedGroups++
		}
	}
	res.Stats.UnmatchedFunding = res.Stats.FundingRows - res.Stats.Matched
	res.Stats.UnmatchedProductivity = res.Stats.ProductivityGroups - res.Stats.MatchedGroups
	res.Stats.Ambiguous = len(res.Notices)

	if res.Stats.UnmatchedFunding > 0 {
		opts.Logger.DebugContext(ctx, "funding rows without productivity match",
			slog.Int("unmatched", res.Stats.UnmatchedFunding),
			slog.Int("funding_rows", res.Stats.FundingRows),
		)
	}
	return res, nil
}

// Surname returns the join token of a full name
func Surname(fullName string) string {
	return normalize.LastToken(fullName)
}

func groupBySurname(t *domain.Table, nameColumn string) (map[string]*surnameGroup, []string) {
	groups := make(map[string]*surnameGroup)
	var order []string
	for _, row := range t.Rows {
		surname := Surname(row.Attr(nameColumn))
		key := normalize.Key(surname)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &surnameGroup{token: surname}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}
	return groups, order
}

func enrich(f domain.ConsolidatedRow, token string, chosen domain.Row, opts Options) domain.EnrichedRecord {
	rec := domain.EnrichedRecord{
		ConsolidatedRow: domain.ConsolidatedRow{
			Key:          f.Key,
			Labels:       make(map[string]string, len(f.Labels)),
			Values:       make(map[string]float64, len(f.Values)),
			Contributors: f.Contributors,
			Provenance:   f.Provenance,
		},
		Entity:     token,
		Attributes: make(map[string]string, len(opts.Attributes)+1),
	}
	for k, v := range f.Labels {
		rec.Labels[k] = v
	}
	for k, v := range f.Values {
		rec.Values[k] = v
	}
	for _, attr := range opts.Attributes {
		if chosen.Has(attr) {
			rec.Attributes[attr] = chosen.Attr(attr)
		}
	}
	rec.Attributes[opts.NameColumn] = chosen.Attr(opts.NameColumn)
	return rec
}
