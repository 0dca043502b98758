// Package identity unifies near-duplicate person names into canonical entities.
//
// Resolution is a greedy single pass over names in first-seen order. Each name
// is scored against every canonical name created so far; the best score at or
// above the threshold joins that canonical, anything else founds a new one.
// The same names in a different order can cluster differently. That order
// dependence is kept as is because historical reports were produced with it.
package identity

import (
	"strings"

	"ebidash/internal/normalize"
	"ebidash/pkg/contracts/domain"
)

// DefaultThreshold is the minimum similarity for a name to join a canonical
const DefaultThreshold = 0.8

// TieBreak pins which canonical wins when several share the best score
type TieBreak int

const (
	// TieBreakFirstSeen picks the canonical created earliest
	TieBreakFirstSeen TieBreak = iota
	// TieBreakLexical picks the lexically greatest canonical name
	TieBreakLexical
)

// String returns the config spelling of the tie-break
func (t TieBreak) String() string {
	if t == TieBreakLexical {
		return "lexical"
	}
	return "first-seen"
}

// ParseTieBreak maps a config value onto a TieBreak. Unknown values return false.
func ParseTieBreak(s string) (TieBreak, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first-seen", "first_seen", "first":
		return TieBreakFirstSeen, true
	case "lexical", "lex":
		return TieBreakLexical, true
	}
	return TieBreakFirstSeen, false
}

// Option configures a Resolver
type Option func(*Resolver)

// WithThreshold overrides DefaultThreshold
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.threshold = threshold
	}
}

// WithTieBreak sets the tie-break policy
func WithTieBreak(tb TieBreak) Option {
	return func(r *Resolver) {
		r.tieBreak = tb
	}
}

type canonical struct {
	name    string
	key     []string
	aliases []string
}

// Resolver assigns raw names to canonical names. It is not safe for
// concurrent use; each pipeline run owns its own Resolver.
type Resolver struct {
	threshold float64
	tieBreak  TieBreak
	canon     []*canonical
	assigned  map[string]int
}

// NewResolver creates an empty resolver
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		threshold: DefaultThreshold,
		assigned:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured similarity threshold
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve maps one raw name to its canonical name. Blank names have no
// identity and return ("", false). A raw name already seen keeps its
// first assignment.
func (r *Resolver) Resolve(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	key := symbols(normalize.Key(name))
	if len(key) == 0 {
		return "", false
	}
	if idx, ok := r.assigned[name]; ok {
		return r.canon[idx].name, true
	}

	sc := newScorer(key)
	best, bestScore := -1, -1.0
	for i, c := range r.canon {
		score := sc.score(c.key)
		switch {
		case score > bestScore:
			best, bestScore = i, score
		case score == bestScore && r.tieBreak == TieBreakLexical && c.name > r.canon[best].name:
			best = i
		}
	}

	if best >= 0 && bestScore >= r.threshold {
		r.assign(name, best)
		return r.canon[best].name, true
	}

	r.canon = append(r.canon, &canonical{name: name, key: key})
	r.assign(name, len(r.canon)-1)
	return name, true
}

func (r *Resolver) assign(name string, idx int) {
	r.assigned[name] = idx
	r.canon[idx].aliases = append(r.canon[idx].aliases, name)
}

// ResolveAll resolves names in order and returns raw -> canonical.
// Blank names are left out of the mapping.
func (r *Resolver) ResolveAll(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		if c, ok := r.Resolve(n); ok {
			out[strings.TrimSpace(n)] = c
		}
	}
	return out
}

// Canonical looks up a name without creating an entity
func (r *Resolver) Canonical(raw string) (string, bool) {
	idx, ok := r.assigned[strings.TrimSpace(raw)]
	if !ok {
		return "", false
	}
	return r.canon[idx].name, true
}

// Entities returns canonical entities in creation order
func (r *Resolver) Entities() []domain.Entity {
	out := make([]domain.Entity, len(r.canon))
	for i, c := range r.canon {
		out[i] = domain.Entity{
			Canonical: c.name,
			Aliases:   append([]string(nil), c.aliases...),
		}
	}
	return out
}

// Len returns the number of canonical entities
func (r *Resolver) Len() int {
	return len(r.canon)
}

// Resolve runs a fresh resolver over names
func Resolve(names []string, opts ...Option) (map[string]string, []domain.Entity) {
	r := NewResolver(opts...)
	mapping := r.ResolveAll(names)
	return mapping, r.Entities()
}
