package identity

import (
	"github.com/pmezard/go-difflib/difflib"

	"ebidash/internal/normalize"
)

// Similarity scores candidate against name in [0, 1] on their normalized keys
// with the Ratcliff/Obershelp ratio 2*M/(len(a)+len(b)), where M counts the
// runes in matching blocks. "j smith" and "john smith" score 14/17.
func Similarity(candidate, name string) float64 {
	return newScorer(symbols(normalize.Key(name))).score(symbols(normalize.Key(candidate)))
}

// scorer rates many candidates against one name; the name is indexed once.
type scorer struct {
	m *difflib.SequenceMatcher
}

func newScorer(name []string) *scorer {
	m := difflib.NewMatcher(nil, nil)
	m.SetSeq2(name)
	return &scorer{m: m}
}

func (s *scorer) score(candidate []string) float64 {
	s.m.SetSeq1(candidate)
	return s.m.Ratio()
}

// symbols splits a key into one element per rune
func symbols(key string) []string {
	out := make([]string, 0, len(key))
	for _, r := range key {
		out = append(out, string(r))
	}
	return out
}
