package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Key reduces a label to its matching form: accents stripped, case folded,
// punctuation removed and whitespace runs collapsed to one space.
// "  José  O'Brien " and "jose obrien" share the key "jose obrien".
func Key(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Label trims surrounding whitespace and keeps internal runs untouched
func Label(s string) string {
	return strings.TrimSpace(s)
}

// Collapse trims s and joins its whitespace-separated fields with sep.
// Collapse("Year  Founded", "_") == "Year_Founded".
func Collapse(s, sep string) string {
	return strings.Join(strings.Fields(s), sep)
}

// LastToken returns the last whitespace-delimited segment of a full name
func LastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
