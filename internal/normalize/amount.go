package normalize

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrBlankCell marks an empty, nil or NaN cell
	ErrBlankCell = errors.New("blank cell")
	// ErrUnparseable marks a cell that is not a number after cleanup
	ErrUnparseable = errors.New("unparseable number")
)

var amountReplacer = strings.NewReplacer(",", "", "$", "", " ", "", "\u00a0", "")

// ParseAmount coerces a raw cell into a float64.
// Thousands separators, currency signs and accounting parentheses are accepted:
// "1,000" -> 1000, "$2,500.50" -> 2500.5, "(300)" -> -300.
// Blank and unparseable cells return 0 with ErrBlankCell or ErrUnparseable.
func ParseAmount(cell any) (float64, error) {
	switch v := cell.(type) {
	case nil:
		return 0, ErrBlankCell
	case float64:
		if math.IsNaN(v) {
			return 0, ErrBlankCell
		}
		if math.IsInf(v, 0) {
			return 0, ErrUnparseable
		}
		return v, nil
	case float32:
		return ParseAmount(float64(v))
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return parseAmountText(v)
	default:
		return 0, ErrUnparseable
	}
}

func parseAmountText(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, ErrBlankCell
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountReplacer.Replace(s)
	if s == "" || s == "-" {
		return 0, ErrUnparseable
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrUnparseable
	}
	if negative {
		f = -f
	}
	return f, nil
}

// MustAmount parses a cell and drops the error, for callers that already
// collected warnings upstream.
func MustAmount(cell any) float64 {
	f, _ := ParseAmount(cell)
	return f
}
