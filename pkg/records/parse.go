package records

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/sheetsync/pkg/errors"
)

// NormalizeHeader lower-cases and trims a column name and collapses runs of
// spaces, hyphens and underscores into a single underscore.
//
//	"Part No" -> "part_no"
//	" Part - No " -> "part_no"
func NormalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(norm.NFKC.String(header)))

	var b strings.Builder
	b.Grow(len(h))
	pending := false
	for _, r := range h {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeValue trims surrounding whitespace. Empty stays empty.
func NormalizeValue(value string) string {
	return strings.TrimSpace(value)
}

// ParsePrice parses a user-formatted price such as "$1,234.50".
// Thousands separators, whitespace and currency symbols (ASCII and
// non-ASCII, including full-width forms) are stripped. Empty or
// unparsable input yields zero with ok=false; it never fails hard.
func ParsePrice(raw string) (price decimal.Decimal, ok bool) {
	s := norm.NFKC.String(raw)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ',', unicode.IsSpace(r), unicode.Is(unicode.Sc, r):
			continue
		}
		b.WriteRune(r)
	}

	clean := b.String()
	if clean == "" {
		return decimal.Zero, false
	}

	val, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	if val.IsNegative() {
		return decimal.Zero, false
	}
	return val, true
}

// ParseWeight coerces a weight through floating point and truncates it to
// whole grams. Empty input is zero.
func ParseWeight(raw string) (int, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.NewValidationError(FieldWeight, raw, "not a number")
	}
	if f < 0 {
		return 0, errors.NewValidationError(FieldWeight, raw, "must not be negative")
	}
	if f > math.MaxInt32 {
		return 0, errors.NewValidationError(FieldWeight, raw, "out of range")
	}
	return int(f), nil
}
