package extract

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale words found next to German financial figures. Everything is folded
// into whole EUR so timeline comparisons across reports stay valid.
var scaleSuffixes = []struct {
	word   string
	factor int64
}{
	{"teur", 1000},
	{"keur", 1000},
	{"tsd", 1000},
	{"mio", 1000000},
	{"mrd", 1000000000},
}

// normalizeAmount coerces one schema field value into whole EUR. Accepts
// JSON numbers and German-formatted strings ("1.234.567,89", "1.200 TEUR").
// A value that cannot be coerced yields nil: the field is dropped, never the
// whole record.
func normalizeAmount(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		v := decimal.NewFromFloat(num).Round(2).InexactFloat64()
		return &v
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return parseGermanAmount(str)
	}

	return nil
}

// parseGermanAmount parses a localized amount string into whole EUR.
func parseGermanAmount(s string) *float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "null" || s == "n/a" || s == "-" {
		return nil
	}

	factor := int64(1)
	for _, suffix := range scaleSuffixes {
		if strings.Contains(s, suffix.word) {
			factor = suffix.factor
			s = strings.ReplaceAll(s, suffix.word, "")
			break
		}
	}
	s = strings.NewReplacer("eur", "", "€", "", " ", "").Replace(s)
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// German format: "." groups thousands, "," is the decimal separator.
	// A string with a comma is unambiguous; one with only dots is treated
	// as grouped when the dots sit on thousand boundaries.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if looksGrouped(s) {
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	v := d.Mul(decimal.NewFromInt(factor)).Round(2).InexactFloat64()
	return &v
}

// looksGrouped reports whether every dot-separated group after the first has
// exactly three digits, i.e. the dots are thousands separators.
func looksGrouped(s string) bool {
	parts := strings.Split(strings.TrimLeft(s, "-"), ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}
