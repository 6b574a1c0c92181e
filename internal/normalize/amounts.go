package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`\d[\d.,]*`)

// Amount extracts the first number from free text such as "1.250.000 TL" or
// "120 m²". Dots are read as thousands separators and a comma as the decimal
// mark, unless the dot is clearly a decimal point ("85.5"). It reports false
// when no positive number is present.
func Amount(text string) (float64, bool) {
	raw := numberPattern.FindString(strings.TrimSpace(text))
	raw = strings.TrimRight(raw, ".,")
	if raw == "" {
		return 0, false
	}

	switch {
	case strings.Contains(raw, ","):
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
		raw = strings.ReplaceAll(raw, ",", "")
	case strings.Count(raw, ".") == 1 && !thousandsGrouped(raw):
		// single decimal point
	default:
		raw = strings.ReplaceAll(raw, ".", "")
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// thousandsGrouped reports whether every group after the first dot has
// exactly three digits
func thousandsGrouped(raw string) bool {
	groups := strings.Split(raw, ".")
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}
