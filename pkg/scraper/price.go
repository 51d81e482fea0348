package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var priceJunkRegex = regexp.MustCompile(`[$\s]`)

// NormalizePrice parses a locale-formatted ARS price string ("$1.234,56")
// into a number. When both separators appear, "." is the thousands
// separator and "," the decimal one; a lone "," is decimal. Returns nil
// for empty or unparseable input.
func NormalizePrice(raw string) *float64 {
	if raw == "" {
		return nil
	}
	cleaned := priceJunkRegex.ReplaceAllString(raw, "")
	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case strings.Contains(cleaned, ","):
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// FormatPrice renders integer-valued prices without a decimal part, the
// way they were observed ("100" rather than "100.00").
func FormatPrice(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
