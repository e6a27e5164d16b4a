// Package validation checks and normalizes values extracted from sources
package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var (
	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
	nonLetters          = regexp.MustCompile(`[^A-Z]+`)
	leadingInteger      = regexp.MustCompile(`^\s*(\d+)`)
)

// Normalizer rewrites a raw extracted value before validation
type Normalizer func(string) string

// TrimSpace removes surrounding whitespace
func TrimSpace(s string) string {
	return strings.TrimSpace(s)
}

// CommaDecimal turns a comma decimal separator into a dot
func CommaDecimal(s string) string {
	return strings.ReplaceAll(s, ",", ".")
}

// StripNonLetters keeps only upper-case ASCII letters
func StripNonLetters(s string) string {
	return nonLetters.ReplaceAllString(s, "")
}

// Upper upper-cases the value
func Upper(s string) string {
	return strings.ToUpper(s)
}

// LeadingInteger keeps the leading run of digits, e.g. "100 USD" -> "100"
func LeadingInteger(s string) string {
	m := leadingInteger.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1]
}

// ClassToken returns a normalizer that picks the suffix of the first
// whitespace-separated token starting with prefix, e.g. ClassToken("icon-")
// maps "icon icon-usd" to "usd". Values without such a token are returned as is.
func ClassToken(prefix string) Normalizer {
	return func(s string) string {
		for _, token := range strings.Fields(s) {
			if strings.HasPrefix(token, prefix) && len(token) > len(prefix) {
				return strings.TrimPrefix(token, prefix)
			}
		}
		return s
	}
}

// Apply runs the normalizers in order
func Apply(value string, normalizers ...Normalizer) string {
	for _, n := range normalizers {
		value = n(value)
	}
	return value
}

// CurrencyCode validates a three-letter upper-case ISO 4217 style code.
// Surrounding whitespace is ignored.
func CurrencyCode(field, value string) (string, error) {
	code := strings.TrimSpace(value)
	if !currencyCodePattern.MatchString(code) {
		return "", &entity.FieldError{Field: field, Value: value, Reason: "not a three-letter currency code"}
	}
	return code, nil
}

// Rate parses a non-negative decimal rate
func Rate(field, value string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, value)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, &entity.FieldError{Field: field, Value: value, Reason: "rate must not be negative"}
	}
	return d, nil
}

// Unit parses a positive decimal unit divisor
func Unit(field, value string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, value)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, &entity.FieldError{Field: field, Value: value, Reason: "unit must be greater than zero"}
	}
	return d, nil
}

// PerUnit divides a rate by its unit and converts the result to float64
func PerUnit(rate, unit decimal.Decimal) float64 {
	if unit.IsZero() {
		unit = decimal.NewFromInt(1)
	}
	f, _ := rate.Div(unit).Float64()
	return f
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, &entity.FieldError{Field: field, Value: value, Reason: "empty value"}
	}
	// NaN, Inf and out-of-range values
	if f, err := strconv.ParseFloat(s, 64); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, &entity.FieldError{Field: field, Value: value, Reason: "not a decimal number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &entity.FieldError{Field: field, Value: value, Reason: "not a decimal number"}
	}
	return d, nil
}
