// Package money holds the fixed-scale decimal helpers used for every amount
// in the point of sale. Amounts carry two decimals and round half-up.
package money

import (
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimals kept for currency amounts.
const Scale int32 = 2

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Sentinel errors for operator input.
var (
	ErrNotANumber  = errors.New("not a valid amount")
	ErrNegative    = errors.New("amount must not be negative")
	ErrNotPositive = errors.New("amount must be greater than zero")
	ErrTooPrecise  = errors.New("amount must have at most two decimals")
)

// grouped matches an amount written with comma thousands separators.
var grouped = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// Round rounds d to Scale decimals. Ties round away from zero, which for the
// non-negative amounts handled here is round-half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// RoundTo rounds d to the given scale with the same tie rule as Round.
func RoundTo(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// Format renders d with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Parse reads an operator-entered amount. Surrounding spaces are ignored and
// commas are accepted only as thousands separators, so "149,99" is rejected
// rather than read as 14999. Amounts with more than two decimals are rejected
// instead of being rounded.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zero, ErrNotANumber
	}
	if strings.Contains(s, ",") {
		if !grouped.MatchString(s) {
			return zero, ErrNotANumber
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return zero, ErrNotANumber
	}
	if d.Exponent() < -Scale && !d.Equal(d.Round(Scale)) {
		return zero, ErrTooPrecise
	}
	return Round(d), nil
}

// ParseNonNegative is Parse followed by a >= 0 check.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return zero, err
	}
	if d.IsNegative() {
		return zero, ErrNegative
	}
	return d, nil
}

// ParsePositive is Parse followed by a > 0 check.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return zero, err
	}
	if !d.IsPositive() {
		return zero, ErrNotPositive
	}
	return d, nil
}

// Percent returns pct percent of base, rounded.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	return decimal.Min(a, b)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	return decimal.Max(a, b)
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Max(lo, decimal.Min(d, hi))
}

// FloorAtZero returns d, or zero when d is negative.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
