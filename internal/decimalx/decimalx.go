// Package decimalx centralizes the two fixed-point precision policies used
// throughout the pricing pipeline: Q7 for intermediate values and Q2 for
// customer-facing totals. All rounding is half-away-from-zero.
package decimalx

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Q7Scale is the number of fractional digits carried by every
	// intermediate monetary value.
	Q7Scale = 7
	// Q2Scale is the number of fractional digits carried by every
	// customer-facing monetary value.
	Q2Scale = 2
)

func init() {
	decimal.DivisionPrecision = Q7Scale + 4
}

// RoundQ7 rounds d to seven fractional digits, half-away-from-zero.
func RoundQ7(d decimal.Decimal) decimal.Decimal {
	return roundHalfAwayFromZero(d, Q7Scale)
}

// RoundQ2 rounds d to two fractional digits, half-away-from-zero.
func RoundQ2(d decimal.Decimal) decimal.Decimal {
	return roundHalfAwayFromZero(d, Q2Scale)
}

// roundHalfAwayFromZero rounds d to the given number of fractional digits
// using the half-away-from-zero rule. decimal.Decimal's own Round uses
// half-even banker's rounding, which the pricing pipeline must not use, so
// the rounding is implemented directly against the unscaled coefficient.
func roundHalfAwayFromZero(d decimal.Decimal, places int32) decimal.Decimal {
	if d.Exponent() >= -places {
		return d
	}
	neg := d.Sign() < 0
	abs := d.Abs()

	shift := decimal.New(1, places)
	shifted := abs.Mul(shift)
	floor := shifted.Truncate(0)
	frac := shifted.Sub(floor)

	half := decimal.NewFromInt(1).Div(decimal.NewFromInt(2))
	if frac.GreaterThanOrEqual(half) {
		floor = floor.Add(decimal.NewFromInt(1))
	}
	result := floor.Div(shift).Truncate(places)
	if neg && !result.IsZero() {
		result = result.Neg()
	}
	return result
}

// ParseDecimalString parses a decimal string, rejecting empty or malformed
// input. Exponential notation is accepted, since upstream systems may still
// send it, and negative zero is returned as zero.
func ParseDecimalString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty decimal string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	return d, nil
}

// CanonicalString renders d the way the canonicaliser expects: a plain
// decimal string, never exponential, with negative zero collapsed to "0".
func CanonicalString(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	return d.String()
}

// SumQ7 adds a set of already-Q7 decimals, returning a Q7 result.
func SumQ7(ds ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range ds {
		sum = sum.Add(d)
	}
	return RoundQ7(sum)
}
