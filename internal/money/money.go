// Package money converts between decimal amounts as typed by operators and
// the integer minor units (cents) stored by the ledger.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tillbook/internal/ledgererr"
)

// Places is the number of decimal places in the ledger currency.
const Places = 2

// MaxCents bounds a single amount so sums over an entry or an account stay
// exact in int64 and in SQLite's INTEGER arithmetic.
const MaxCents int64 = 1 << 53

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxCents)
)

// Parse converts "12.50" to 1250. Amounts with more than two decimal places
// are rejected rather than rounded.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ledgererr.ErrInvalidAmount.With("%q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal amount to minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ledgererr.ErrInvalidAmount.With("%s has more than %d decimal places", d, Places)
	}
	if cents.Abs().GreaterThan(maxCents) {
		return 0, ledgererr.ErrInvalidAmount.With("%s is out of range", d)
	}
	return cents.IntPart(), nil
}

// Add returns a+b, or false if the sum overflows int64.
func Add(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// ToDecimal converts minor units to a decimal amount.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// Format renders minor units with exactly two decimal places: 1250 -> "12.50".
func Format(cents int64) string {
	return ToDecimal(cents).StringFixed(Places)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) int64 {
	v, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("money.MustParse(%q): %v", s, err))
	}
	return v
}
