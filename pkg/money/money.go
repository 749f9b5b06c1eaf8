// Package money handles the exchange's integer-cent price domain and the
// conversions to display dollars. Contract prices live in [1, 99] cents;
// dollars only ever appear at display and persistence boundaries.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an integer amount of US cents.
type Cents int64

// MinPrice and MaxPrice bound every valid contract price on the wire.
const (
	MinPrice Cents = 1
	MaxPrice Cents = 99
)

// ValidPrice reports whether p is a legal contract price.
func ValidPrice(p Cents) bool {
	return p >= MinPrice && p <= MaxPrice
}

// CheckPrice returns an error when p is outside [1, 99].
func CheckPrice(p Cents) error {
	if !ValidPrice(p) {
		return fmt.Errorf("price %d outside valid range [%d, %d]", p, MinPrice, MaxPrice)
	}
	return nil
}

// Dollars converts cents to a decimal dollar amount. The division is exact.
func (c Cents) Dollars() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100))
}

// String renders the amount as a dollar string, e.g. "$1.25" or "-$0.78".
func (c Cents) String() string {
	if c < 0 {
		return "-$" + (-c).Dollars().StringFixed(2)
	}
	return "$" + c.Dollars().StringFixed(2)
}

// Probability converts a contract price to its implied probability.
func (c Cents) Probability() float64 {
	return float64(c) / 100.0
}

// FromDollars converts a decimal dollar amount to whole cents, truncating
// any sub-cent remainder.
func FromDollars(d decimal.Decimal) Cents {
	return Cents(d.Mul(decimal.NewFromInt(100)).IntPart())
}
