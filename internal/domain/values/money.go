package values

import (
	"github.com/shopspring/decimal"
)

// Currency amounts move through the pipeline as decimal.Decimal in major units
// (dollars). The provider reports minor units (cents).

var (
	hundred = decimal.NewFromInt(100)

	// Zero is a convenience zero amount.
	Zero = decimal.Zero
)

// FromMinorUnits converts an integer minor-unit amount to major units.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// ToMinorUnits converts a major-unit amount to integer cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return RoundCents(amount).Mul(hundred).IntPart()
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Percent turns a whole-number percentage (e.g. 70) into a rate (0.70).
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(hundred)
}
