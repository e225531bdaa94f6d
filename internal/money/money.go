// Package money models payment amounts as integer counts of base units. One
// display unit is one million base units; amounts never pass the API boundary
// as floating point. Split operations are exact: shares always sum back to
// the input total, with rounding remainders assigned to the creator.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BaseUnitsPerDisplay is the number of base units in one display unit.
const BaseUnitsPerDisplay = 1_000_000

// Amount is an integer count of base units.
type Amount int64

func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsPositive() bool { return a > 0 }

// Display renders the amount in display units ("1.5" for 1_500_000).
func (a Amount) Display() string {
	return decimal.New(int64(a), 0).
		Div(decimal.New(BaseUnitsPerDisplay, 0)).
		String()
}

// StandardSplit is the two-way division of a payment.
type StandardSplit struct {
	Creator  Amount
	Platform Amount
}

// ReferralSplit is the three-way division of a referred payment.
type ReferralSplit struct {
	Creator  Amount
	Platform Amount
	Referrer Amount
}

// SplitStandard divides total into a 10% platform share and the creator
// remainder. floor-then-subtract: the shares always sum exactly to total and
// the creator absorbs any rounding remainder. Panics on negative input; a
// negative total is a programmer error, not a recoverable condition.
func SplitStandard(total Amount) StandardSplit {
	mustNonNegative(total)
	platform := total / 10
	return StandardSplit{
		Creator:  total - platform,
		Platform: platform,
	}
}

// SplitReferral divides total into 5% platform, 5% referrer and the creator
// remainder, with the same tie-break rule as SplitStandard.
func SplitReferral(total Amount) ReferralSplit {
	mustNonNegative(total)
	platform := total / 20
	referrer := total / 20
	return ReferralSplit{
		Creator:  total - platform - referrer,
		Platform: platform,
		Referrer: referrer,
	}
}

// ToBaseUnits converts a display-unit string to base units, rounding
// half-away-from-zero. The rounding mode must match what paying clients use
// to build their transfers, or verifier comparisons drift by one base unit.
func ToBaseUnits(display string) (Amount, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", display, err)
	}
	units := d.Mul(decimal.New(BaseUnitsPerDisplay, 0)).Round(0)
	if !units.IsInteger() || !units.BigInt().IsInt64() {
		return 0, fmt.Errorf("money: %q out of range", display)
	}
	return Amount(units.IntPart()), nil
}

// FromBaseUnits converts base units to a display-unit string.
func FromBaseUnits(a Amount) string { return a.Display() }

func mustNonNegative(a Amount) {
	if a < 0 {
		panic(fmt.Sprintf("money: negative amount %d", a))
	}
}
