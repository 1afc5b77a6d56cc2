package pricing

import (
	"github.com/shopspring/decimal"

	"listino/internal/core/apperror"
)

// RoundingStrategy normalizes a computed price to a clean denomination.
// The set is fixed so that preview and apply agree bit-for-bit; every
// consumer (bulk update, generation, duplication) goes through Apply.
//
//	none                unchanged
//	nearest_cent        half away from zero to 0.01
//	nearest_five_cents  to 0.05
//	nearest_ten_cents   to 0.10
//	nearest_fifty_cents to 0.50
//	nearest_unit        to 1.00
//	up_to_unit          ceiling to the next 1.00
//	down_to_unit        floor to 1.00
type RoundingStrategy string

const (
	RoundingNone      RoundingStrategy = "none"
	RoundNearestCent  RoundingStrategy = "nearest_cent"
	RoundNearestFive  RoundingStrategy = "nearest_five_cents"
	RoundNearestTen   RoundingStrategy = "nearest_ten_cents"
	RoundNearestFifty RoundingStrategy = "nearest_fifty_cents"
	RoundNearestUnit  RoundingStrategy = "nearest_unit"
	RoundUpToUnit     RoundingStrategy = "up_to_unit"
	RoundDownToUnit   RoundingStrategy = "down_to_unit"
)

var roundingSteps = map[RoundingStrategy]decimal.Decimal{
	RoundNearestCent:  decimal.New(1, -2),
	RoundNearestFive:  decimal.New(5, -2),
	RoundNearestTen:   decimal.New(1, -1),
	RoundNearestFifty: decimal.New(5, -1),
	RoundNearestUnit:  decimal.New(1, 0),
}

// Valid reports whether s is one of the enumerated strategies.
// The empty string is accepted as RoundingNone.
func (s RoundingStrategy) Valid() bool {
	switch s {
	case "", RoundingNone, RoundNearestCent, RoundNearestFive, RoundNearestTen,
		RoundNearestFifty, RoundNearestUnit, RoundUpToUnit, RoundDownToUnit:
		return true
	}
	return false
}

// Validate returns a field error for unknown strategies.
func (s RoundingStrategy) Validate() error {
	if !s.Valid() {
		return apperror.NewValidation("unknown rounding strategy").
			WithDetail("field", "roundingStrategy").
			WithDetail("value", string(s))
	}
	return nil
}

// Apply rounds price per the strategy. Unknown strategies pass through
// unchanged; callers validate up front.
func (s RoundingStrategy) Apply(price decimal.Decimal) decimal.Decimal {
	switch s {
	case "", RoundingNone:
		return price
	case RoundUpToUnit:
		return price.Ceil()
	case RoundDownToUnit:
		return price.Floor()
	default:
		step, ok := roundingSteps[s]
		if !ok {
			return price
		}
		// Half-away-from-zero on the step multiple: 21.989 at 0.10 -> 22.00.
		return price.Div(step).Round(0).Mul(step)
	}
}

// applyMarkup applies a percentage markup: price * (1 + pct/100).
func applyMarkup(price, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return price
	}
	hundred := decimal.NewFromInt(100)
	return price.Mul(hundred.Add(pct)).Div(hundred)
}

// applyDiscount applies a percentage discount: price * (1 - pct/100).
// Negative pct acts as a surcharge.
func applyDiscount(price, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return price
	}
	hundred := decimal.NewFromInt(100)
	return price.Mul(hundred.Sub(pct)).Div(hundred)
}
