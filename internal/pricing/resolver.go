// Package pricing resolves tiered unit prices and order totals.
package pricing

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/gobady/internal/entity"
)

// Resolve returns the unit price of the first tier, scanning by ascending minimum
// quantity, whose range contains quantity. Tiers sharing a minimum keep their given
// order. The second result is false when no tier matches.
func Resolve(tiers []*entity.PriceTier, quantity int) (decimal.Decimal, bool) {
	ordered := make([]*entity.PriceTier, 0, len(tiers))
	for _, tier := range tiers {
		if tier != nil {
			ordered = append(ordered, tier)
		}
	}
	slices.SortStableFunc(ordered, func(a, b *entity.PriceTier) int {
		return a.MinQuantity - b.MinQuantity
	})

	for _, tier := range ordered {
		if tier.Contains(quantity) {
			return tier.UnitPrice, true
		}
	}
	return decimal.Zero, false
}

// Subtotal multiplies a unit price by quantity, rounded to cents.
func Subtotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// Total sums line subtotals and adds surcharge when it applies.
func Total(subtotals []decimal.Decimal, surcharge decimal.Decimal, applySurcharge bool) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subtotals {
		total = total.Add(s)
	}
	if applySurcharge {
		total = total.Add(surcharge)
	}
	return total.Round(2)
}
