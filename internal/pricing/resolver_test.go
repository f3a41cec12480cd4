package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/gobady/internal/entity"
)

func intPtr(v int) *int { return &v }

func tier(minQty int, maxQty *int, price string) *entity.PriceTier {
	return &entity.PriceTier{MinQuantity: minQty, MaxQuantity: maxQty, UnitPrice: decimal.RequireFromString(price)}
}

func TestResolve(t *testing.T) {
	widget := []*entity.PriceTier{
		tier(10, nil, "8.00"),
		tier(1, intPtr(9), "10.00"),
	}

	tests := []struct {
		name     string
		tiers    []*entity.PriceTier
		quantity int
		want     string
		found    bool
	}{
		{name: "lower bound of first tier", tiers: widget, quantity: 1, want: "10.00", found: true},
		{name: "upper bound is inclusive", tiers: widget, quantity: 9, want: "10.00", found: true},
		{name: "open ended tier", tiers: widget, quantity: 10, want: "8.00", found: true},
		{name: "far into open tier", tiers: widget, quantity: 10000, want: "8.00", found: true},
		{name: "below lowest minimum", tiers: []*entity.PriceTier{tier(5, intPtr(10), "3.00")}, quantity: 2, found: false},
		{name: "gap between tiers", tiers: []*entity.PriceTier{tier(1, intPtr(4), "3.00"), tier(10, nil, "2.00")}, quantity: 6, found: false},
		{name: "no tiers", tiers: nil, quantity: 1, found: false},
		{name: "nil entries are skipped", tiers: []*entity.PriceTier{nil, tier(1, nil, "1.50")}, quantity: 3, want: "1.50", found: true},
		{
			name:     "overlap picks first in ascending order not cheapest",
			tiers:    []*entity.PriceTier{tier(5, nil, "1.00"), tier(1, intPtr(20), "9.00")},
			quantity: 7,
			want:     "9.00",
			found:    true,
		},
		{
			name:     "equal minimums keep given order",
			tiers:    []*entity.PriceTier{tier(1, intPtr(10), "4.00"), tier(1, nil, "2.00")},
			quantity: 3,
			want:     "4.00",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.tiers, tt.quantity)
			require.Equal(t, tt.found, ok)
			if tt.found {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			} else {
				assert.True(t, got.IsZero())
			}
		})
	}
}

func TestResolveDoesNotReorderInput(t *testing.T) {
	tiers := []*entity.PriceTier{tier(10, nil, "8.00"), tier(1, intPtr(9), "10.00")}

	first, _ := Resolve(tiers, 4)
	second, _ := Resolve(tiers, 4)

	assert.True(t, first.Equal(second))
	assert.Equal(t, 10, tiers[0].MinQuantity)
}

func TestTotal(t *testing.T) {
	surcharge := decimal.NewFromInt(8)
	subtotals := []decimal.Decimal{Subtotal(decimal.RequireFromString("8.00"), 10)}

	assert.Equal(t, "80.00", Total(subtotals, surcharge, false).StringFixed(2))
	assert.Equal(t, "88.00", Total(subtotals, surcharge, true).StringFixed(2))
	assert.Equal(t, "8.00", Total(nil, surcharge, true).StringFixed(2))
}

func TestSubtotalRoundsToCents(t *testing.T) {
	got := Subtotal(decimal.RequireFromString("0.333"), 3)
	assert.Equal(t, "1.00", got.StringFixed(2))
}
