// Package pricing resolves the effective unit price for a (product, quantity,
// unit) combination from a set of overlapping discount tiers. There is exactly
// one implementation of this resolution; the cart view, nota creation and the
// discount schedule preview all go through it.
package pricing

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Quote is the outcome of a tier resolution. UnitPrice is kept unrounded;
// rounding happens at display time only, so subtotal math never compounds
// rounding error.
type Quote struct {
	UnitPrice        decimal.Decimal
	BasePrice        decimal.Decimal
	AppliedDiscounts []float64
	Tier             *domain.DiscountTier
}

// HasDiscount reports whether a tier was applied.
func (q Quote) HasDiscount() bool {
	return q.Tier != nil
}

// Resolve selects the winning discount tier and computes the effective unit
// price. An exact tier for the requested quantity takes absolute priority over
// any threshold tier. Among qualifying threshold tiers the one with the
// largest MinQuantity wins. When no tier applies the list price is returned
// unchanged. An empty unit matches tiers of every unit.
func Resolve(tiers []domain.DiscountTier, basePrice, listPrice decimal.Decimal, quantity int, unit string) Quote {
	base := basePrice
	if base.IsZero() {
		base = listPrice
	}

	if len(tiers) == 0 {
		return Quote{UnitPrice: listPrice, BasePrice: base}
	}

	for i := range tiers {
		tier := tiers[i]
		if tier.IsExact && tier.MinQuantity == quantity && (unit == "" || tier.Unit == unit) {
			return applyTier(tier, base)
		}
	}

	candidates := make([]domain.DiscountTier, 0, len(tiers))
	for _, tier := range tiers {
		if !tier.IsExact && (unit == "" || tier.Unit == unit) {
			candidates = append(candidates, tier)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].MinQuantity > candidates[j].MinQuantity
	})
	for i := range candidates {
		if quantity >= candidates[i].MinQuantity {
			return applyTier(candidates[i], base)
		}
	}

	return Quote{UnitPrice: listPrice, BasePrice: base}
}

// applyTier compounds the tier's percentage cuts sequentially: the second
// stage reduces the already-discounted price, not the base.
func applyTier(tier domain.DiscountTier, base decimal.Decimal) Quote {
	price := base
	discounts := make([]float64, 0, 2)

	price = price.Sub(price.Mul(decimal.NewFromFloat(tier.Discount)).Div(hundred))
	discounts = append(discounts, tier.Discount)

	if tier.Discount2 > 0 {
		price = price.Sub(price.Mul(decimal.NewFromFloat(tier.Discount2)).Div(hundred))
		discounts = append(discounts, tier.Discount2)
	}

	winner := tier
	return Quote{
		UnitPrice:        price,
		BasePrice:        base,
		AppliedDiscounts: discounts,
		Tier:             &winner,
	}
}

// Schedule expands every tier into a preview row showing the per-unit price at
// the tier's own quantity, the row total and the savings against the base
// price. Rows come back ordered by ascending MinQuantity.
func Schedule(tiers []domain.DiscountTier, basePrice, listPrice decimal.Decimal) []domain.ScheduleRow {
	base := basePrice
	if base.IsZero() {
		base = listPrice
	}
	if base.Sign() <= 0 {
		return nil
	}

	sorted := make([]domain.DiscountTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinQuantity < sorted[j].MinQuantity
	})

	rows := make([]domain.ScheduleRow, 0, len(sorted))
	for _, tier := range sorted {
		quote := applyTier(tier, base)
		qty := decimal.NewFromInt(int64(tier.MinQuantity))
		total := quote.UnitPrice.Mul(qty)
		rows = append(rows, domain.ScheduleRow{
			Quantity:     tier.MinQuantity,
			Unit:         tier.Unit,
			IsExact:      tier.IsExact,
			Discount:     tier.Discount,
			Discount2:    tier.Discount2,
			PricePerUnit: quote.UnitPrice,
			Total:        total,
			Savings:      base.Mul(qty).Sub(total),
		})
	}
	return rows
}

// RoundRupiah rounds a money amount to the nearest whole rupiah for display.
// Callers must keep the unrounded value for any further math.
func RoundRupiah(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}

// DiscountPercent computes the overall percentage cut between the base and
// effective unit price, rounded to two decimals.
func DiscountPercent(base, effective decimal.Decimal) float64 {
	if base.Sign() <= 0 {
		return 0
	}
	pct, _ := base.Sub(effective).Div(base).Mul(hundred).Float64()
	return math.Round(pct*100) / 100
}
