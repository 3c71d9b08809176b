package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestResolveNoTiersReturnsListPrice(t *testing.T) {
	quote := Resolve(nil, d(10000), d(10000), 3, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(10000)) {
		t.Fatalf("expected list price 10000, got %s", quote.UnitPrice)
	}
	if quote.HasDiscount() {
		t.Fatalf("expected no tier applied")
	}
}

func TestResolveExactBeatsThreshold(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 5, Discount: 10, Unit: domain.UnitBuah},
		{MinQuantity: 5, Discount: 25, Unit: domain.UnitBuah, IsExact: true},
	}

	quote := Resolve(tiers, d(10000), d(10000), 5, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(7500)) {
		t.Fatalf("expected exact tier price 7500, got %s", quote.UnitPrice)
	}
	if quote.Tier == nil || !quote.Tier.IsExact {
		t.Fatalf("expected the exact tier to win")
	}

	// At quantity 6 the exact tier no longer matches.
	quote = Resolve(tiers, d(10000), d(10000), 6, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(9000)) {
		t.Fatalf("expected threshold price 9000 at qty 6, got %s", quote.UnitPrice)
	}
}

func TestResolveLargestQualifyingThresholdWins(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 5, Unit: domain.UnitBuah},
		{MinQuantity: 10, Discount: 15, Unit: domain.UnitBuah},
		{MinQuantity: 5, Discount: 10, Unit: domain.UnitBuah},
	}

	cases := []struct {
		qty  int
		want int64
	}{
		{1, 9500},
		{4, 9500},
		{5, 9000},
		{9, 9000},
		{10, 8500},
		{100, 8500},
	}
	for _, tc := range cases {
		quote := Resolve(tiers, d(10000), d(10000), tc.qty, domain.UnitBuah)
		if !quote.UnitPrice.Equal(d(tc.want)) {
			t.Fatalf("qty %d: expected %d, got %s", tc.qty, tc.want, quote.UnitPrice)
		}
	}
}

func TestResolveExactAtOneUnitThresholdAbove(t *testing.T) {
	// One piece has its own price; five or more gets the volume discount.
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 20, Unit: domain.UnitBuah, IsExact: true},
		{MinQuantity: 5, Discount: 10, Unit: domain.UnitBuah},
	}

	quote := Resolve(tiers, d(10000), d(10000), 1, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(8000)) {
		t.Fatalf("qty 1: expected 8000, got %s", quote.UnitPrice)
	}

	// Quantities 2..4 match neither tier and pay list price.
	quote = Resolve(tiers, d(10000), d(10000), 3, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(10000)) {
		t.Fatalf("qty 3: expected 10000, got %s", quote.UnitPrice)
	}

	quote = Resolve(tiers, d(10000), d(10000), 5, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(9000)) {
		t.Fatalf("qty 5: expected 9000, got %s", quote.UnitPrice)
	}
}

func TestResolveSecondDiscountCompounds(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 10, Discount2: 10, Unit: domain.UnitBuah},
	}

	quote := Resolve(tiers, d(1000), d(1000), 1, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(810)) {
		t.Fatalf("expected 1000 * 0.9 * 0.9 = 810, got %s", quote.UnitPrice)
	}
	if len(quote.AppliedDiscounts) != 2 {
		t.Fatalf("expected two applied discounts, got %v", quote.AppliedDiscounts)
	}
}

func TestResolveUnitFiltering(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 10, Unit: domain.UnitBox},
	}

	quote := Resolve(tiers, d(10000), d(10000), 2, domain.UnitBuah)
	if !quote.UnitPrice.Equal(d(10000)) {
		t.Fatalf("buah should not match a box tier, got %s", quote.UnitPrice)
	}

	quote = Resolve(tiers, d(10000), d(10000), 2, domain.UnitBox)
	if !quote.UnitPrice.Equal(d(9000)) {
		t.Fatalf("box tier should apply, got %s", quote.UnitPrice)
	}

	// An empty unit request matches tiers of any unit.
	quote = Resolve(tiers, d(10000), d(10000), 2, "")
	if !quote.UnitPrice.Equal(d(9000)) {
		t.Fatalf("empty unit should match any tier, got %s", quote.UnitPrice)
	}
}

func TestResolveBasePriceFallsBackToListPrice(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 50, Unit: domain.UnitBuah},
	}

	quote := Resolve(tiers, decimal.Zero, d(6000), 1, domain.UnitBuah)
	if !quote.BasePrice.Equal(d(6000)) {
		t.Fatalf("expected base fallback to list price, got %s", quote.BasePrice)
	}
	if !quote.UnitPrice.Equal(d(3000)) {
		t.Fatalf("expected 3000, got %s", quote.UnitPrice)
	}
}

func TestResolveHundredPercentDiscountIsFree(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 1, Discount: 100, Unit: domain.UnitBuah},
	}
	quote := Resolve(tiers, d(10000), d(10000), 1, domain.UnitBuah)
	if !quote.UnitPrice.IsZero() {
		t.Fatalf("expected zero price at 100%% discount, got %s", quote.UnitPrice)
	}
}

func TestScheduleOrderedAscending(t *testing.T) {
	tiers := []domain.DiscountTier{
		{MinQuantity: 10, Discount: 15, Unit: domain.UnitBuah},
		{MinQuantity: 1, Discount: 5, Unit: domain.UnitBuah},
		{MinQuantity: 5, Discount: 10, Discount2: 2.5, Unit: domain.UnitBuah},
	}

	rows := Schedule(tiers, d(10000), d(10000))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].Quantity > rows[i].Quantity {
			t.Fatalf("rows not ordered by quantity: %v", rows)
		}
	}

	// 10000 * 0.9 * 0.975 = 8775 at qty 5.
	if !rows[1].PricePerUnit.Equal(d(8775)) {
		t.Fatalf("expected compounded price 8775, got %s", rows[1].PricePerUnit)
	}
	if !rows[1].Total.Equal(d(43875)) {
		t.Fatalf("expected row total 43875, got %s", rows[1].Total)
	}
	if !rows[1].Savings.Equal(d(6125)) {
		t.Fatalf("expected savings 6125, got %s", rows[1].Savings)
	}
}

func TestScheduleZeroBaseReturnsNil(t *testing.T) {
	tiers := []domain.DiscountTier{{MinQuantity: 1, Discount: 5, Unit: domain.UnitBuah}}
	if rows := Schedule(tiers, decimal.Zero, decimal.Zero); rows != nil {
		t.Fatalf("expected nil schedule for zero base, got %v", rows)
	}
}

func TestDiscountPercentRounding(t *testing.T) {
	// 1000 -> 810 is a 19% overall cut.
	if got := DiscountPercent(d(1000), d(810)); got != 19 {
		t.Fatalf("expected 19, got %v", got)
	}
	if got := DiscountPercent(decimal.Zero, d(10)); got != 0 {
		t.Fatalf("expected 0 for zero base, got %v", got)
	}
	// 10000 * 0.9 * 0.975 = 8775 is a 12.25% overall cut.
	if got := DiscountPercent(d(10000), d(8775)); got != 12.25 {
		t.Fatalf("expected 12.25, got %v", got)
	}
}

func TestRoundRupiah(t *testing.T) {
	v := decimal.NewFromFloat(8774.5)
	if got := RoundRupiah(v); !got.Equal(d(8775)) {
		t.Fatalf("expected 8775, got %s", got)
	}
	v = decimal.NewFromFloat(8774.4)
	if got := RoundRupiah(v); !got.Equal(d(8774)) {
		t.Fatalf("expected 8774, got %s", got)
	}
}
