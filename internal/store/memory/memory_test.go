package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
	"github.com/ramaumm/cvragajayaamerta/internal/store"
)

func seededProduct(t *testing.T, s *Store, sku string) domain.Product {
	t.Helper()
	p, err := s.GetProductBySKU(context.Background(), sku)
	if err != nil {
		t.Fatalf("seeded product %s missing: %v", sku, err)
	}
	return *p
}

func stockOf(t *testing.T, p *domain.Product, unit string) int {
	t.Helper()
	entry, ok := p.StockFor(unit)
	if !ok {
		t.Fatalf("product %s has no unit %s", p.SKU, unit)
	}
	return entry.Quantity
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")

	before := stockOf(t, &para, domain.UnitBuah)

	after, err := s.ReserveStock(ctx, para.ID, domain.UnitBuah, 7)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := stockOf(t, after, domain.UnitBuah); got != before-7 {
		t.Fatalf("expected %d after reserve, got %d", before-7, got)
	}

	after, err = s.ReleaseStock(ctx, para.ID, domain.UnitBuah, 7)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := stockOf(t, after, domain.UnitBuah); got != before {
		t.Fatalf("expected stock restored to %d, got %d", before, got)
	}
}

func TestReserveStockNeverGoesNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")
	available := stockOf(t, &para, domain.UnitBuah)

	_, err := s.ReserveStock(ctx, para.ID, domain.UnitBuah, available+1)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The failed reservation must not have touched the quantity.
	got, err := s.GetProductByID(ctx, para.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stockOf(t, got, domain.UnitBuah) != available {
		t.Fatalf("failed reservation changed stock")
	}

	// Draining exactly to zero is allowed.
	after, err := s.ReserveStock(ctx, para.ID, domain.UnitBuah, available)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if stockOf(t, after, domain.UnitBuah) != 0 {
		t.Fatalf("expected zero stock after drain")
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")
	available := stockOf(t, &para, domain.UnitBuah)

	const workers = 50
	var wg sync.WaitGroup
	granted := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveStock(ctx, para.ID, domain.UnitBuah, 5); err == nil {
				granted <- 5
			}
		}()
	}
	wg.Wait()
	close(granted)

	total := 0
	for qty := range granted {
		total += qty
	}
	if total > available {
		t.Fatalf("oversold: granted %d of %d available", total, available)
	}

	got, err := s.GetProductByID(ctx, para.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if remaining := stockOf(t, got, domain.UnitBuah); remaining != available-total {
		t.Fatalf("ledger drift: %d granted but %d remaining of %d", total, remaining, available)
	}
}

func TestAdjustStockSignedDelta(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	amox := seededProduct(t, s, "RJA-AMOX-250")
	before := stockOf(t, &amox, domain.UnitBox)

	after, err := s.AdjustStock(ctx, amox.ID, domain.UnitBox, 10)
	if err != nil {
		t.Fatalf("adjust +10: %v", err)
	}
	if stockOf(t, after, domain.UnitBox) != before-10 {
		t.Fatalf("positive delta should reserve")
	}

	after, err = s.AdjustStock(ctx, amox.ID, domain.UnitBox, -4)
	if err != nil {
		t.Fatalf("adjust -4: %v", err)
	}
	if stockOf(t, after, domain.UnitBox) != before-6 {
		t.Fatalf("negative delta should release")
	}

	if _, err := s.AdjustStock(ctx, amox.ID, "pallet", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown unit, got %v", err)
	}
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateProduct(ctx, domain.Product{
		SKU:   "RJA-PARA-500",
		Name:  "Duplicate",
		Price: decimal.NewFromInt(100),
	})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestAddDiscountTierRejectsDuplicateTriple(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")

	_, err := s.AddDiscountTier(ctx, para.ID, domain.DiscountTier{
		MinQuantity: 5, Discount: 12, Unit: domain.UnitBuah,
	})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey for duplicate (qty, unit, exact) triple, got %v", err)
	}

	// Same quantity and unit but exact is a different tier.
	if _, err := s.AddDiscountTier(ctx, para.ID, domain.DiscountTier{
		MinQuantity: 5, Discount: 12, Unit: domain.UnitBuah, IsExact: true,
	}); err != nil {
		t.Fatalf("exact variant should be allowed: %v", err)
	}
}

func TestRemoveStockEntryRefusedWhileTiersReferenceUnit(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")

	_, err := s.RemoveStockEntry(ctx, para.ID, domain.UnitBuah)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict while tiers reference buah, got %v", err)
	}

	// Box has no tiers; removal drops entry and conversion.
	p, err := s.RemoveStockEntry(ctx, para.ID, domain.UnitBox)
	if err != nil {
		t.Fatalf("remove box: %v", err)
	}
	if _, ok := p.StockFor(domain.UnitBox); ok {
		t.Fatalf("box entry should be gone")
	}
	for _, conv := range p.Units {
		if conv.Name == domain.UnitBox {
			t.Fatalf("box conversion should be gone")
		}
	}
}

func sampleNota(customer string) domain.Transaction {
	return domain.Transaction{
		CustomerName: customer,
		TotalAmount:  decimal.NewFromInt(45000),
		Items: []domain.TransactionItem{
			{
				ProductID:   "p1",
				ProductName: "Paracetamol 500mg (5 buah)",
				Quantity:    5,
				Unit:        domain.UnitBuah,
				UnitPrice:   decimal.NewFromInt(9000),
				Subtotal:    decimal.NewFromInt(45000),
			},
		},
	}
}

func TestCreateNotaAssignsSequentialNumbers(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateNota(ctx, sampleNota("Apotek Sehat"))
	if err != nil {
		t.Fatalf("first nota: %v", err)
	}
	if first.TransactionNumber != "RJA/APT/2504040159" {
		t.Fatalf("expected seed number, got %s", first.TransactionNumber)
	}

	second, err := s.CreateNota(ctx, sampleNota("Apotek Makmur"))
	if err != nil {
		t.Fatalf("second nota: %v", err)
	}
	if second.TransactionNumber != "RJA/APT/2504040160" {
		t.Fatalf("expected incremented number, got %s", second.TransactionNumber)
	}

	peek, err := s.PeekTransactionNumber(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if peek != "RJA/APT/2504040161" {
		t.Fatalf("peek should show next unconsumed number, got %s", peek)
	}

	if first.Status != domain.TxStatusCompleted {
		t.Fatalf("expected default status completed, got %s", first.Status)
	}
	if first.Items[0].TransactionID != first.ID {
		t.Fatalf("item not linked to transaction")
	}
}

func TestIncrementCounterPreservesWidth(t *testing.T) {
	cases := []struct{ in, want string }{
		{"2504040159", "2504040160"},
		{"0000000009", "0000000010"},
		{"99", "100"},
	}
	for _, tc := range cases {
		got, err := incrementCounter(tc.in)
		if err != nil {
			t.Fatalf("increment %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("increment %q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
	if _, err := incrementCounter("not-a-number"); err == nil {
		t.Fatalf("expected error for corrupt counter")
	}
}

func TestCreateNotaCollisionAdvancesCounter(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateNota(ctx, sampleNota("Apotek Sehat"))
	if err != nil {
		t.Fatalf("first nota: %v", err)
	}

	// Rewind the counter onto the consumed value, as a restored backup would.
	s.mu.Lock()
	s.counter = store.CounterSeed
	s.mu.Unlock()

	if _, err := s.CreateNota(ctx, sampleNota("Apotek Makmur")); !errors.Is(err, store.ErrDuplicateNumber) {
		t.Fatalf("expected ErrDuplicateNumber, got %v", err)
	}

	// The collision must leave the counter past the taken value so a retry
	// draws a fresh number instead of colliding again.
	retried, err := s.CreateNota(ctx, sampleNota("Apotek Makmur"))
	if err != nil {
		t.Fatalf("retry after collision: %v", err)
	}
	if retried.TransactionNumber == first.TransactionNumber {
		t.Fatalf("retry repeated number %s", retried.TransactionNumber)
	}
	if retried.TransactionNumber != "RJA/APT/2504040160" {
		t.Fatalf("expected next number after collision, got %s", retried.TransactionNumber)
	}
}

func TestConcurrentNotaNumbersAreUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	numbers := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tx, err := s.CreateNota(ctx, sampleNota(fmt.Sprintf("customer-%d", n)))
			if err != nil {
				t.Errorf("nota %d: %v", n, err)
				return
			}
			numbers <- tx.TransactionNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for number := range numbers {
		if seen[number] {
			t.Fatalf("duplicate transaction number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d unique numbers, got %d", workers, len(seen))
	}
}

func TestCreateNotaRejectsEmptyInput(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateNota(ctx, domain.Transaction{CustomerName: "X"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty items, got %v", err)
	}
	nota := sampleNota("")
	if _, err := s.CreateNota(ctx, nota); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty customer, got %v", err)
	}
}

func TestDeleteProductRefusedWhenReferencedByTransaction(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	para := seededProduct(t, s, "RJA-PARA-500")

	nota := sampleNota("Apotek Sehat")
	nota.Items[0].ProductID = para.ID
	if _, err := s.CreateNota(ctx, nota); err != nil {
		t.Fatalf("nota: %v", err)
	}

	if err := s.DeleteProduct(ctx, para.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetSalesReportAggregatesCompletedOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateNota(ctx, sampleNota("A")); err != nil {
		t.Fatalf("nota A: %v", err)
	}
	cancelled := sampleNota("B")
	cancelled.Status = domain.TxStatusCancelled
	if _, err := s.CreateNota(ctx, cancelled); err != nil {
		t.Fatalf("nota B: %v", err)
	}

	report, err := s.GetSalesReport(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.TotalTransactions != 1 {
		t.Fatalf("expected 1 completed transaction, got %d", report.TotalTransactions)
	}
	if !report.TotalRevenue.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("expected revenue 45000, got %s", report.TotalRevenue)
	}
	if len(report.DailyRevenue) != 1 {
		t.Fatalf("expected one daily bucket, got %d", len(report.DailyRevenue))
	}
	if len(report.TopProducts) != 1 || report.TopProducts[0].Quantity != 5 {
		t.Fatalf("unexpected top products: %v", report.TopProducts)
	}
}

func TestListTransactionsRangeAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.CreateNota(ctx, sampleNota(fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("nota %d: %v", i, err)
		}
	}

	all, err := s.ListTransactions(ctx, time.Time{}, time.Time{}, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected limit 3, got %d", len(all))
	}

	future := time.Now().Add(time.Hour)
	none, err := s.ListTransactions(ctx, future, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list future: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no transactions after future cutoff, got %d", len(none))
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: "admin",
		ActorRole:     "admin",
		Action:        "product_create",
		EntityType:    "product",
		EntityID:      "p1",
	}); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "product_create" {
		t.Fatalf("unexpected logs: %v", logs)
	}
	if logs[0].ID == "" || logs[0].CreatedAt.IsZero() {
		t.Fatalf("audit entry not stamped")
	}
}
