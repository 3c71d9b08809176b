package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
	"github.com/ramaumm/cvragajayaamerta/internal/store"
	"github.com/ramaumm/cvragajayaamerta/internal/xid"
)

// Store is a mutex-guarded in-memory Repository. A single lock serializes
// every stock mutation and counter allocation, which is exactly the
// serialization contract the postgres implementation provides with row locks.
type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productIDBySKU   map[string]string
	counter          string
	transactionsByID map[string]*domain.Transaction
	txIDByNumber     map[string]string
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		productIDBySKU:   make(map[string]string),
		counter:          store.CounterSeed,
		transactionsByID: make(map[string]*domain.Transaction),
		txIDByNumber:     make(map[string]string),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small distributor catalog for
// dev/demo mode and tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{
			SKU:       "RJA-PARA-500",
			Name:      "Paracetamol 500mg",
			Category:  "obat",
			Price:     decimal.NewFromInt(10000),
			BasePrice: decimal.NewFromInt(10000),
			DiscountTiers: []domain.DiscountTier{
				{MinQuantity: 1, Discount: 20, Unit: domain.UnitBuah, IsExact: true},
				{MinQuantity: 5, Discount: 10, Unit: domain.UnitBuah, IsExact: false},
			},
			Units: []domain.UnitConversion{
				{Name: domain.UnitBuah, Quantity: 1},
				{Name: domain.UnitBox, Quantity: 10},
			},
			StockEntries: []domain.StockEntry{
				{Unit: domain.UnitBuah, Quantity: 120},
				{Unit: domain.UnitBox, Quantity: 40},
			},
		},
		{
			SKU:       "RJA-AMOX-250",
			Name:      "Amoxicillin 250mg",
			Category:  "obat",
			Price:     decimal.NewFromInt(25000),
			BasePrice: decimal.NewFromInt(24000),
			DiscountTiers: []domain.DiscountTier{
				{MinQuantity: 10, Discount: 5, Unit: domain.UnitBox, IsExact: false},
				{MinQuantity: 50, Discount: 10, Discount2: 2.5, Unit: domain.UnitBox, IsExact: false},
			},
			Units: []domain.UnitConversion{
				{Name: domain.UnitBox, Quantity: 1},
				{Name: domain.UnitKarton, Quantity: 20},
			},
			StockEntries: []domain.StockEntry{
				{Unit: domain.UnitBox, Quantity: 200},
				{Unit: domain.UnitKarton, Quantity: 15},
			},
		},
		{
			SKU:       "RJA-VITC-1000",
			Name:      "Vitamin C 1000mg",
			Category:  "suplemen",
			Price:     decimal.NewFromInt(35000),
			BasePrice: decimal.NewFromInt(35000),
			Units: []domain.UnitConversion{
				{Name: domain.UnitBuah, Quantity: 1},
			},
			StockEntries: []domain.StockEntry{
				{Unit: domain.UnitBuah, Quantity: 60},
			},
		},
	}

	for _, p := range products {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productIDBySKU[p.SKU] = p.ID
	}
	return s
}

// seedUsers builds the initial in-memory operator accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_KASIR_PASSWORD; unset
// variables fall back to dev defaults with a warning. Production deployments
// use PostgreSQL accounts instead.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_KASIR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"kasir", kasirPwd, "kasir"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, cloneProduct(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDBySKU[product.SKU]; exists {
		return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicateKey)
	}

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	s.products[product.ID] = cloneProduct(product)
	s.productIDBySKU[product.SKU] = product.ID
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(p)
	return &found, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productIDBySKU[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(s.products[id])
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.SKU != product.SKU {
		if _, taken := s.productIDBySKU[product.SKU]; taken {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicateKey)
		}
		delete(s.productIDBySKU, existing.SKU)
		s.productIDBySKU[product.SKU] = product.ID
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = cloneProduct(product)
	saved := cloneProduct(product)
	return &saved, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, tx := range s.transactionsByID {
		for _, item := range tx.Items {
			if item.ProductID == id {
				return fmt.Errorf("product %s used by %s: %w", id, tx.TransactionNumber, store.ErrConflict)
			}
		}
	}

	delete(s.productIDBySKU, p.SKU)
	delete(s.products, id)
	return nil
}

func (s *Store) AddStockEntry(_ context.Context, productID string, entry domain.StockEntry) (*domain.Product, error) {
	if strings.TrimSpace(entry.Unit) == "" || entry.Quantity < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range p.StockEntries {
		if strings.EqualFold(existing.Unit, entry.Unit) {
			return nil, fmt.Errorf("stock unit %s: %w", entry.Unit, store.ErrDuplicateKey)
		}
	}

	p.StockEntries = append(p.StockEntries, entry)
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	saved := cloneProduct(p)
	return &saved, nil
}

// RemoveStockEntry refuses to orphan discount tiers: a unit still referenced
// by any tier cannot be removed. The matching unit conversion is dropped
// together with the entry.
func (s *Store) RemoveStockEntry(_ context.Context, productID string, unit string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	idx := -1
	for i, entry := range p.StockEntries {
		if entry.Unit == unit {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	for _, tier := range p.DiscountTiers {
		if strings.EqualFold(tier.Unit, unit) {
			return nil, fmt.Errorf("unit %s has discount tiers: %w", unit, store.ErrConflict)
		}
	}

	p.StockEntries = append(p.StockEntries[:idx:idx], p.StockEntries[idx+1:]...)
	kept := p.Units[:0:0]
	for _, conv := range p.Units {
		if !strings.EqualFold(conv.Name, unit) {
			kept = append(kept, conv)
		}
	}
	p.Units = kept
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	saved := cloneProduct(p)
	return &saved, nil
}

func (s *Store) AddDiscountTier(_ context.Context, productID string, tier domain.DiscountTier) (*domain.Product, error) {
	if err := validateTier(tier); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range p.DiscountTiers {
		if existing.Key() == tier.Key() {
			return nil, fmt.Errorf("tier %d %s exact=%t: %w", tier.MinQuantity, tier.Unit, tier.IsExact, store.ErrDuplicateKey)
		}
	}

	p.DiscountTiers = append(p.DiscountTiers, tier)
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	saved := cloneProduct(p)
	return &saved, nil
}

func (s *Store) RemoveDiscountTier(_ context.Context, productID string, key domain.TierKey) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	kept := p.DiscountTiers[:0:0]
	removed := false
	for _, tier := range p.DiscountTiers {
		if tier.Key() == key {
			removed = true
			continue
		}
		kept = append(kept, tier)
	}
	if !removed {
		return nil, store.ErrNotFound
	}

	p.DiscountTiers = kept
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	saved := cloneProduct(p)
	return &saved, nil
}

func (s *Store) ReserveStock(ctx context.Context, productID string, unit string, qty int) (*domain.Product, error) {
	if qty < 1 {
		return nil, store.ErrValidation
	}
	return s.AdjustStock(ctx, productID, unit, qty)
}

func (s *Store) ReleaseStock(ctx context.Context, productID string, unit string, qty int) (*domain.Product, error) {
	if qty < 1 {
		return nil, store.ErrValidation
	}
	return s.AdjustStock(ctx, productID, unit, -qty)
}

// AdjustStock applies a signed delta to the unit's quantity: positive
// reserves, negative releases. The availability check and the write happen
// under one lock, so two concurrent reservations can never both see the same
// pre-reservation quantity.
func (s *Store) AdjustStock(_ context.Context, productID string, unit string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	idx := -1
	for i, entry := range p.StockEntries {
		if entry.Unit == unit {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unit %s: %w", unit, store.ErrNotFound)
	}

	remaining := p.StockEntries[idx].Quantity - delta
	if remaining < 0 {
		return nil, store.ErrInsufficientStock
	}

	p.StockEntries[idx].Quantity = remaining
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	saved := cloneProduct(p)
	return &saved, nil
}

func (s *Store) PeekTransactionNumber(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.TransactionNumberPrefix + s.counter, nil
}

func (s *Store) CreateNota(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 || strings.TrimSpace(tx.CustomerName) == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	number := store.TransactionNumberPrefix + s.counter
	if _, taken := s.txIDByNumber[number]; taken {
		// Advance past the collided value so a retry draws a fresh number.
		// Numbers may gap; they must never repeat.
		next, incErr := incrementCounter(s.counter)
		if incErr != nil {
			return nil, fmt.Errorf("transaction counter corrupt: %w", incErr)
		}
		s.counter = next
		return nil, fmt.Errorf("%s: %w", number, store.ErrDuplicateNumber)
	}

	next, err := incrementCounter(s.counter)
	if err != nil {
		return nil, fmt.Errorf("transaction counter corrupt: %w", err)
	}
	s.counter = next

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.TransactionNumber = number
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	for i := range tx.Items {
		if tx.Items[i].ID == "" {
			tx.Items[i].ID = xid.New("item")
		}
		tx.Items[i].TransactionID = tx.ID
	}

	stored := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = stored
	s.txIDByNumber[number] = tx.ID
	created := cloneTransaction(stored)
	return created, nil
}

// incrementCounter advances the decimal counter by one, preserving the digit
// width of the stored value so the invoice number never silently narrows.
func incrementCounter(current string) (string, error) {
	n, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		return "", err
	}
	next := strconv.FormatInt(n+1, 10)
	if len(next) < len(current) {
		next = strings.Repeat("0", len(current)-len(next)) + next
	}
	return next, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByNumber(_ context.Context, number string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.txIDByNumber[number]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(s.transactionsByID[id]), nil
}

func (s *Store) ListTransactions(_ context.Context, from, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Transaction, 0, limit)
	for _, tx := range s.transactionsByID {
		if !inRange(tx.CreatedAt, from, to) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.txIDByNumber, tx.TransactionNumber)
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) GetSalesReport(_ context.Context, from, to time.Time) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		From:         from,
		To:           to,
		TotalRevenue: decimal.Zero,
	}
	daily := map[string]decimal.Decimal{}
	type productAgg struct {
		qty     int
		revenue decimal.Decimal
	}
	byProduct := map[string]*productAgg{}

	for _, tx := range s.transactionsByID {
		if tx.Status != domain.TxStatusCompleted || !inRange(tx.CreatedAt, from, to) {
			continue
		}
		report.TotalTransactions++
		report.TotalRevenue = report.TotalRevenue.Add(tx.TotalAmount)

		day := tx.CreatedAt.Format("2006-01-02")
		daily[day] = daily[day].Add(tx.TotalAmount)

		for _, item := range tx.Items {
			agg, ok := byProduct[item.ProductName]
			if !ok {
				agg = &productAgg{}
				byProduct[item.ProductName] = agg
			}
			agg.qty += item.Quantity
			agg.revenue = agg.revenue.Add(item.Subtotal)
		}
	}

	if report.TotalTransactions > 0 {
		report.AverageTransaction = report.TotalRevenue.Div(decimal.NewFromInt(int64(report.TotalTransactions)))
	}

	for day, revenue := range daily {
		report.DailyRevenue = append(report.DailyRevenue, domain.SalesReportDay{Date: day, Revenue: revenue})
	}
	sort.Slice(report.DailyRevenue, func(i, j int) bool {
		return report.DailyRevenue[i].Date < report.DailyRevenue[j].Date
	})

	for name, agg := range byProduct {
		report.TopProducts = append(report.TopProducts, domain.SalesReportProduct{
			ProductName: name,
			Quantity:    agg.qty,
			Revenue:     agg.revenue,
		})
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		return report.TopProducts[i].Revenue.GreaterThan(report.TopProducts[j].Revenue)
	})
	if len(report.TopProducts) > 5 {
		report.TopProducts = report.TopProducts[:5]
	}
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if inRange(entry.CreatedAt, from, to) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("username %s: %w", user.Username, store.ErrDuplicateKey)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func validateProduct(product domain.Product) error {
	if strings.TrimSpace(product.SKU) == "" || strings.TrimSpace(product.Name) == "" {
		return store.ErrValidation
	}
	if product.Price.Sign() < 0 || product.BasePrice.Sign() < 0 {
		return store.ErrValidation
	}

	seenUnits := map[string]bool{}
	for _, entry := range product.StockEntries {
		unit := strings.ToLower(entry.Unit)
		if unit == "" || entry.Quantity < 0 || seenUnits[unit] {
			return store.ErrValidation
		}
		seenUnits[unit] = true
	}

	seenTiers := map[domain.TierKey]bool{}
	for _, tier := range product.DiscountTiers {
		if err := validateTier(tier); err != nil {
			return err
		}
		if seenTiers[tier.Key()] {
			return fmt.Errorf("tier %d %s exact=%t: %w", tier.MinQuantity, tier.Unit, tier.IsExact, store.ErrDuplicateKey)
		}
		seenTiers[tier.Key()] = true
	}
	return nil
}

func validateTier(tier domain.DiscountTier) error {
	if tier.MinQuantity < 1 {
		return store.ErrValidation
	}
	if tier.Discount < 0 || tier.Discount > 100 || tier.Discount2 < 0 || tier.Discount2 > 100 {
		return store.ErrValidation
	}
	valid := false
	for _, unit := range domain.TierUnits {
		if tier.Unit == unit {
			valid = true
			break
		}
	}
	if !valid {
		return store.ErrValidation
	}
	return nil
}

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

func cloneProduct(p domain.Product) domain.Product {
	c := p
	c.DiscountTiers = append([]domain.DiscountTier(nil), p.DiscountTiers...)
	c.Units = append([]domain.UnitConversion(nil), p.Units...)
	c.StockEntries = append([]domain.StockEntry(nil), p.StockEntries...)
	return c
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Items = make([]domain.TransactionItem, len(tx.Items))
	for i, item := range tx.Items {
		c.Items[i] = item
		if item.DiscountDetails != nil {
			details := *item.DiscountDetails
			c.Items[i].DiscountDetails = &details
		}
	}
	return &c
}
