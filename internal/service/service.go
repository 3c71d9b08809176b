package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/cache"
	"github.com/ramaumm/cvragajayaamerta/internal/cart"
	"github.com/ramaumm/cvragajayaamerta/internal/domain"
	"github.com/ramaumm/cvragajayaamerta/internal/pricing"
	"github.com/ramaumm/cvragajayaamerta/internal/store"
	"github.com/ramaumm/cvragajayaamerta/internal/validation"
)

type actorContextKey struct{}

// WithActor attaches the authenticated operator to the context. The core
// never reads ambient session state; the actor always arrives explicitly.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// commitRetries bounds how often a nota commit is retried after a transaction
// number collision before the error is surfaced.
const commitRetries = 3

type Service struct {
	repo     store.Repository
	quotes   cache.QuoteCache
	quoteTTL time.Duration

	mu    sync.Mutex
	carts map[string]*cartSession
}

// cartSession serializes every operation on one cart. HTTP handlers can hit
// the same cart id concurrently (double submits, client retries); the session
// lock is held across the whole operation, ledger calls included, so line
// state and reservations never interleave. closed marks a committed or
// abandoned session so a racing caller cannot revive it.
type cartSession struct {
	mu     sync.Mutex
	closed bool
	cart   *cart.Cart
}

func New(repo store.Repository, quotes cache.QuoteCache, quoteTTL time.Duration) *Service {
	if quotes == nil {
		quotes = cache.NoopQuoteCache{}
	}
	if quoteTTL <= 0 {
		quoteTTL = 20 * time.Second
	}
	return &Service{
		repo:     repo,
		quotes:   quotes,
		quoteTTL: quoteTTL,
		carts:    make(map[string]*cartSession),
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func validationError(errs []validation.FieldError) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, validation.Describe(errs))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if errs := validation.ValidateStruct(req); len(errs) > 0 {
		return domain.Product{}, validationError(errs)
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Price.Sign() < 0 || req.BasePrice.Sign() < 0 {
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
	}

	product := domain.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Category:      req.Category,
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		BasePrice:     req.BasePrice,
		DiscountTiers: req.DiscountTiers,
		Units:         req.Units,
		StockEntries:  req.StockEntries,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,name=%s", created.SKU, created.Name))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.Sign() < 0 {
			return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		updated.Price = *req.Price
	}
	if req.BasePrice != nil {
		if req.BasePrice.Sign() < 0 {
			return domain.Product{}, fmt.Errorf("%w: base price must not be negative", store.ErrValidation)
		}
		updated.BasePrice = *req.BasePrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("sku=%s", saved.SKU))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) AddStockEntry(ctx context.Context, productID string, req domain.StockEntryAddRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if errs := validation.ValidateStruct(req); len(errs) > 0 {
		return domain.Product{}, validationError(errs)
	}

	saved, err := s.repo.AddStockEntry(ctx, productID, domain.StockEntry{
		Unit:     strings.TrimSpace(req.Unit),
		Quantity: req.Quantity,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "stock_entry_add", "product", productID, fmt.Sprintf("unit=%s,qty=%d", req.Unit, req.Quantity))
	return *saved, nil
}

// RemoveStockEntry refuses units still referenced by discount tiers; the
// caller must remove the dependent tiers first.
func (s *Service) RemoveStockEntry(ctx context.Context, productID string, unit string) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.RemoveStockEntry(ctx, productID, unit)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "stock_entry_remove", "product", productID, fmt.Sprintf("unit=%s", unit))
	return *saved, nil
}

func (s *Service) AddDiscountTier(ctx context.Context, productID string, tier domain.DiscountTier) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if errs := validation.ValidateStruct(tier); len(errs) > 0 {
		return domain.Product{}, validationError(errs)
	}

	saved, err := s.repo.AddDiscountTier(ctx, productID, tier)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "discount_tier_add", "product", productID,
		fmt.Sprintf("min_qty=%d,unit=%s,exact=%t,discount=%.2f", tier.MinQuantity, tier.Unit, tier.IsExact, tier.Discount))
	return *saved, nil
}

func (s *Service) RemoveDiscountTier(ctx context.Context, productID string, key domain.TierKey) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.RemoveDiscountTier(ctx, productID, key)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "discount_tier_remove", "product", productID,
		fmt.Sprintf("min_qty=%d,unit=%s,exact=%t", key.MinQuantity, key.Unit, key.IsExact))
	return *saved, nil
}

// OpenCart starts a checkout session and returns its id. Carts live in
// process memory: each belongs to one operator session and dies with it.
func (s *Service) OpenCart(_ context.Context) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.carts[id] = &cartSession{cart: cart.New()}
	s.mu.Unlock()
	return id
}

// lockCart returns the session for cartID with its lock held. The closed
// re-check guards against a caller that grabbed the session just before it
// was committed or abandoned.
func (s *Service) lockCart(cartID string) (*cartSession, error) {
	s.mu.Lock()
	sess, ok := s.carts[cartID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", cartID, store.ErrNotFound)
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, fmt.Errorf("cart %s: %w", cartID, store.ErrNotFound)
	}
	return sess, nil
}

// closeCart marks the session terminal and drops it from the index. Caller
// holds sess.mu.
func (s *Service) closeCart(cartID string, sess *cartSession) {
	sess.closed = true
	s.mu.Lock()
	delete(s.carts, cartID)
	s.mu.Unlock()
}

// AddToCart reserves stock first and only then merges the line, so a line is
// never recorded without its reservation. The post-reservation quantity is
// snapshotted onto the line.
func (s *Service) AddToCart(ctx context.Context, cartID string, req domain.CartAddRequest) (domain.CartView, error) {
	if errs := validation.ValidateStruct(req); len(errs) > 0 {
		return domain.CartView{}, validationError(errs)
	}
	sess, err := s.lockCart(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	defer sess.mu.Unlock()

	product, err := s.repo.ReserveStock(ctx, req.ProductID, req.Unit, req.Quantity)
	if err != nil {
		return domain.CartView{}, err
	}

	entry, _ := product.StockFor(req.Unit)
	sess.cart.Add(req.ProductID, req.Unit, req.Quantity, entry.Quantity)

	return s.cartView(ctx, cartID, sess.cart)
}

// UpdateCartLine adjusts the reservation by the signed difference between the
// new and current quantity. A new quantity below one removes the line.
func (s *Service) UpdateCartLine(ctx context.Context, cartID string, req domain.CartUpdateRequest) (domain.CartView, error) {
	if errs := validation.ValidateStruct(req); len(errs) > 0 {
		return domain.CartView{}, validationError(errs)
	}

	if req.Quantity < 1 {
		return s.RemoveFromCart(ctx, cartID, req.ProductID, req.Unit)
	}

	sess, err := s.lockCart(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	defer sess.mu.Unlock()

	line, ok := sess.cart.Line(req.ProductID, req.Unit)
	if !ok {
		return domain.CartView{}, fmt.Errorf("cart line: %w", store.ErrNotFound)
	}

	snapshot := line.StockSnapshot
	if delta := req.Quantity - line.Quantity; delta != 0 {
		product, err := s.repo.AdjustStock(ctx, req.ProductID, req.Unit, delta)
		if err != nil {
			return domain.CartView{}, err
		}
		entry, _ := product.StockFor(req.Unit)
		snapshot = entry.Quantity
	}

	if _, err := sess.cart.SetQuantity(req.ProductID, req.Unit, req.Quantity, snapshot); err != nil {
		return domain.CartView{}, err
	}

	return s.cartView(ctx, cartID, sess.cart)
}

func (s *Service) RemoveFromCart(ctx context.Context, cartID string, productID string, unit string) (domain.CartView, error) {
	sess, err := s.lockCart(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	defer sess.mu.Unlock()

	line, ok := sess.cart.Line(productID, unit)
	if !ok {
		return domain.CartView{}, fmt.Errorf("cart line: %w", store.ErrNotFound)
	}

	if _, err := s.repo.ReleaseStock(ctx, productID, unit, line.Quantity); err != nil {
		return domain.CartView{}, err
	}

	if _, err := sess.cart.Remove(productID, unit); err != nil {
		return domain.CartView{}, err
	}

	return s.cartView(ctx, cartID, sess.cart)
}

func (s *Service) GetCart(ctx context.Context, cartID string) (domain.CartView, error) {
	sess, err := s.lockCart(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	defer sess.mu.Unlock()
	return s.cartView(ctx, cartID, sess.cart)
}

// AbandonCart releases every reservation and drops the session. The session
// closes before anything is released, so a racing second abandon sees
// ErrNotFound instead of releasing the same lines again.
func (s *Service) AbandonCart(ctx context.Context, cartID string) error {
	sess, err := s.lockCart(cartID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()
	s.closeCart(cartID, sess)

	for _, line := range sess.cart.Lines() {
		if _, err := s.repo.ReleaseStock(ctx, line.ProductID, line.Unit, line.Quantity); err != nil {
			log.Printf("[service] WARN: failed to release %d %s of product %s: %v", line.Quantity, line.Unit, line.ProductID, err)
		}
	}
	return nil
}

func (s *Service) cartProducts(ctx context.Context, c *cart.Cart) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product)
	for _, line := range c.Lines() {
		if _, seen := products[line.ProductID]; seen {
			continue
		}
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		products[line.ProductID] = *product
	}
	return products, nil
}

func (s *Service) cartView(ctx context.Context, cartID string, c *cart.Cart) (domain.CartView, error) {
	products, err := s.cartProducts(ctx, c)
	if err != nil {
		return domain.CartView{}, err
	}

	view := domain.CartView{CartID: cartID, TotalAmount: decimal.Zero}
	for _, line := range c.Lines() {
		product := products[line.ProductID]
		quote := pricing.Resolve(product.DiscountTiers, product.BasePrice, product.Price, line.Quantity, line.Unit)
		subtotal := quote.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Lines = append(view.Lines, domain.CartLineView{
			CartLine:         line,
			ProductName:      product.Name,
			UnitPrice:        quote.UnitPrice,
			BasePrice:        quote.BasePrice,
			Subtotal:         subtotal,
			AppliedDiscounts: quote.AppliedDiscounts,
		})
		view.TotalAmount = view.TotalAmount.Add(subtotal)
	}
	return view, nil
}

// PreviewTransactionNumber shows the number the next commit would take
// without consuming it.
func (s *Service) PreviewTransactionNumber(ctx context.Context) (string, error) {
	return s.repo.PeekTransactionNumber(ctx)
}

// CreateNota finalizes the cart: each line is resolved through the shared
// pricing implementation, the counter allocates the invoice number and the
// transaction plus all items commit atomically. On a number collision the
// commit retries with a freshly read counter; reserved stock is consumed, not
// restored, so the session is simply dropped on success.
func (s *Service) CreateNota(ctx context.Context, req domain.NotaCreateRequest) (*domain.Transaction, error) {
	if errs := validation.ValidateStruct(req); len(errs) > 0 {
		return nil, validationError(errs)
	}

	sess, err := s.lockCart(req.CartID)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if sess.cart.Len() == 0 {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	products, err := s.cartProducts(ctx, sess.cart)
	if err != nil {
		return nil, err
	}
	items, err := sess.cart.ToTransactionItems(products)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}

	createdBy := ""
	if actor, ok := ActorFromContext(ctx); ok {
		createdBy = actor.Username
	}

	nota := domain.Transaction{
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerAddress:  strings.TrimSpace(req.CustomerAddress),
		TotalAmount:      total,
		Notes:            req.Notes,
		PaymentTermsDays: req.PaymentTermsDays,
		CreatedBy:        createdBy,
		Status:           domain.TxStatusCompleted,
		Items:            items,
	}

	var created *domain.Transaction
	for attempt := 0; attempt < commitRetries; attempt++ {
		created, err = s.repo.CreateNota(ctx, nota)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateNumber) {
			return nil, err
		}
		log.Printf("[service] WARN: transaction number collision (attempt %d): %v", attempt+1, err)
	}
	if err != nil {
		return nil, err
	}

	s.closeCart(req.CartID, sess)

	s.logAudit(ctx, "nota_create", "transaction", created.ID,
		fmt.Sprintf("number=%s,total=%s,items=%d", created.TransactionNumber, created.TotalAmount.String(), len(created.Items)))
	return created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, from, to time.Time, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, from, to, limit)
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "nota_delete", "transaction", id, fmt.Sprintf("number=%s", tx.TransactionNumber))
	return nil
}

func (s *Service) SalesReport(ctx context.Context, from, to time.Time) (domain.SalesReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SalesReport{}, err
	}
	return s.repo.GetSalesReport(ctx, from, to)
}

// PriceQuote resolves the effective price for a prospective line. Quotes are
// cached briefly; a stale quote is harmless because the commit re-resolves.
func (s *Service) PriceQuote(ctx context.Context, productID string, quantity int, unit string) (domain.PriceQuote, error) {
	if quantity < 1 {
		return domain.PriceQuote{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}

	key := fmt.Sprintf("quote:%s:%d:%s", productID, quantity, unit)
	if cached, ok, err := s.quotes.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: quote cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	resolved := pricing.Resolve(product.DiscountTiers, product.BasePrice, product.Price, quantity, unit)
	quote := domain.PriceQuote{
		ProductID:        productID,
		Quantity:         quantity,
		Unit:             unit,
		UnitPrice:        resolved.UnitPrice,
		BasePrice:        resolved.BasePrice,
		AppliedDiscounts: resolved.AppliedDiscounts,
		Total:            resolved.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}

	if err := s.quotes.Set(ctx, key, &quote, s.quoteTTL); err != nil {
		log.Printf("[service] WARN: quote cache write failed: %v", err)
	}
	return quote, nil
}

// DiscountSchedule expands a product's tiers into the preview table.
func (s *Service) DiscountSchedule(ctx context.Context, productID string) ([]domain.ScheduleRow, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return pricing.Schedule(product.DiscountTiers, product.BasePrice, product.Price), nil
}

func (s *Service) AuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
