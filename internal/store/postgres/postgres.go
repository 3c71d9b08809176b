package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
	"github.com/ramaumm/cvragajayaamerta/internal/store"
	"github.com/ramaumm/cvragajayaamerta/internal/xid"
)

// Store is the PostgreSQL Repository. Discount tiers, unit conversions and
// stock entries live as jsonb lists on the product row (they are read and
// written together with the product); stock mutations and counter allocation
// take row locks so concurrent sessions serialize instead of losing updates.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, name, category, description, price, base_price, discount_tiers, units, stock_entries, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var tiers, units, entries []byte
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Description, &p.Price, &p.BasePrice,
		&tiers, &units, &entries, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tiers, &p.DiscountTiers); err != nil {
		return nil, fmt.Errorf("decode discount_tiers: %w", err)
	}
	if err := json.Unmarshal(units, &p.Units); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}
	if err := json.Unmarshal(entries, &p.StockEntries); err != nil {
		return nil, fmt.Errorf("decode stock_entries: %w", err)
	}
	return &p, nil
}

func productJSON(p domain.Product) (tiers, units, entries []byte, err error) {
	if p.DiscountTiers == nil {
		p.DiscountTiers = []domain.DiscountTier{}
	}
	if p.Units == nil {
		p.Units = []domain.UnitConversion{}
	}
	if p.StockEntries == nil {
		p.StockEntries = []domain.StockEntry{}
	}
	if tiers, err = json.Marshal(p.DiscountTiers); err != nil {
		return
	}
	if units, err = json.Marshal(p.Units); err != nil {
		return
	}
	entries, err = json.Marshal(p.StockEntries)
	return
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.SKU) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	tiers, units, entries, err := productJSON(product)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, description, price, base_price, discount_tiers, units, stock_entries, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.SKU, product.Name, product.Category, product.Description,
		product.Price, product.BasePrice, tiers, units, entries, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicateKey)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.SKU) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrValidation
	}

	tiers, units, entries, err := productJSON(product)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category = $4, description = $5, price = $6, base_price = $7,
		    discount_tiers = $8, units = $9, stock_entries = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.SKU, product.Name, product.Category, product.Description,
		product.Price, product.BasePrice, tiers, units, entries)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicateKey)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transaction_items WHERE product_id = $1)
	`, id).Scan(&referenced)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("product %s: %w", id, store.ErrConflict)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mutateProduct loads the product row FOR UPDATE, applies fn and writes the
// jsonb lists back inside one transaction. Every tier/unit/stock mutation
// funnels through here so the read-modify-write is serialized per product.
func (s *Store) mutateProduct(ctx context.Context, productID string, fn func(p *domain.Product) error) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	tiers, units, entries, err := productJSON(*p)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET discount_tiers = $2, units = $3, stock_entries = $4, updated_at = now()
		WHERE id = $1
	`, productID, tiers, units, entries)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) AddStockEntry(ctx context.Context, productID string, entry domain.StockEntry) (*domain.Product, error) {
	if strings.TrimSpace(entry.Unit) == "" || entry.Quantity < 0 {
		return nil, store.ErrValidation
	}
	return s.mutateProduct(ctx, productID, func(p *domain.Product) error {
		for _, existing := range p.StockEntries {
			if strings.EqualFold(existing.Unit, entry.Unit) {
				return fmt.Errorf("stock unit %s: %w", entry.Unit, store.ErrDuplicateKey)
			}
		}
		p.StockEntries = append(p.StockEntries, entry)
		return nil
	})
}

func (s *Store) RemoveStockEntry(ctx context.Context, productID string, unit string) (*domain.Product, error) {
	return s.mutateProduct(ctx, productID, func(p *domain.Product) error {
		idx := -1
		for i, entry := range p.StockEntries {
			if entry.Unit == unit {
				idx = i
				break
			}
		}
		if idx < 0 {
			return store.ErrNotFound
		}
		for _, tier := range p.DiscountTiers {
			if strings.EqualFold(tier.Unit, unit) {
				return fmt.Errorf("unit %s has discount tiers: %w", unit, store.ErrConflict)
			}
		}
		p.StockEntries = append(p.StockEntries[:idx], p.StockEntries[idx+1:]...)
		kept := p.Units[:0]
		for _, conv := range p.Units {
			if !strings.EqualFold(conv.Name, unit) {
				kept = append(kept, conv)
			}
		}
		p.Units = kept
		return nil
	})
}

func (s *Store) AddDiscountTier(ctx context.Context, productID string, tier domain.DiscountTier) (*domain.Product, error) {
	if tier.MinQuantity < 1 || tier.Discount < 0 || tier.Discount > 100 || tier.Discount2 < 0 || tier.Discount2 > 100 {
		return nil, store.ErrValidation
	}
	return s.mutateProduct(ctx, productID, func(p *domain.Product) error {
		for _, existing := range p.DiscountTiers {
			if existing.Key() == tier.Key() {
				return fmt.Errorf("tier %d %s exact=%t: %w", tier.MinQuantity, tier.Unit, tier.IsExact, store.ErrDuplicateKey)
			}
		}
		p.DiscountTiers = append(p.DiscountTiers, tier)
		return nil
	})
}

func (s *Store) RemoveDiscountTier(ctx context.Context, productID string, key domain.TierKey) (*domain.Product, error) {
	return s.mutateProduct(ctx, productID, func(p *domain.Product) error {
		kept := p.DiscountTiers[:0]
		removed := false
		for _, tier := range p.DiscountTiers {
			if tier.Key() == key {
				removed = true
				continue
			}
			kept = append(kept, tier)
		}
		if !removed {
			return store.ErrNotFound
		}
		p.DiscountTiers = kept
		return nil
	})
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

func (s *Store) AdjustStock(ctx context.Context, productID string, unit string, delta int) (*domain.Product, error) {
	return s.mutateProduct(ctx, productID, func(p *domain.Product) error {
		idx := -1
		for i, entry := range p.StockEntries {
			if entry.Unit == unit {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("unit %s: %w", unit, store.ErrNotFound)
		}
		remaining := p.StockEntries[idx].Quantity - delta
		if remaining < 0 {
			return store.ErrInsufficientStock
		}
		p.StockEntries[idx].Quantity = remaining
		return nil
	})
}

func (s *Store) PeekTransactionNumber(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = $1
	`, store.CounterKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		value = store.CounterSeed
		err = nil
	}
	if err != nil {
		return "", err
	}
	return store.TransactionNumberPrefix + value, nil
}

func (s *Store) CreateNota(ctx context.Context, nota domain.Transaction) (*domain.Transaction, error) {
	if len(nota.Items) == 0 || strings.TrimSpace(nota.CustomerName) == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the counter row for the whole commit: allocation, increment and
	// the transaction insert land atomically or not at all.
	var counter string
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = $1 FOR UPDATE
	`, store.CounterKey).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		counter = store.CounterSeed
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
		`, store.CounterKey, counter); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	number := store.TransactionNumberPrefix + counter
	next, err := incrementCounter(counter)
	if err != nil {
		return nil, fmt.Errorf("transaction counter corrupt: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE settings SET value = $2, updated_at = now() WHERE key = $1
	`, store.CounterKey, next); err != nil {
		return nil, err
	}

	if nota.ID == "" {
		nota.ID = uuid.New().String()
	}
	nota.TransactionNumber = number
	if nota.Status == "" {
		nota.Status = domain.TxStatusCompleted
	}
	if nota.CreatedAt.IsZero() {
		nota.CreatedAt = time.Now().UTC()
	}

	var terms sql.NullInt64
	if nota.PaymentTermsDays > 0 {
		terms = sql.NullInt64{Int64: int64(nota.PaymentTermsDays), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, transaction_number, customer_name, customer_address, total_amount, notes, payment_terms_days, created_by, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, nota.ID, nota.TransactionNumber, nota.CustomerName, nota.CustomerAddress,
		nota.TotalAmount, nota.Notes, terms, nota.CreatedBy, nota.Status, nota.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// The rollback undoes the counter increment, so the counter must
			// advance past the collided value in its own committed statement
			// or a retry would draw the identical number again.
			_ = tx.Rollback()
			if aerr := s.advanceCounterPast(ctx, counter); aerr != nil {
				return nil, fmt.Errorf("advance counter past %s: %w", counter, aerr)
			}
			return nil, fmt.Errorf("%s: %w", number, store.ErrDuplicateNumber)
		}
		return nil, err
	}

	for i := range nota.Items {
		item := &nota.Items[i]
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = nota.ID

		var details []byte
		if item.DiscountDetails != nil {
			if details, err = json.Marshal(item.DiscountDetails); err != nil {
				return nil, err
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, product_id, product_name, quantity, unit, unit_price, subtotal, discount_amount, discount_percent, discount_details)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, item.ID, item.TransactionID, item.ProductID, item.ProductName, item.Quantity, item.Unit,
			item.UnitPrice, item.Subtotal, item.DiscountAmount, item.DiscountPercent, details)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			if aerr := s.advanceCounterPast(ctx, counter); aerr != nil {
				return nil, fmt.Errorf("advance counter past %s: %w", counter, aerr)
			}
			return nil, fmt.Errorf("%s: %w", number, store.ErrDuplicateNumber)
		}
		return nil, err
	}

	created := nota
	return &created, nil
}

// advanceCounterPast moves the counter beyond a value whose number collided.
// Conditional on the stored value so a concurrent writer that already moved
// the counter is left alone.
func (s *Store) advanceCounterPast(ctx context.Context, collided string) error {
	next, err := incrementCounter(collided)
	if err != nil {
		return fmt.Errorf("transaction counter corrupt: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE settings SET value = $2, updated_at = now() WHERE key = $1 AND value = $3
	`, store.CounterKey, next, collided)
	return err
}

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

const transactionColumns = `id, transaction_number, customer_name, customer_address, total_amount, notes, payment_terms_days, created_by, status, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var terms sql.NullInt64
	err := row.Scan(&t.ID, &t.TransactionNumber, &t.CustomerName, &t.CustomerAddress,
		&t.TotalAmount, &t.Notes, &terms, &t.CreatedBy, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if terms.Valid {
		t.PaymentTermsDays = int(terms.Int64)
	}
	return &t, nil
}

func (s *Store) loadItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, product_name, quantity, unit, unit_price, subtotal, discount_amount, discount_percent, discount_details
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		var details []byte
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Unit, &item.UnitPrice, &item.Subtotal,
			&item.DiscountAmount, &item.DiscountPercent, &details); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			item.DiscountDetails = &domain.DiscountDetails{}
			if err := json.Unmarshal(details, item.DiscountDetails); err != nil {
				return nil, fmt.Errorf("decode discount_details: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if t.Items, err = s.loadItems(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) FindTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE transaction_number = $1
	`, number))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if t.Items, err = s.loadItems(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, from, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if result[i].Items, err = s.loadItems(ctx, result[i].ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) GetSalesReport(ctx context.Context, from, to time.Time) (domain.SalesReport, error) {
	report := domain.SalesReport{From: from, To: to, TotalRevenue: decimal.Zero}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM transactions
		WHERE status = $1 AND created_at >= $2 AND created_at <= $3
	`, domain.TxStatusCompleted, from, to).Scan(&report.TotalTransactions, &report.TotalRevenue)
	if err != nil {
		return report, err
	}
	if report.TotalTransactions > 0 {
		report.AverageTransaction = report.TotalRevenue.Div(decimal.NewFromInt(int64(report.TotalTransactions)))
	}

	dayRows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day, COALESCE(SUM(total_amount), 0)
		FROM transactions
		WHERE status = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY day
		ORDER BY day
	`, domain.TxStatusCompleted, from, to)
	if err != nil {
		return report, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var day domain.SalesReportDay
		if err := dayRows.Scan(&day.Date, &day.Revenue); err != nil {
			return report, err
		}
		report.DailyRevenue = append(report.DailyRevenue, day)
	}
	if err := dayRows.Err(); err != nil {
		return report, err
	}

	topRows, err := s.db.QueryContext(ctx, `
		SELECT i.product_name, COALESCE(SUM(i.quantity), 0), COALESCE(SUM(i.subtotal), 0) AS revenue
		FROM transaction_items i
		JOIN transactions t ON t.id = i.transaction_id
		WHERE t.status = $1 AND t.created_at >= $2 AND t.created_at <= $3
		GROUP BY i.product_name
		ORDER BY revenue DESC
		LIMIT 5
	`, domain.TxStatusCompleted, from, to)
	if err != nil {
		return report, err
	}
	defer topRows.Close()
	for topRows.Next() {
		var top domain.SalesReportProduct
		if err := topRows.Scan(&top.ProductName, &top.Quantity, &top.Revenue); err != nil {
			return report, err
		}
		report.TopProducts = append(report.TopProducts, top)
	}
	return report, topRows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("username %s: %w", user.Username, store.ErrDuplicateKey)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
