package store

import (
	"context"
	"errors"
	"time"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
)

var (
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock means a reservation asked for more than the unit
	// has available. Stock is never driven below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateKey means a unique business key (SKU, unit name, tier
	// triple) already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrDuplicateNumber means the allocated transaction number collided.
	// Callers retry the commit with a freshly read counter.
	ErrDuplicateNumber = errors.New("duplicate transaction number")
	// ErrConflict means the record is still referenced elsewhere and the
	// operation was refused rather than partially applied.
	ErrConflict = errors.New("still referenced")
	// ErrValidation means the request failed field-level validation.
	ErrValidation = errors.New("validation failed")
)

// Counter defaults. The transaction number is the literal prefix followed by
// the current counter value; the increment preserves the stored digit width.
const (
	TransactionNumberPrefix = "RJA/APT/"
	CounterKey              = "transaction_counter"
	CounterSeed             = "2504040159"
)

// Repository is the persistence boundary shared by every operator session.
// Stock mutations and counter allocation are the contended multi-writer
// paths: implementations must serialize them per product (row locks in
// postgres, one mutex in memory) so concurrent reservations can never both
// observe the same pre-reservation quantity.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	AddStockEntry(ctx context.Context, productID string, entry domain.StockEntry) (*domain.Product, error)
	RemoveStockEntry(ctx context.Context, productID string, unit string) (*domain.Product, error)
	AddDiscountTier(ctx context.Context, productID string, tier domain.DiscountTier) (*domain.Product, error)
	RemoveDiscountTier(ctx context.Context, productID string, key domain.TierKey) (*domain.Product, error)

	// ReserveStock decrements the unit's quantity after checking
	// availability; ReleaseStock is its inverse. AdjustStock applies a
	// signed delta (positive reserves, negative releases). Each returns the
	// product as persisted after the mutation.
	ReserveStock(ctx context.Context, productID string, unit string, qty int) (*domain.Product, error)
	ReleaseStock(ctx context.Context, productID string, unit string, qty int) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, unit string, delta int) (*domain.Product, error)

	// PeekTransactionNumber formats the next invoice number without
	// consuming it. CreateNota atomically allocates the number, increments
	// the counter and inserts the transaction with all its items; a number
	// collision surfaces as ErrDuplicateNumber with nothing persisted.
	PeekTransactionNumber(ctx context.Context) (string, error)
	CreateNota(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from, to time.Time, limit int) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	GetSalesReport(ctx context.Context, from, to time.Time) (domain.SalesReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
