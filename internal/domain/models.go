package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit names recognised by discount tiers. Stock entries may carry any unit
// name the operator declares, but tiers are restricted to this set.
const (
	UnitBuah   = "buah"
	UnitBox    = "box"
	UnitKarton = "karton"
)

// TierUnits lists the valid tier units in display order.
var TierUnits = []string{UnitBuah, UnitBox, UnitKarton}

// DiscountTier maps a quantity/unit condition to one or two sequential
// percentage cuts. IsExact tiers apply only when the requested quantity equals
// MinQuantity; threshold tiers apply at or above it. No two tiers on a product
// may share the same (MinQuantity, Unit, IsExact) triple.
type DiscountTier struct {
	MinQuantity int     `json:"min_quantity" validate:"required,gte=1"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=100"`
	Discount2   float64 `json:"discount2,omitempty" validate:"gte=0,lte=100"`
	Unit        string  `json:"unit" validate:"required,oneof=buah box karton"`
	IsExact     bool    `json:"is_exact"`
}

// Key identifies a tier within a product's tier set.
func (t DiscountTier) Key() TierKey {
	return TierKey{MinQuantity: t.MinQuantity, Unit: t.Unit, IsExact: t.IsExact}
}

type TierKey struct {
	MinQuantity int    `json:"min_quantity" validate:"required,gte=1"`
	Unit        string `json:"unit" validate:"required,oneof=buah box karton"`
	IsExact     bool   `json:"is_exact"`
}

// UnitConversion declares how many base pieces a named physical unit holds.
// Informational only; it is not enforced against StockEntries.
type UnitConversion struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

// StockEntry is the available count of a product in one physical unit.
// Quantity never goes negative: reservations check availability first.
type StockEntry struct {
	Unit     string `json:"unit" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type Product struct {
	ID            string           `json:"id"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	Description   string           `json:"description,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	BasePrice     decimal.Decimal  `json:"base_price"`
	DiscountTiers []DiscountTier   `json:"discount_tiers"`
	Units         []UnitConversion `json:"units"`
	StockEntries  []StockEntry     `json:"stock_entries"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// StockFor returns the stock entry for the given unit, if declared.
func (p Product) StockFor(unit string) (StockEntry, bool) {
	for _, entry := range p.StockEntries {
		if entry.Unit == unit {
			return entry, true
		}
	}
	return StockEntry{}, false
}

type ProductCreateRequest struct {
	SKU           string           `json:"sku" validate:"required"`
	Name          string           `json:"name" validate:"required"`
	Category      string           `json:"category" validate:"required"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	BasePrice     decimal.Decimal  `json:"base_price"`
	DiscountTiers []DiscountTier   `json:"discount_tiers" validate:"dive"`
	Units         []UnitConversion `json:"units" validate:"dive"`
	StockEntries  []StockEntry     `json:"stock_entries" validate:"dive"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	BasePrice   *decimal.Decimal `json:"base_price,omitempty"`
}

type StockEntryAddRequest struct {
	Unit     string `json:"unit" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// CartLine is one reserved position in a checkout session. At most one line
// exists per (ProductID, Unit); adding the same pair again merges quantities.
// StockSnapshot is the unit's post-reservation quantity, captured so that
// availability shown alongside the line matches what was actually reserved.
type CartLine struct {
	ProductID     string `json:"product_id"`
	Unit          string `json:"unit"`
	Quantity      int    `json:"quantity"`
	StockSnapshot int    `json:"stock_snapshot"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Unit      string `json:"unit" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type CartUpdateRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Unit      string `json:"unit" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type CartLineView struct {
	CartLine
	ProductName      string          `json:"product_name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	BasePrice        decimal.Decimal `json:"base_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	AppliedDiscounts []float64       `json:"applied_discounts"`
}

type CartView struct {
	CartID      string          `json:"cart_id"`
	Lines       []CartLineView  `json:"lines"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusCancelled = "cancelled"
)

// DiscountDetails records the first and second stage percentages applied to a
// transaction item, in application order.
type DiscountDetails struct {
	Discount1 float64 `json:"discount1"`
	Discount2 float64 `json:"discount2"`
}

type TransactionItem struct {
	ID              string           `json:"id"`
	TransactionID   string           `json:"transaction_id"`
	ProductID       string           `json:"product_id"`
	ProductName     string           `json:"product_name"`
	Quantity        int              `json:"quantity"`
	Unit            string           `json:"unit"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount"`
	DiscountPercent float64          `json:"discount_percent"`
	DiscountDetails *DiscountDetails `json:"discount_details,omitempty"`
}

type Transaction struct {
	ID                string            `json:"id"`
	TransactionNumber string            `json:"transaction_number"`
	CustomerName      string            `json:"customer_name"`
	CustomerAddress   string            `json:"customer_address"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Notes             string            `json:"notes"`
	PaymentTermsDays  int               `json:"payment_terms_days,omitempty"`
	CreatedBy         string            `json:"created_by"`
	Status            string            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	Items             []TransactionItem `json:"items,omitempty"`
}

type NotaCreateRequest struct {
	CartID           string `json:"cart_id" validate:"required"`
	CustomerName     string `json:"customer_name" validate:"required"`
	CustomerAddress  string `json:"customer_address"`
	Notes            string `json:"notes"`
	PaymentTermsDays int    `json:"payment_terms_days" validate:"gte=0"`
}

type PriceQuote struct {
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	Unit             string          `json:"unit"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	BasePrice        decimal.Decimal `json:"base_price"`
	AppliedDiscounts []float64       `json:"applied_discounts"`
	Total            decimal.Decimal `json:"total"`
}

// ScheduleRow is one row of the per-tier discount preview table.
type ScheduleRow struct {
	Quantity     int             `json:"quantity"`
	Unit         string          `json:"unit"`
	IsExact      bool            `json:"is_exact"`
	Discount     float64         `json:"discount"`
	Discount2    float64         `json:"discount2,omitempty"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Total        decimal.Decimal `json:"total"`
	Savings      decimal.Decimal `json:"savings"`
}

type SalesReportProduct struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SalesReportDay struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	From               time.Time            `json:"from"`
	To                 time.Time            `json:"to"`
	TotalRevenue       decimal.Decimal      `json:"total_revenue"`
	TotalTransactions  int                  `json:"total_transactions"`
	AverageTransaction decimal.Decimal      `json:"average_transaction"`
	DailyRevenue       []SalesReportDay     `json:"daily_revenue"`
	TopProducts        []SalesReportProduct `json:"top_products"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
