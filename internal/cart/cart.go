// Package cart holds the line collection for one checkout session. A cart is
// owned by a single operator session and is never shared; only the stock
// ledger behind it is contended. Lines move absent → reserved → absent (full
// release) or reserved → consumed (nota commit, terminal).
package cart

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ramaumm/cvragajayaamerta/internal/domain"
	"github.com/ramaumm/cvragajayaamerta/internal/pricing"
)

type lineKey struct {
	productID string
	unit      string
}

// Cart is an in-memory collection of reserved lines keyed by
// (productID, unit). It does not touch the stock ledger itself; callers
// reserve/release through the repository and then record the outcome here.
// Cart is not synchronized: the owning session serializes access to it.
type Cart struct {
	lines map[lineKey]*domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make(map[lineKey]*domain.CartLine)}
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Add merges qty into the line for (productID, unit), creating it when
// absent. stockSnapshot is the unit's post-reservation quantity.
func (c *Cart) Add(productID, unit string, qty, stockSnapshot int) *domain.CartLine {
	key := lineKey{productID: productID, unit: unit}
	line, ok := c.lines[key]
	if !ok {
		line = &domain.CartLine{ProductID: productID, Unit: unit}
		c.lines[key] = line
	}
	line.Quantity += qty
	line.StockSnapshot = stockSnapshot
	return line
}

// Line returns the line for (productID, unit), if present.
func (c *Cart) Line(productID, unit string) (*domain.CartLine, bool) {
	line, ok := c.lines[lineKey{productID: productID, unit: unit}]
	return line, ok
}

// SetQuantity changes a line's quantity in place and returns the signed delta
// the caller must apply to the ledger (positive reserves more, negative
// releases). newQty below one removes the line; the delta then releases its
// whole prior quantity.
func (c *Cart) SetQuantity(productID, unit string, newQty, stockSnapshot int) (delta int, err error) {
	key := lineKey{productID: productID, unit: unit}
	line, ok := c.lines[key]
	if !ok {
		return 0, fmt.Errorf("no cart line for product %s unit %s", productID, unit)
	}

	if newQty < 1 {
		delete(c.lines, key)
		return -line.Quantity, nil
	}

	delta = newQty - line.Quantity
	line.Quantity = newQty
	line.StockSnapshot = stockSnapshot
	return delta, nil
}

// Remove deletes the line and returns the quantity to release.
func (c *Cart) Remove(productID, unit string) (released int, err error) {
	key := lineKey{productID: productID, unit: unit}
	line, ok := c.lines[key]
	if !ok {
		return 0, fmt.Errorf("no cart line for product %s unit %s", productID, unit)
	}
	delete(c.lines, key)
	return line.Quantity, nil
}

// Lines returns the lines ordered by (productID, unit) for stable iteration.
func (c *Cart) Lines() []domain.CartLine {
	result := make([]domain.CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		result = append(result, *line)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ProductID != result[j].ProductID {
			return result[i].ProductID < result[j].ProductID
		}
		return result[i].Unit < result[j].Unit
	})
	return result
}

// Total sums discounted unit price times quantity across all lines, resolving
// each line through the one shared pricing implementation.
func (c *Cart) Total(products map[string]domain.Product) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines() {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		quote := pricing.Resolve(product.DiscountTiers, product.BasePrice, product.Price, line.Quantity, line.Unit)
		total = total.Add(quote.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// ToTransactionItems resolves every line into a finalized item with its
// discount breakdown. The product name embeds quantity and unit the way the
// printed nota shows it.
func (c *Cart) ToTransactionItems(products map[string]domain.Product) ([]domain.TransactionItem, error) {
	lines := c.Lines()
	items := make([]domain.TransactionItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s missing from snapshot", line.ProductID)
		}

		quote := pricing.Resolve(product.DiscountTiers, product.BasePrice, product.Price, line.Quantity, line.Unit)
		qty := decimal.NewFromInt(int64(line.Quantity))
		discountAmount := quote.BasePrice.Sub(quote.UnitPrice)

		item := domain.TransactionItem{
			ProductID:       product.ID,
			ProductName:     fmt.Sprintf("%s (%d %s)", product.Name, line.Quantity, line.Unit),
			Quantity:        line.Quantity,
			Unit:            line.Unit,
			UnitPrice:       quote.UnitPrice,
			Subtotal:        quote.UnitPrice.Mul(qty),
			DiscountAmount:  discountAmount,
			DiscountPercent: pricing.DiscountPercent(quote.BasePrice, quote.UnitPrice),
		}
		if len(quote.AppliedDiscounts) > 0 {
			details := &domain.DiscountDetails{Discount1: quote.AppliedDiscounts[0]}
			if len(quote.AppliedDiscounts) > 1 {
				details.Discount2 = quote.AppliedDiscounts[1]
			}
			item.DiscountDetails = details
		}
		items = append(items, item)
	}
	return items, nil
}
