// Package cart implements the in-memory cart ledger: line items keyed by
// product identity, running quantity and amount aggregates, and wholesale
// reconciliation against a server snapshot.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the ledger consumes. Slug is the line-item
// identity key; when empty, ID is used instead.
type Product struct {
	ID              string
	Slug            string
	Name            string
	Price           decimal.Decimal
	DiscountPercent *decimal.Decimal
}

// Key returns the line-item identity key for the product.
func (p Product) Key() string {
	if p.Slug != "" {
		return p.Slug
	}
	return p.ID
}

// Item is one product-quantity line in a cart. TotalPrice is derived state:
// it always equals the sum of the effective unit prices charged across the
// mutations that produced the line.
type Item struct {
	ProductID       string
	Slug            string
	Name            string
	UnitPrice       decimal.Decimal
	DiscountPercent *decimal.Decimal
	Quantity        int
	TotalPrice      decimal.Decimal
}

// Key returns the line's identity key.
func (i Item) Key() string {
	if i.Slug != "" {
		return i.Slug
	}
	return i.ProductID
}

// Cart is the aggregate: an ordered item list (order matters for display
// only) plus running totals. TotalQuantity and TotalAmount are always exactly
// the sums over Items; mutations update them with the same deltas as the item
// list, never independently.
type Cart struct {
	Items         []Item
	TotalQuantity int
	TotalAmount   decimal.Decimal
}

// Empty returns a genuinely empty cart value. Clear must produce this
// explicit value for every field rather than reassigning the container
// binding, which is a no-op under copy-on-write state holders.
func Empty() Cart {
	return Cart{
		Items:         []Item{},
		TotalQuantity: 0,
		TotalAmount:   decimal.Zero,
	}
}

// InvalidQuantityError indicates an add with a non-positive quantity.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be a positive integer, got %d", e.Quantity)
}

// ItemNotFoundError indicates a removal targeting a line that is not in the
// cart. Callers should treat it as a no-op with a warning, not a failure.
type ItemNotFoundError struct {
	Key string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("cart item %q not found", e.Key)
}
