// Package order defines the order aggregate created at checkout and its
// status lifecycle.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/pricing"
)

// Item is one (product, quantity, price, discount) entry captured at order
// creation. Price and Discount are frozen copies, not live references into
// the catalog.
type Item struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
}

// Order is one checkout pass: an address snapshot plus the cart's items at
// order-creation time.
type Order struct {
	ID              string
	UserID          string
	ShippingAddress address.Address
	Items           []Item
	Total           decimal.Decimal
	Status          Status
	CreatedAt       time.Time
}

// Total computes the order total from its items: sum of quantity times
// effective unit price, floored at zero and rounded to 2 places.
func Total(items []Item) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range items {
		line, err := pricing.LineTotal(item.Price, item.Discount, item.Quantity)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(line)
	}
	return pricing.FloorAtZero(sum).Round(2), nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
