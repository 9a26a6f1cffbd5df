// Package pricing implements money math for the storefront: effective unit
// prices under percentage discounts and line/subtotal aggregation. All
// functions are pure and operate on shopspring decimals; amounts are rounded
// to 2 decimal places (currency minor units) at the boundary.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount is returned when a discount percentage is negative
	// or greater than 100. Out-of-range discounts are a caller validation
	// error, never silently clamped.
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 100")
	// ErrNegativePrice is returned when a base price is negative.
	ErrNegativePrice = errors.New("price must not be negative")
)

var hundred = decimal.NewFromInt(100)

// EffectiveUnitPrice returns the unit price after applying an optional
// percentage discount. A nil or zero discount leaves the price unchanged;
// otherwise the result is price - price*(pct/100), rounded to 2 places.
func EffectiveUnitPrice(price decimal.Decimal, discountPercent *decimal.Decimal) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, ErrNegativePrice
	}
	if discountPercent == nil || discountPercent.IsZero() {
		return price, nil
	}
	pct := *discountPercent
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidDiscount
	}
	discounted := price.Sub(price.Mul(pct).Div(hundred))
	return discounted.Round(2), nil
}

// LineTotal returns quantity * effective unit price for one cart line.
func LineTotal(price decimal.Decimal, discountPercent *decimal.Decimal, quantity int) (decimal.Decimal, error) {
	unit, err := EffectiveUnitPrice(price, discountPercent)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// FloorAtZero clamps negative amounts to zero. Totals never go negative even
// when discounts exceed the subtotal.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
