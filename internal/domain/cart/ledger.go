package cart

import (
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/pricing"
)

// Ledger owns one cart aggregate for one session and serializes mutations on
// it. It has no persistence side effects; the remote cart API mirrors these
// operations around it and feeds Reconcile with authoritative snapshots.
type Ledger struct {
	cart Cart
}

// NewLedger returns a ledger holding an empty cart.
func NewLedger() *Ledger {
	return &Ledger{cart: Empty()}
}

// Cart returns a copy of the current aggregate.
func (l *Ledger) Cart() Cart {
	out := l.cart
	out.Items = make([]Item, len(l.cart.Items))
	copy(out.Items, l.cart.Items)
	return out
}

// AddItem adds quantity units of the product, merging into an existing line
// when one matches the product's identity key. Repricing always uses the
// product's current price and discount, not the values stored on the line, so
// a price change between adds is reflected in the delta charged.
func (l *Ledger) AddItem(p Product, quantity int) error {
	if quantity <= 0 {
		return &InvalidQuantityError{Quantity: quantity}
	}

	delta, err := pricing.LineTotal(p.Price, p.DiscountPercent, quantity)
	if err != nil {
		return err
	}

	l.cart.TotalQuantity += quantity
	l.cart.TotalAmount = l.cart.TotalAmount.Add(delta)

	for i := range l.cart.Items {
		if l.cart.Items[i].Key() != p.Key() {
			continue
		}
		item := &l.cart.Items[i]
		item.Quantity += quantity
		item.TotalPrice = item.TotalPrice.Add(delta)
		item.UnitPrice = p.Price
		item.DiscountPercent = p.DiscountPercent
		return nil
	}

	l.cart.Items = append(l.cart.Items, Item{
		ProductID:       p.ID,
		Slug:            p.Slug,
		Name:            p.Name,
		UnitPrice:       p.Price,
		DiscountPercent: p.DiscountPercent,
		Quantity:        quantity,
		TotalPrice:      delta,
	})
	return nil
}

// RemoveItem decrements the matching line by one unit, dropping the line when
// its quantity reaches zero. Aggregates shrink by one unit's effective price.
func (l *Ledger) RemoveItem(key string) error {
	idx := -1
	for i := range l.cart.Items {
		if l.cart.Items[i].Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &ItemNotFoundError{Key: key}
	}

	item := &l.cart.Items[idx]
	unit, err := pricing.EffectiveUnitPrice(item.UnitPrice, item.DiscountPercent)
	if err != nil {
		return err
	}

	l.cart.TotalQuantity--
	l.cart.TotalAmount = l.cart.TotalAmount.Sub(unit)

	if item.Quantity == 1 {
		l.cart.Items = append(l.cart.Items[:idx], l.cart.Items[idx+1:]...)
		return nil
	}
	item.Quantity--
	item.TotalPrice = item.TotalPrice.Sub(unit)
	return nil
}

// Clear empties the cart. Every field is set to its explicit empty value.
func (l *Ledger) Clear() {
	l.cart = Empty()
}

// Reconcile replaces the aggregate wholesale with a server snapshot. The
// server is authoritative and no merging happens: a snapshot that arrives
// after a later local mutation clobbers it (last-write-wins). That gap is
// accepted, not a defect to patch here.
func (l *Ledger) Reconcile(snapshot Cart) {
	if snapshot.Items == nil {
		snapshot.Items = []Item{}
	}
	l.cart = snapshot
}

// Subtotal recomputes the amount total from the current lines. It exists for
// invariant checks; the ledger maintains TotalAmount incrementally.
func (l *Ledger) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range l.cart.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}
