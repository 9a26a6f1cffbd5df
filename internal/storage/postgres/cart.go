package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT items, total_quantity, total_amount FROM carts WHERE user_id = $1`

	putCartSQL = `INSERT INTO carts (user_id, items, total_quantity, total_amount, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			items = EXCLUDED.items,
			total_quantity = EXCLUDED.total_quantity,
			total_amount = EXCLUDED.total_amount,
			updated_at = now()`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`
)

// cartItemRow is the JSONB shape of one cart line.
type cartItemRow struct {
	ProductID       string           `json:"productId"`
	Slug            string           `json:"slug"`
	Name            string           `json:"name"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
	Quantity        int              `json:"quantity"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
}

// CartRepository persists per-user cart snapshots. The snapshot is the whole
// aggregate; a put replaces the row atomically, which keeps the totals and
// the item list consistent with each other. There is no concurrency token:
// two writers race last-write-wins, matching the ledger's reconcile policy.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository using the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's cart snapshot, or an empty cart when none exists.
func (r *CartRepository) Get(ctx context.Context, userID string) (cart.Cart, error) {
	var (
		itemsJSON []byte
		qty       int
		amount    decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(&itemsJSON, &qty, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Empty(), nil
		}
		return cart.Cart{}, errors.Wrap(err, "get cart")
	}

	var rows []cartItemRow
	if err := json.Unmarshal(itemsJSON, &rows); err != nil {
		return cart.Cart{}, errors.Wrap(err, "unmarshal cart items")
	}

	items := make([]cart.Item, len(rows))
	for i, row := range rows {
		items[i] = cart.Item{
			ProductID:       row.ProductID,
			Slug:            row.Slug,
			Name:            row.Name,
			UnitPrice:       row.UnitPrice,
			DiscountPercent: row.DiscountPercent,
			Quantity:        row.Quantity,
			TotalPrice:      row.TotalPrice,
		}
	}
	return cart.Cart{Items: items, TotalQuantity: qty, TotalAmount: amount}, nil
}

// Put replaces the user's cart snapshot.
func (r *CartRepository) Put(ctx context.Context, userID string, c cart.Cart) error {
	rows := make([]cartItemRow, len(c.Items))
	for i, item := range c.Items {
		rows[i] = cartItemRow{
			ProductID:       item.ProductID,
			Slug:            item.Slug,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Quantity:        item.Quantity,
			TotalPrice:      item.TotalPrice,
		}
	}
	itemsJSON, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}

	if _, err := r.pool.Exec(ctx, putCartSQL, userID, itemsJSON, c.TotalQuantity, c.TotalAmount); err != nil {
		return errors.Wrap(err, "put cart")
	}
	return nil
}

// Delete removes the user's cart row. Clearing a cart persists remotely.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, userID); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
