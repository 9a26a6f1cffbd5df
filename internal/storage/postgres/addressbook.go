package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercadino/storefront/internal/checkout"
	"github.com/mercadino/storefront/internal/domain/address"
)

const (
	listAddressesSQL = `SELECT id, street, number, complement, city, state, country, postal_code, is_default
		FROM addresses WHERE user_id = $1 ORDER BY created_at, id`

	insertAddressSQL = `INSERT INTO addresses
		(id, user_id, street, number, complement, city, state, country, postal_code, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	clearDefaultSQL = `UPDATE addresses SET is_default = FALSE WHERE user_id = $1`
	setDefaultSQL   = `UPDATE addresses SET is_default = TRUE WHERE user_id = $1 AND id = $2`
)

// ErrAddressNotFound is returned when a set-default targets an unknown row.
var ErrAddressNotFound = errors.New("address not found")

var _ checkout.AddressBook = (*AddressRepository)(nil)

// AddressRepository persists the user's address book.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository using the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// ListByUser returns the user's saved addresses, oldest first.
func (r *AddressRepository) ListByUser(ctx context.Context, userID string) ([]address.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (address.Address, error) {
		var a address.Address
		err := row.Scan(&a.ID, &a.Street, &a.Number, &a.Complement,
			&a.City, &a.State, &a.Country, &a.PostalCode, &a.IsDefault)
		return a, err
	})
}

// Create persists a validated draft. Postal codes are stored digits-only.
// When the draft asks to be the default, the flag moves in the same
// transaction so at most one row per user ever holds it.
func (r *AddressRepository) Create(ctx context.Context, userID string, d address.Draft) (*address.Address, error) {
	a := address.Address{
		ID:         uuid.New().String(),
		Street:     d.Street,
		Number:     d.Number,
		Complement: d.Complement,
		City:       d.City,
		State:      d.State,
		Country:    d.Country,
		PostalCode: address.DigitsOnly(d.PostalCode),
		IsDefault:  d.IsDefault,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if a.IsDefault {
		if _, err := tx.Exec(ctx, clearDefaultSQL, userID); err != nil {
			return nil, errors.Wrap(err, "clear default")
		}
	}
	if _, err := tx.Exec(ctx, insertAddressSQL,
		a.ID, userID, a.Street, a.Number, a.Complement,
		a.City, a.State, a.Country, a.PostalCode, a.IsDefault); err != nil {
		return nil, errors.Wrap(err, "insert address")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return &a, nil
}

// SetDefault makes the given address the user's only default.
func (r *AddressRepository) SetDefault(ctx context.Context, userID, addressID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, clearDefaultSQL, userID); err != nil {
		return errors.Wrap(err, "clear default")
	}
	tag, err := tx.Exec(ctx, setDefaultSQL, userID, addressID)
	if err != nil {
		return errors.Wrap(err, "set default")
	}
	if tag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}
