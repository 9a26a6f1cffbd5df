package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getUserByEmailSQL = `SELECT id, email, name, password_hash FROM users WHERE email = $1`

	insertUserSQL = `INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash`
)

// ErrUserNotFound is returned when no account matches the given email.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is a stored account. PasswordHash is an HMAC-SHA256 hex digest;
// hashing and comparison live at the auth boundary, not here.
type UserRecord struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// UserRepository provides account lookup and seeding.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository using the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByEmail returns the account for the given email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	var u UserRecord
	err := r.pool.QueryRow(ctx, getUserByEmailSQL, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

// Upsert creates or updates an account, keyed by email. Used by seeding.
func (r *UserRepository) Upsert(ctx context.Context, email, name, passwordHash string) error {
	if _, err := r.pool.Exec(ctx, insertUserSQL, uuid.New().String(), email, name, passwordHash); err != nil {
		return errors.Wrapf(err, "upsert user %q", email)
	}
	return nil
}
