// Package session holds authenticated-user identity between requests and the
// small per-user key-value records the checkout flow persists client-side in
// the web app (the selected shipping address). Both live in Redis with TTLs.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mercadino/storefront/internal/domain/address"
)

// ErrNoSession is returned when a token does not resolve to a live session.
// Handlers translate it to a login redirect preserving the destination.
var ErrNoSession = errors.New("no authenticated session")

// ErrNoSelectedAddress is returned when no shipping address has been chosen
// for the in-progress checkout.
var ErrNoSelectedAddress = errors.New("no selected shipping address")

// User is the authenticated identity a session resolves to.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Store manages sessions and checkout KV records in Redis.
type Store struct {
	rdb        *redis.Client
	sessionTTL time.Duration
	recordTTL  time.Duration
}

// NewStore creates a Store. Sessions live for sessionTTL; checkout records
// (selected address) for recordTTL.
func NewStore(rdb *redis.Client, sessionTTL, recordTTL time.Duration) *Store {
	return &Store{rdb: rdb, sessionTTL: sessionTTL, recordTTL: recordTTL}
}

func sessionKey(token string) string {
	return "session:" + token
}

func selectedAddressKey(userID string) string {
	return "checkout:selectedShippingAddress:" + userID
}

// Create issues a new opaque token for the user.
func (s *Store) Create(ctx context.Context, u User) (string, error) {
	token := uuid.New().String()
	payload, err := json.Marshal(u)
	if err != nil {
		return "", errors.Wrap(err, "marshal user")
	}
	if err := s.rdb.Set(ctx, sessionKey(token), payload, s.sessionTTL).Err(); err != nil {
		return "", errors.Wrap(err, "store session")
	}
	return token, nil
}

// Get resolves a token to its user, refreshing the session TTL.
func (s *Store) Get(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	payload, err := s.rdb.GetEx(ctx, sessionKey(token), s.sessionTTL).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, errors.Wrap(err, "load session")
	}
	var u User
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, errors.Wrap(err, "unmarshal user")
	}
	return &u, nil
}

// Delete revokes a session token.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// SetSelectedAddress overwrites the shipping address chosen for the user's
// in-progress checkout. Each checkout pass replaces the previous record.
func (s *Store) SetSelectedAddress(ctx context.Context, userID string, a address.Address) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal address")
	}
	if err := s.rdb.Set(ctx, selectedAddressKey(userID), payload, s.recordTTL).Err(); err != nil {
		return errors.Wrap(err, "store selected address")
	}
	return nil
}

// SelectedAddress returns the shipping address for the in-progress checkout.
func (s *Store) SelectedAddress(ctx context.Context, userID string) (*address.Address, error) {
	payload, err := s.rdb.Get(ctx, selectedAddressKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSelectedAddress
		}
		return nil, errors.Wrap(err, "load selected address")
	}
	var a address.Address
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, errors.Wrap(err, "unmarshal selected address")
	}
	return &a, nil
}

// ClearSelectedAddress removes the checkout's selected address record.
func (s *Store) ClearSelectedAddress(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, selectedAddressKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "clear selected address")
	}
	return nil
}
