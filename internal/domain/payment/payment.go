// Package payment defines the payment entity mirrored from the payment
// provider during a checkout session. The provider owns the source of truth;
// the checkout poller refreshes this in-memory mirror until the status is
// terminal.
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the provider-side state of a payment.
type Status string

const (
	StatusWaiting   Status = "WAITING_PAYMENT"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Valid reports whether s is a known payment status.
func (s Status) Valid() bool {
	return s == StatusWaiting || s.Terminal()
}

// Payment belongs to exactly one order. The Pix fields are present for
// PIX-method payments while the payment is waiting.
type Payment struct {
	ID           string
	OrderID      string
	Amount       decimal.Decimal
	Currency     string
	Method       string
	Status       Status
	PixCode      string
	PixQrCode    string
	PixExpiresAt *time.Time
}

// Remaining returns the display countdown until PixExpiresAt, clamped at
// zero. It is advisory only: reaching zero does not transition the payment,
// only a poll observing EXPIRED does.
func (p *Payment) Remaining(now time.Time) time.Duration {
	if p.PixExpiresAt == nil {
		return 0
	}
	d := p.PixExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
