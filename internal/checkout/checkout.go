// Package checkout implements the checkout step machine: address selection,
// payment initiation, and order confirmation. A session advances forward
// only; returning to an earlier step is explicit user navigation and never
// rolls back an already-created order.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/payment"
)

// Step is the current position in the checkout flow.
type Step string

const (
	StepAddress   Step = "ADDRESS"
	StepPayment   Step = "PAYMENT"
	StepConfirmed Step = "CONFIRMED"
)

// Entry precondition failures. The caller redirects on these instead of
// starting a session: to login on ErrUnauthenticated (preserving the intended
// destination) and to the cart page on ErrEmptyCart.
var (
	ErrUnauthenticated = errors.New("checkout requires an authenticated session")
	ErrEmptyCart       = errors.New("checkout requires a non-empty cart")
)

var (
	// ErrWrongStep is returned when an operation is invoked outside the step
	// that allows it.
	ErrWrongStep = errors.New("operation not allowed in current checkout step")
	// ErrNoAddress is returned when a submitted saved-address ID is not in
	// the user's address book.
	ErrNoAddress = errors.New("selected address not found")
	// ErrPaymentNotFailed is returned by Retry when the current payment has
	// not resolved to FAILED or EXPIRED.
	ErrPaymentNotFailed = errors.New("payment has not failed, nothing to retry")
	// ErrSessionClosed is returned for operations on a torn-down session.
	ErrSessionClosed = errors.New("checkout session is closed")
)

// AddressSelection names either a saved address or a draft to be validated
// and persisted. Exactly one of the two must be set.
type AddressSelection struct {
	SavedID string
	Draft   *address.Draft
}

// CreatePaymentRequest is the input to the payment provider.
type CreatePaymentRequest struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Method   string
}

// PaymentGateway is the collaborator that initiates payments and reports
// their status. Implemented by gateway/pixpay.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*payment.Payment, error)
	PaymentStatus(ctx context.Context, paymentID string) (payment.Status, error)
}

// AddressBook is the persistence collaborator for saved addresses.
type AddressBook interface {
	ListByUser(ctx context.Context, userID string) ([]address.Address, error)
	Create(ctx context.Context, userID string, d address.Draft) (*address.Address, error)
}

// SelectedAddressStore persists the shipping address chosen for the
// in-progress checkout between the address and payment steps. The record is
// overwritten on every new checkout pass.
type SelectedAddressStore interface {
	SetSelectedAddress(ctx context.Context, userID string, a address.Address) error
	ClearSelectedAddress(ctx context.Context, userID string) error
}

// Config tunes checkout timing and payment parameters.
type Config struct {
	// PollInterval is the payment status poll period.
	PollInterval time.Duration
	// CountdownInterval is the PIX expiry display tick period.
	CountdownInterval time.Duration
	// Currency and Method parameterize payment initiation.
	Currency string
	Method   string
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = time.Second
	}
	if c.Currency == "" {
		c.Currency = "BRL"
	}
	if c.Method == "" {
		c.Method = "PIX"
	}
}
