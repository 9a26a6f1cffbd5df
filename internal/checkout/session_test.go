package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/cart"
	"github.com/mercadino/storefront/internal/domain/order"
	"github.com/mercadino/storefront/internal/domain/payment"
	"github.com/mercadino/storefront/internal/session"
)

type mockOrderRepo struct {
	mu        sync.Mutex
	created   []*order.Order
	statuses  map[string]order.Status
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{statuses: map[string]order.Status{}}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockOrderRepo) ListByUser(context.Context, string) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, st order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = st
	return nil
}

func (m *mockOrderRepo) statusOf(id string) order.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

type mockAddressBook struct {
	saved     []address.Address
	createErr error
}

func (m *mockAddressBook) ListByUser(context.Context, string) ([]address.Address, error) {
	return m.saved, nil
}

func (m *mockAddressBook) Create(_ context.Context, _ string, d address.Draft) (*address.Address, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &address.Address{
		ID:         "addr-new",
		Street:     d.Street,
		Number:     d.Number,
		Complement: d.Complement,
		City:       d.City,
		State:      d.State,
		Country:    d.Country,
		PostalCode: d.PostalCode,
		IsDefault:  d.IsDefault,
	}, nil
}

type mockSelectedStore struct {
	mu      sync.Mutex
	current *address.Address
	cleared bool
}

func (m *mockSelectedStore) SetSelectedAddress(_ context.Context, _ string, a address.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &a
	m.cleared = false
	return nil
}

func (m *mockSelectedStore) ClearSelectedAddress(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.cleared = true
	return nil
}

// mockGateway serves a scripted sequence of poll statuses.
type mockGateway struct {
	mu        sync.Mutex
	statuses  []payment.Status
	polls     int
	createErr error
	created   int
	expiresAt *time.Time
}

func (m *mockGateway) CreatePayment(_ context.Context, req CreatePaymentRequest) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	return &payment.Payment{
		ID:           "pay-" + req.OrderID,
		OrderID:      req.OrderID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Method:       req.Method,
		Status:       payment.StatusWaiting,
		PixCode:      "000201pixcode",
		PixQrCode:    "data:image/png;base64,qr",
		PixExpiresAt: m.expiresAt,
	}, nil
}

func (m *mockGateway) PaymentStatus(context.Context, string) (payment.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.polls <= len(m.statuses) {
		return m.statuses[m.polls-1], nil
	}
	return m.statuses[len(m.statuses)-1], nil
}

func (m *mockGateway) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func testManager(t *testing.T, orders *mockOrderRepo, book *mockAddressBook, selected *mockSelectedStore, gw *mockGateway) *Manager {
	t.Helper()
	return NewManager(orders, book, selected, gw, Config{
		PollInterval:      10 * time.Millisecond,
		CountdownInterval: 5 * time.Millisecond,
	}, zap.NewNop())
}

func testCart(t *testing.T) cart.Cart {
	t.Helper()
	l := cart.NewLedger()
	require.NoError(t, l.AddItem(cart.Product{
		ID: "p1", Slug: "linen-shirt", Name: "Linen Shirt",
		Price: decimal.RequireFromString("100"),
	}, 2))
	return l.Cart()
}

func validDraft() *address.Draft {
	return &address.Draft{
		Street:     "Avenida Paulista",
		Number:     "1578",
		Complement: "Apto 42",
		City:       "São Paulo",
		State:      "SP",
		Country:    "Brasil",
		PostalCode: "01310-100",
	}
}

var alice = session.User{ID: "u1", Email: "alice@example.com", Name: "Alice"}

func TestBegin_Gating(t *testing.T) {
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, &mockSelectedStore{}, &mockGateway{})

	_, err := m.Begin(context.Background(), session.User{}, testCart(t))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = m.Begin(context.Background(), alice, cart.Empty())
	assert.ErrorIs(t, err, ErrEmptyCart)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	assert.Equal(t, StepAddress, s.View().Step)
}

func TestSubmitAddress_DraftValidationError(t *testing.T) {
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, &mockSelectedStore{}, &mockGateway{})
	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)

	draft := validDraft()
	draft.PostalCode = "1234"
	err = s.SubmitAddress(context.Background(), AddressSelection{Draft: draft})

	var verrs address.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "postalCode")
	assert.Equal(t, StepAddress, s.View().Step, "validation failure must not advance the step")
}

func TestSubmitAddress_UnknownSavedID(t *testing.T) {
	book := &mockAddressBook{saved: []address.Address{{ID: "addr-1"}}}
	m := testManager(t, newMockOrderRepo(), book, &mockSelectedStore{}, &mockGateway{})
	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)

	err = s.SubmitAddress(context.Background(), AddressSelection{SavedID: "addr-9"})
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Equal(t, StepAddress, s.View().Step)
}

func TestSubmitAddress_AdvancesAndCreatesOrder(t *testing.T) {
	orders := newMockOrderRepo()
	selected := &mockSelectedStore{}
	gw := &mockGateway{statuses: []payment.Status{payment.StatusWaiting}}
	m := testManager(t, orders, &mockAddressBook{}, selected, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))

	v := s.View()
	assert.Equal(t, StepPayment, v.Step)
	require.NotNil(t, v.Order)
	assert.True(t, v.Order.Total.Equal(decimal.RequireFromString("200")))
	assert.Equal(t, order.StatusPending, v.Order.Status)
	require.NotNil(t, v.Payment)
	assert.Equal(t, payment.StatusWaiting, v.Payment.Status)

	require.Len(t, orders.created, 1)
	assert.Equal(t, "Avenida Paulista", orders.created[0].ShippingAddress.Street)

	selected.mu.Lock()
	require.NotNil(t, selected.current)
	assert.Equal(t, "addr-new", selected.current.ID)
	selected.mu.Unlock()
}

func TestSubmitAddress_PaymentInitiationFailureKeepsStep(t *testing.T) {
	orders := newMockOrderRepo()
	gw := &mockGateway{createErr: errors.New("provider down")}
	m := testManager(t, orders, &mockAddressBook{}, &mockSelectedStore{}, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)

	err = s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()})
	require.Error(t, err)
	assert.Equal(t, StepAddress, s.View().Step)
	// The created order is not rolled back; that asymmetry is intentional.
	assert.Len(t, orders.created, 1)
}

func TestPoller_TerminatesOnCompletedAndConfirms(t *testing.T) {
	orders := newMockOrderRepo()
	gw := &mockGateway{statuses: []payment.Status{
		payment.StatusWaiting,
		payment.StatusWaiting,
		payment.StatusCompleted,
	}}
	m := testManager(t, orders, &mockAddressBook{}, &mockSelectedStore{}, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))

	require.Eventually(t, func() bool {
		return s.View().Step == StepConfirmed
	}, 2*time.Second, 5*time.Millisecond)

	// Polling stops right after the terminal status.
	settled := gw.pollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, gw.pollCount(), "poller must stop after COMPLETED")

	v := s.View()
	assert.Equal(t, payment.StatusCompleted, v.Payment.Status)
	assert.Equal(t, order.StatusPaid, orders.statusOf(v.Order.ID))
}

func TestPoller_FailureIsDisplayedNotAdvanced(t *testing.T) {
	gw := &mockGateway{statuses: []payment.Status{payment.StatusFailed}}
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, &mockSelectedStore{}, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))

	require.Eventually(t, func() bool {
		return s.View().PaymentFailed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, StepPayment, s.View().Step, "failure must not auto-advance")
}

func TestRetry(t *testing.T) {
	gw := &mockGateway{statuses: []payment.Status{payment.StatusExpired}}
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, &mockSelectedStore{}, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))

	// Retry before failure is rejected.
	err = s.Retry(context.Background())
	if err == nil {
		// The first poll may already have expired the payment; that is fine.
	} else {
		assert.ErrorIs(t, err, ErrPaymentNotFailed)
	}

	require.Eventually(t, func() bool {
		return s.View().PaymentFailed
	}, 2*time.Second, 5*time.Millisecond)

	gw.mu.Lock()
	gw.statuses = []payment.Status{payment.StatusWaiting}
	gw.mu.Unlock()

	require.NoError(t, s.Retry(context.Background()))

	v := s.View()
	assert.Equal(t, payment.StatusWaiting, v.Payment.Status)
	assert.False(t, v.PaymentFailed)

	gw.mu.Lock()
	created := gw.created
	gw.mu.Unlock()
	assert.Equal(t, 2, created, "retry initiates a new payment for the same order")
}

func TestClose_StopsPollerAndClearsSelection(t *testing.T) {
	selected := &mockSelectedStore{}
	gw := &mockGateway{statuses: []payment.Status{payment.StatusWaiting}}
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, selected, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))

	require.Eventually(t, func() bool { return gw.pollCount() > 0 }, 2*time.Second, 5*time.Millisecond)

	s.Close(context.Background())

	settled := gw.pollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, gw.pollCount(), "no polls after teardown")

	selected.mu.Lock()
	assert.True(t, selected.cleared)
	selected.mu.Unlock()

	assert.ErrorIs(t, s.Retry(context.Background()), ErrSessionClosed)

	// Close is idempotent.
	s.Close(context.Background())
}

func TestSubmitAddress_WrongStep(t *testing.T) {
	gw := &mockGateway{statuses: []payment.Status{payment.StatusWaiting}}
	m := testManager(t, newMockOrderRepo(), &mockAddressBook{}, &mockSelectedStore{}, gw)

	s, err := m.Begin(context.Background(), alice, testCart(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}))
	assert.ErrorIs(t,
		s.SubmitAddress(context.Background(), AddressSelection{Draft: validDraft()}),
		ErrWrongStep)
}
