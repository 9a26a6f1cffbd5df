package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/cart"
	"github.com/mercadino/storefront/internal/domain/order"
	"github.com/mercadino/storefront/internal/domain/payment"
	"github.com/mercadino/storefront/internal/session"
)

// Manager creates and drives checkout sessions. It owns the collaborator
// handles; sessions hold only their own state.
type Manager struct {
	orders    order.Repository
	addresses AddressBook
	selected  SelectedAddressStore
	payments  PaymentGateway
	cfg       Config
	lg        *zap.Logger
	tel       telemetry
}

// NewManager constructs a Manager. Zero-value config fields get the
// production defaults (5s poll, 1s countdown, BRL/PIX).
func NewManager(
	orders order.Repository,
	addresses AddressBook,
	selected SelectedAddressStore,
	payments PaymentGateway,
	cfg Config,
	lg *zap.Logger,
) *Manager {
	cfg.setDefaults()
	return &Manager{
		orders:    orders,
		addresses: addresses,
		selected:  selected,
		payments:  payments,
		cfg:       cfg,
		lg:        lg,
		tel:       newTelemetry(),
	}
}

// Session is one checkout pass for one user. Handlers and the payment poller
// both touch its state, so every access goes through mu.
type Session struct {
	mgr *Manager

	mu        sync.Mutex
	id        string
	user      session.User
	cart      cart.Cart
	step      Step
	order     *order.Order
	payment   *payment.Payment
	remaining time.Duration
	closed    bool

	// pollCtx scopes the poller goroutine; cancel is idempotent via Close.
	pollCtx    context.Context
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// View is an immutable snapshot of session state for the presentation layer.
type View struct {
	SessionID     string
	Step          Step
	Cart          cart.Cart
	Order         *order.Order
	Payment       *payment.Payment
	PixRemaining  time.Duration
	PaymentFailed bool
}

// Begin starts a checkout session. Preconditions: an authenticated user and
// a non-empty cart; the cart snapshot is frozen into the session.
func (m *Manager) Begin(ctx context.Context, user session.User, snapshot cart.Cart) (*Session, error) {
	if user.ID == "" {
		return nil, ErrUnauthenticated
	}
	if len(snapshot.Items) == 0 {
		return nil, ErrEmptyCart
	}

	s := &Session{
		mgr:  m,
		id:   uuid.New().String(),
		user: user,
		cart: snapshot,
		step: StepAddress,
	}
	m.tel.sessionsStarted.Add(ctx, 1)
	zctx.From(ctx).Info("checkout session started",
		zap.String("session_id", s.id),
		zap.String("user_id", user.ID),
		zap.Int("cart_items", len(snapshot.Items)))
	return s, nil
}

// SubmitAddress resolves the address selection, persists it as the
// checkout's selected shipping address, creates the order from the cart
// snapshot, initiates the payment, and advances to the payment step. Any
// collaborator rejection leaves the session on the address step; the user
// re-triggers, nothing retries automatically.
func (s *Session) SubmitAddress(ctx context.Context, sel AddressSelection) error {
	ctx, span := s.mgr.tel.tracer.Start(ctx, "checkout.SubmitAddress")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.step != StepAddress {
		return ErrWrongStep
	}

	addr, err := s.resolveAddress(ctx, sel)
	if err != nil {
		return err
	}

	// Overwrite the selected address for this pass. Kept between the address
	// and payment pages; cleared on teardown.
	if err := s.mgr.selected.SetSelectedAddress(ctx, s.user.ID, *addr); err != nil {
		return errors.Wrap(err, "store selected address")
	}

	items := orderItems(s.cart)
	total, err := order.Total(items)
	if err != nil {
		return errors.Wrap(err, "compute order total")
	}

	o := &order.Order{
		ID:              uuid.New().String(),
		UserID:          s.user.ID,
		ShippingAddress: *addr,
		Items:           items,
		Total:           total,
		Status:          order.StatusPending,
	}
	if err := s.mgr.orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	s.order = o
	s.mgr.tel.ordersCreated.Add(ctx, 1)

	if err := s.initiatePaymentLocked(ctx); err != nil {
		// The order exists but payment initiation failed. The step does not
		// advance; a created order is never rolled back automatically.
		return err
	}

	s.step = StepPayment
	return nil
}

// resolveAddress turns a selection into a concrete address: saved addresses
// are looked up in the user's book, drafts are validated and persisted.
func (s *Session) resolveAddress(ctx context.Context, sel AddressSelection) (*address.Address, error) {
	if sel.SavedID != "" {
		saved, err := s.mgr.addresses.ListByUser(ctx, s.user.ID)
		if err != nil {
			return nil, errors.Wrap(err, "list addresses")
		}
		for i := range saved {
			if saved[i].ID == sel.SavedID {
				return &saved[i], nil
			}
		}
		return nil, ErrNoAddress
	}

	if sel.Draft == nil {
		return nil, ErrNoAddress
	}
	if errs := address.ValidateDraft(*sel.Draft); errs != nil {
		return nil, errs
	}
	created, err := s.mgr.addresses.Create(ctx, s.user.ID, *sel.Draft)
	if err != nil {
		return nil, errors.Wrap(err, "persist address")
	}
	return created, nil
}

// initiatePaymentLocked creates the payment and starts the poller.
// Callers hold s.mu.
func (s *Session) initiatePaymentLocked(ctx context.Context) error {
	p, err := s.mgr.payments.CreatePayment(ctx, CreatePaymentRequest{
		OrderID:  s.order.ID,
		Amount:   s.order.Total,
		Currency: s.mgr.cfg.Currency,
		Method:   s.mgr.cfg.Method,
	})
	if err != nil {
		return errors.Wrap(err, "create payment")
	}
	s.payment = p
	s.remaining = p.Remaining(time.Now())

	if p.Status == payment.StatusWaiting {
		s.startPollerLocked()
	}
	return nil
}

// startPollerLocked launches the poll goroutine for the current payment.
// Callers hold s.mu. The poller context is detached from the request: the
// session, not the request, owns the background work.
func (s *Session) startPollerLocked() {
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), s.mgr.lg))
	s.pollCtx, s.pollCancel = ctx, cancel
	s.pollDone = make(chan struct{})

	paymentID := s.payment.ID
	poller := &Poller{
		Fetch: func(ctx context.Context) (payment.Status, error) {
			return s.mgr.payments.PaymentStatus(ctx, paymentID)
		},
		Interval:  s.mgr.cfg.PollInterval,
		Tick:      s.mgr.cfg.CountdownInterval,
		ExpiresAt: s.payment.PixExpiresAt,
		OnStatus: func(status payment.Status) {
			s.observeStatus(paymentID, status)
		},
		OnCountdown: s.observeCountdown,
	}

	go func() {
		defer close(s.pollDone)
		poller.Run(ctx)
	}()
}

// observeStatus applies a polled status to the session. COMPLETED marks the
// order paid and confirms the checkout; FAILED and EXPIRED stay on the
// payment step as a failure display that the user resolves explicitly.
func (s *Session) observeStatus(paymentID string, status payment.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A poll result for a superseded payment (after Retry) is stale; drop it.
	if s.closed || s.payment == nil || s.payment.ID != paymentID {
		return
	}
	s.payment.Status = status

	if status != payment.StatusCompleted {
		if status == payment.StatusFailed || status == payment.StatusExpired {
			s.mgr.tel.paymentsFailed.Add(context.Background(), 1)
		}
		return
	}
	s.mgr.tel.paymentsCompleted.Add(context.Background(), 1)
	s.step = StepConfirmed

	// Detached context: the confirmation write must survive session
	// navigation since the provider already took the money.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.mgr.orders.UpdateStatus(ctx, s.order.ID, order.StatusPaid); err != nil {
		s.mgr.lg.Error("mark order paid",
			zap.String("order_id", s.order.ID), zap.Error(err))
	}
}

func (s *Session) observeCountdown(left time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.remaining = left
	}
}

// Retry re-initiates payment for the session's order after a FAILED or
// EXPIRED payment. It never creates a second order.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.step != StepPayment || s.payment == nil {
		return ErrWrongStep
	}
	if s.payment.Status != payment.StatusFailed && s.payment.Status != payment.StatusExpired {
		return ErrPaymentNotFailed
	}

	s.stopPollerLocked()
	s.mgr.tel.paymentRetries.Add(ctx, 1)
	return s.initiatePaymentLocked(ctx)
}

// View returns a snapshot of the session for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:    s.id,
		Step:         s.step,
		Cart:         s.cart,
		Order:        s.order,
		PixRemaining: s.remaining,
	}
	if s.payment != nil {
		p := *s.payment
		v.Payment = &p
		v.PaymentFailed = p.Status == payment.StatusFailed || p.Status == payment.StatusExpired
	}
	return v
}

// User returns the session owner.
func (s *Session) User() session.User {
	return s.user
}

// Close tears the session down: the poller stops, late poll responses are
// dropped, and the selected-address record is cleared. Safe to call more
// than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPollerLocked()
	done := s.pollDone
	userID := s.user.ID
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if err := s.mgr.selected.ClearSelectedAddress(ctx, userID); err != nil {
		s.mgr.lg.Warn("clear selected address", zap.String("user_id", userID), zap.Error(err))
	}
}

// stopPollerLocked cancels the poll goroutine if one is running.
// Callers hold s.mu.
func (s *Session) stopPollerLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

// orderItems freezes the cart lines into order entries.
func orderItems(c cart.Cart) []order.Item {
	items := make([]order.Item, len(c.Items))
	for i, line := range c.Items {
		items[i] = order.Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
			Discount:  line.DiscountPercent,
		}
	}
	return items
}
