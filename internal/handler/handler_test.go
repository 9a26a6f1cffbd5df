package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/auth"
	"github.com/mercadino/storefront/internal/checkout"
	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/cart"
	"github.com/mercadino/storefront/internal/domain/catalog"
	"github.com/mercadino/storefront/internal/domain/order"
	"github.com/mercadino/storefront/internal/domain/payment"
	"github.com/mercadino/storefront/internal/gateway/postal"
	"github.com/mercadino/storefront/internal/session"
	"github.com/mercadino/storefront/internal/storage/postgres"
)

type fakeCatalog struct {
	products []catalog.Product
	banners  []catalog.Banner
}

func (f *fakeCatalog) List(context.Context) ([]catalog.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	for i := range f.products {
		if f.products[i].ID == id {
			return &f.products[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetBySlug(_ context.Context, slug string) (*catalog.Product, error) {
	for i := range f.products {
		if f.products[i].Slug == slug {
			return &f.products[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, err := f.GetByID(context.Background(), id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Upsert(_ context.Context, p catalog.Product) error {
	f.products = append(f.products, p)
	return nil
}

func (f *fakeCatalog) ListBanners(context.Context) ([]catalog.Banner, error) {
	return f.banners, nil
}

func (f *fakeCatalog) UpsertBanner(_ context.Context, b catalog.Banner) error {
	f.banners = append(f.banners, b)
	return nil
}

type fakeCartStore struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: map[string]cart.Cart{}}
}

func (f *fakeCartStore) Get(_ context.Context, userID string) (cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return cart.Empty(), nil
	}
	return c, nil
}

func (f *fakeCartStore) Put(_ context.Context, userID string, c cart.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = c
	return nil
}

func (f *fakeCartStore) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, userID)
	return nil
}

type fakeAddressStore struct {
	mu     sync.Mutex
	byUser map[string][]address.Address
}

func newFakeAddressStore() *fakeAddressStore {
	return &fakeAddressStore{byUser: map[string][]address.Address{}}
}

func (f *fakeAddressStore) ListByUser(_ context.Context, userID string) ([]address.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]address.Address(nil), f.byUser[userID]...), nil
}

func (f *fakeAddressStore) Create(_ context.Context, userID string, d address.Draft) (*address.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	if a.IsDefault {
		f.byUser[userID] = address.SelectDefault(f.byUser[userID], "")
	}
	f.byUser[userID] = append(f.byUser[userID], a)
	return &a, nil
}

func (f *fakeAddressStore) SetDefault(_ context.Context, userID, addressID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byUser[userID] {
		if a.ID == addressID {
			f.byUser[userID] = address.SelectDefault(f.byUser[userID], addressID)
			return nil
		}
	}
	return postgres.ErrAddressNotFound
}

type fakeUserStore struct {
	users map[string]*postgres.UserRecord
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*postgres.UserRecord, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, postgres.ErrUserNotFound
	}
	return u, nil
}

type fakeSessionStore struct {
	mu     sync.Mutex
	tokens map[string]session.User
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{tokens: map[string]session.User{}}
}

func (f *fakeSessionStore) Create(_ context.Context, u session.User) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.New().String()
	f.tokens[token] = u
	return token, nil
}

func (f *fakeSessionStore) Get(_ context.Context, token string) (*session.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.tokens[token]
	if !ok {
		return nil, session.ErrNoSession
	}
	return &u, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

type fakeSelectedStore struct {
	mu       sync.Mutex
	selected map[string]address.Address
}

func newFakeSelectedStore() *fakeSelectedStore {
	return &fakeSelectedStore{selected: map[string]address.Address{}}
}

func (f *fakeSelectedStore) SetSelectedAddress(_ context.Context, userID string, a address.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected[userID] = a
	return nil
}

func (f *fakeSelectedStore) ClearSelectedAddress(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.selected, userID)
	return nil
}

type fakePostal struct {
	down bool
}

func (f fakePostal) Lookup(_ context.Context, code string) (*postal.Result, error) {
	if f.down {
		return nil, &postal.StatusError{Code: http.StatusServiceUnavailable}
	}
	if address.DigitsOnly(code) != "13480000" {
		return nil, postal.ErrNotFound
	}
	return &postal.Result{Street: "Rua Central", City: "Limeira", State: "SP"}, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []*order.Order
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.CreatedAt = time.Now()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, postgres.ErrOrderNotFound
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, st order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID == id {
			o.Status = st
			return nil
		}
	}
	return postgres.ErrOrderNotFound
}

type fakeGateway struct {
	mu      sync.Mutex
	created int
}

func (f *fakeGateway) CreatePayment(_ context.Context, req checkout.CreatePaymentRequest) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &payment.Payment{
		ID:       "pay-" + strconv.Itoa(f.created),
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   req.Method,
		Status:   payment.StatusWaiting,
		PixCode:  "000201pixcode",
	}, nil
}

func (f *fakeGateway) PaymentStatus(context.Context, string) (payment.Status, error) {
	return payment.StatusWaiting, nil
}

type testEnv struct {
	handler *Handler
	server  *httptest.Server
	token   string
	userID  string
	carts   *fakeCartStore
	orders  *fakeOrders
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pepper := []byte("test-pepper")
	ten := decimal.NewFromInt(10)
	cat := &fakeCatalog{
		products: []catalog.Product{
			{
				ID:    "prod-1",
				Slug:  "espresso-beans",
				Name:  "Espresso Beans",
				Price: decimal.NewFromInt(100),
			},
			{
				ID:              "prod-2",
				Slug:            "moka-pot",
				Name:            "Moka Pot",
				Price:           decimal.NewFromInt(50),
				DiscountPercent: &ten,
			},
		},
		banners: []catalog.Banner{{ID: "b1", Title: "Winter sale", ProductSlug: "moka-pot"}},
	}
	carts := newFakeCartStore()
	addresses := newFakeAddressStore()
	orders := &fakeOrders{}
	sessions := newFakeSessionStore()
	users := &fakeUserStore{users: map[string]*postgres.UserRecord{
		"ana@example.com": {
			ID:           "user-ana",
			Email:        "ana@example.com",
			Name:         "Ana",
			PasswordHash: auth.HashPassword("s3cret", pepper),
		},
	}}

	mgr := checkout.NewManager(orders, addresses, newFakeSelectedStore(), &fakeGateway{}, checkout.Config{
		// Long enough that no poll fires during a test run.
		PollInterval:      time.Hour,
		CountdownInterval: time.Hour,
	}, zap.NewNop())

	h := New(cat, cat, carts, addresses, users, sessions, fakePostal{}, orders, mgr, pepper)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	token, err := sessions.Create(context.Background(), session.User{ID: "user-ana", Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)

	return &testEnv{handler: h, server: srv, token: token, userID: "user-ana", carts: carts, orders: orders}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeInto[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func validDraft() address.Draft {
	return address.Draft{
		Street:     "Rua Central",
		Number:     "42",
		Complement: "apto 3",
		City:       "Limeira",
		State:      "SP",
		Country:    "BR",
		PostalCode: "13480-000",
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ana@example.com", Password: "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeInto[loginResponse](t, resp)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "user-ana", out.User.ID)

	resp = env.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "nobody@example.com", Password: "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireSessionRedirect(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/cart", nil)
	require.NoError(t, err)
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	out := decodeInto[errorResponse](t, resp)
	assert.Equal(t, "/login?redirect=/cart", out.Redirect)
}

func TestCartLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decodeInto[cartResponse](t, resp)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.TotalAmount.IsZero())

	resp = env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "espresso-beans", Quantity: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decodeInto[cartResponse](t, resp)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.TotalQuantity)
	assert.True(t, c.TotalAmount.Equal(decimal.NewFromInt(200)), c.TotalAmount.String())

	// Discounted product: 50 at 10% off is 45 a unit.
	resp = env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "prod-2", Quantity: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = decodeInto[cartResponse](t, resp)
	require.Len(t, c.Items, 2)
	assert.True(t, c.TotalAmount.Equal(decimal.NewFromInt(245)), c.TotalAmount.String())

	resp = env.do(t, http.MethodDelete, "/cart/items/moka-pot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = decodeInto[cartResponse](t, resp)
	require.Len(t, c.Items, 1)
	assert.True(t, c.TotalAmount.Equal(decimal.NewFromInt(200)), c.TotalAmount.String())

	// Removing a line the server never had is a no-op, not an error.
	resp = env.do(t, http.MethodDelete, "/cart/items/no-such-line", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = decodeInto[cartResponse](t, resp)
	assert.Empty(t, c.Items)
	assert.Equal(t, 0, c.TotalQuantity)
}

func TestAddCartItemUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "no-such", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddCartItemInvalidQuantity(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "prod-1", Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAddressValidation(t *testing.T) {
	env := newTestEnv(t)

	d := validDraft()
	d.State = "SAO"
	d.PostalCode = "123"
	resp := env.do(t, http.MethodPost, "/addresses", d)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	out := decodeInto[errorResponse](t, resp)
	assert.Contains(t, out.Fields, "state")
	assert.Contains(t, out.Fields, "postalCode")

	resp = env.do(t, http.MethodPost, "/addresses", validDraft())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeInto[address.Address](t, resp)
	assert.Equal(t, "13480000", created.PostalCode)
}

func TestSetDefaultAddress(t *testing.T) {
	env := newTestEnv(t)

	first := decodeInto[address.Address](t, env.do(t, http.MethodPost, "/addresses", validDraft()))
	d := validDraft()
	d.Street = "Avenida Paulista"
	second := decodeInto[address.Address](t, env.do(t, http.MethodPost, "/addresses", d))

	resp := env.do(t, http.MethodPost, "/addresses/"+second.ID+"/default", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeInto[[]address.Address](t, resp)
	require.Len(t, list, 2)
	for _, a := range list {
		assert.Equal(t, a.ID == second.ID, a.IsDefault)
	}
	_ = first

	resp = env.do(t, http.MethodPost, "/addresses/no-such/default", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBeginCheckoutEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/checkout", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	out := decodeInto[errorResponse](t, resp)
	assert.Equal(t, "/cart", out.Redirect)
}

func TestCheckoutFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "prod-1", Quantity: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decodeInto[checkoutViewResponse](t, resp)
	assert.Equal(t, checkout.StepAddress, view.Step)

	// Retrying with no payment in flight is a step violation.
	resp = env.do(t, http.MethodPost, "/checkout/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/checkout/address", submitAddressRequest{Address: ptr(validDraft())})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decodeInto[checkoutViewResponse](t, resp)
	assert.Equal(t, checkout.StepPayment, view.Step)
	require.NotNil(t, view.Payment)
	assert.Equal(t, payment.StatusWaiting, view.Payment.Status)
	assert.NotEmpty(t, view.OrderID)

	// The cart converted into an order and emptied server-side.
	c, err := env.carts.Get(context.Background(), env.userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	resp = env.do(t, http.MethodGet, "/orders/"+view.OrderID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	o := decodeInto[orderResponse](t, resp)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(100)), o.Total.String())

	resp = env.do(t, http.MethodDelete, "/checkout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/checkout", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitAddressRejectsInvalidDraft(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/cart/items", addCartItemRequest{ProductID: "prod-1", Quantity: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	d := validDraft()
	d.Complement = ""
	resp = env.do(t, http.MethodPost, "/checkout/address", submitAddressRequest{Address: &d})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	out := decodeInto[errorResponse](t, resp)
	assert.Contains(t, out.Fields, "complement")

	// The failed submit leaves the session on the address step.
	view := decodeInto[checkoutViewResponse](t, env.do(t, http.MethodGet, "/checkout", nil))
	assert.Equal(t, checkout.StepAddress, view.Step)
}

func TestGetOrderOwnership(t *testing.T) {
	env := newTestEnv(t)

	other := &order.Order{ID: "order-x", UserID: "someone-else", Status: order.StatusPending}
	require.NoError(t, env.orders.Create(context.Background(), other))

	resp := env.do(t, http.MethodGet, "/orders/order-x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostalLookupEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/postal/13480-000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeInto[map[string]string](t, resp)
	assert.Equal(t, "Limeira", out["city"])

	resp = env.do(t, http.MethodGet, "/postal/00000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostalLookupUpstreamDown(t *testing.T) {
	cat := &fakeCatalog{}
	orders := &fakeOrders{}
	addresses := newFakeAddressStore()
	mgr := checkout.NewManager(orders, addresses, newFakeSelectedStore(), &fakeGateway{}, checkout.Config{
		PollInterval:      time.Hour,
		CountdownInterval: time.Hour,
	}, zap.NewNop())
	h := New(cat, cat, newFakeCartStore(), addresses, &fakeUserStore{}, newFakeSessionStore(),
		fakePostal{down: true}, orders, mgr, []byte("test-pepper"))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/postal/13480000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProductLookupBySlugAndID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/products/espresso-beans", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bySlug := decodeInto[productResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/products/prod-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byID := decodeInto[productResponse](t, resp)

	assert.Equal(t, bySlug.ID, byID.ID)

	resp = env.do(t, http.MethodGet, "/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func ptr[T any](v T) *T { return &v }
