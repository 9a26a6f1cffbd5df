// Package handler exposes the storefront API over HTTP: catalog reads, the
// remote cart mirror, the address book, authentication, and the checkout
// flow. Routing is chi; domain errors map to status codes at this boundary
// and never leak as raw 500s unless they are genuinely unknown.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/checkout"
	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/cart"
	"github.com/mercadino/storefront/internal/domain/catalog"
	"github.com/mercadino/storefront/internal/domain/order"
	"github.com/mercadino/storefront/internal/gateway/pixpay"
	"github.com/mercadino/storefront/internal/gateway/postal"
	"github.com/mercadino/storefront/internal/session"
	"github.com/mercadino/storefront/internal/storage/postgres"
)

// CartStore persists per-user cart snapshots.
type CartStore interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Put(ctx context.Context, userID string, c cart.Cart) error
	Delete(ctx context.Context, userID string) error
}

// AddressStore extends the checkout address book with default selection.
type AddressStore interface {
	checkout.AddressBook
	SetDefault(ctx context.Context, userID, addressID string) error
}

// UserStore looks up accounts for login.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*postgres.UserRecord, error)
}

// SessionStore issues and resolves session tokens.
type SessionStore interface {
	Create(ctx context.Context, u session.User) (string, error)
	Get(ctx context.Context, token string) (*session.User, error)
	Delete(ctx context.Context, token string) error
}

// PostalLookup resolves postal codes to address fragments.
type PostalLookup interface {
	Lookup(ctx context.Context, code string) (*postal.Result, error)
}

// Handler wires the API surface. Active checkout sessions are held in
// memory, one per user; a new checkout pass replaces (and closes) the
// previous one.
type Handler struct {
	catalog   catalog.Repository
	banners   catalog.BannerRepository
	carts     CartStore
	addresses AddressStore
	users     UserStore
	sessions  SessionStore
	postal    PostalLookup
	orders    order.Repository
	checkout  *checkout.Manager
	pepper    []byte

	mu     sync.Mutex
	active map[string]*checkout.Session
}

// New constructs a Handler.
func New(
	cat catalog.Repository,
	banners catalog.BannerRepository,
	carts CartStore,
	addresses AddressStore,
	users UserStore,
	sessions SessionStore,
	postalClient PostalLookup,
	orders order.Repository,
	checkoutMgr *checkout.Manager,
	pepper []byte,
) *Handler {
	return &Handler{
		catalog:   cat,
		banners:   banners,
		carts:     carts,
		addresses: addresses,
		users:     users,
		sessions:  sessions,
		postal:    postalClient,
		orders:    orders,
		checkout:  checkoutMgr,
		pepper:    pepper,
		active:    make(map[string]*checkout.Session),
	}
}

// Routes mounts every API route on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", h.login)

	r.Get("/products", h.listProducts)
	r.Get("/products/{key}", h.getProduct)
	r.Get("/banners", h.listBanners)
	r.Get("/postal/{cep}", h.postalLookup)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)

		r.Post("/auth/logout", h.logout)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Delete("/cart/items/{key}", h.removeCartItem)
		r.Delete("/cart", h.clearCart)

		r.Get("/addresses", h.listAddresses)
		r.Post("/addresses", h.createAddress)
		r.Post("/addresses/{id}/default", h.setDefaultAddress)

		r.Post("/checkout", h.beginCheckout)
		r.Get("/checkout", h.checkoutView)
		r.Post("/checkout/address", h.submitCheckoutAddress)
		r.Post("/checkout/retry", h.retryPayment)
		r.Delete("/checkout", h.abandonCheckout)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
	})

	return r
}

// errorResponse is the uniform error payload. Redirect carries the page the
// web app should send the user to (login with the preserved destination, or
// the cart page on empty-cart gating).
type errorResponse struct {
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(ctx).Error("encode response", zap.Error(err))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, errorResponse{Code: status, Message: msg})
}

// writeDomainError maps known domain errors to responses. Unknown errors log
// and return 500.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case isAny(err, catalog.ErrNotFound, postgres.ErrOrderNotFound,
		postgres.ErrAddressNotFound, postal.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, err.Error())

	case isAny(err, checkout.ErrWrongStep, checkout.ErrPaymentNotFailed,
		checkout.ErrSessionClosed):
		writeError(ctx, w, http.StatusConflict, err.Error())

	case isAny(err, checkout.ErrNoAddress, postal.ErrInvalidCode):
		writeError(ctx, w, http.StatusUnprocessableEntity, err.Error())

	default:
		var verrs address.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
				Code:    http.StatusUnprocessableEntity,
				Message: "address validation failed",
				Fields:  verrs,
			})
			return
		}
		var iq *cart.InvalidQuantityError
		if errors.As(err, &iq) {
			writeError(ctx, w, http.StatusBadRequest, iq.Error())
			return
		}
		var payErr *pixpay.StatusError
		var cepErr *postal.StatusError
		if errors.As(err, &payErr) || errors.As(err, &cepErr) {
			zctx.From(ctx).Warn("upstream provider error", zap.Error(err))
			writeError(ctx, w, http.StatusBadGateway, "upstream provider unavailable")
			return
		}

		zctx.From(ctx).Error("internal error", zap.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
