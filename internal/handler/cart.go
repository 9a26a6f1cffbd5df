package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mercadino/storefront/internal/domain/cart"
	"github.com/mercadino/storefront/internal/domain/catalog"
)

type cartItemResponse struct {
	ProductID       string           `json:"productId"`
	Slug            string           `json:"slug"`
	Name            string           `json:"name"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	DiscountPercent *decimal.Decimal `json:"discount,omitempty"`
	Quantity        int              `json:"quantity"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
}

type cartResponse struct {
	Items         []cartItemResponse `json:"items"`
	TotalQuantity int                `json:"totalQuantity"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
}

func toCartResponse(c cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, item := range c.Items {
		items[i] = cartItemResponse{
			ProductID:       item.ProductID,
			Slug:            item.Slug,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Quantity:        item.Quantity,
			TotalPrice:      item.TotalPrice,
		}
	}
	return cartResponse{Items: items, TotalQuantity: c.TotalQuantity, TotalAmount: c.TotalAmount}
}

// getCart returns the stored snapshot — the reconcile source for the web
// app's local ledger.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	c, err := h.carts.Get(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCartResponse(c))
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// addCartItem mirrors the local ledger's addItem: load the stored snapshot,
// apply the mutation with the product's current price and discount, store
// the result, return the new snapshot.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.catalog.GetByID(r.Context(), req.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		p, err = h.catalog.GetBySlug(r.Context(), req.ProductID)
	}
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	h.mutateCart(w, r, func(l *cart.Ledger) error {
		return l.AddItem(cart.Product{
			ID:              p.ID,
			Slug:            p.Slug,
			Name:            p.Name,
			Price:           p.Price,
			DiscountPercent: p.DiscountPercent,
		}, req.Quantity)
	})
}

// removeCartItem removes one unit of the line. A missing line is a no-op
// with a warning, not a failure: the client may be acting on a stale view.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.mutateCart(w, r, func(l *cart.Ledger) error {
		err := l.RemoveItem(key)
		var nf *cart.ItemNotFoundError
		if errors.As(err, &nf) {
			zctx.From(r.Context()).Warn("remove of missing cart item ignored",
				zap.String("key", key))
			return nil
		}
		return err
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if err := h.carts.Delete(r.Context(), u.ID); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCartResponse(cart.Empty()))
}

// mutateCart runs one ledger mutation against the stored snapshot and
// persists the result.
func (h *Handler) mutateCart(w http.ResponseWriter, r *http.Request, mutate func(*cart.Ledger) error) {
	u := userFrom(r.Context())

	stored, err := h.carts.Get(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	ledger := cart.NewLedger()
	ledger.Reconcile(stored)

	if err := mutate(ledger); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	updated := ledger.Cart()
	if err := h.carts.Put(r.Context(), u.ID, updated); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCartResponse(updated))
}
