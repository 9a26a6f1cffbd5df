package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/checkout"
	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/payment"
)

type checkoutPaymentResponse struct {
	ID           string          `json:"id"`
	Status       payment.Status  `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	PixCode      string          `json:"pixCode,omitempty"`
	PixQrCode    string          `json:"pixQrCode,omitempty"`
	PixRemaining int64           `json:"pixRemainingSeconds"`
}

type checkoutViewResponse struct {
	SessionID string                   `json:"sessionId"`
	Step      checkout.Step            `json:"step"`
	Cart      cartResponse             `json:"cart"`
	OrderID   string                   `json:"orderId,omitempty"`
	Payment   *checkoutPaymentResponse `json:"payment,omitempty"`
	Failed    bool                     `json:"paymentFailed"`
}

func toCheckoutView(v checkout.View) checkoutViewResponse {
	out := checkoutViewResponse{
		SessionID: v.SessionID,
		Step:      v.Step,
		Cart:      toCartResponse(v.Cart),
		Failed:    v.PaymentFailed,
	}
	if v.Order != nil {
		out.OrderID = v.Order.ID
	}
	if v.Payment != nil {
		out.Payment = &checkoutPaymentResponse{
			ID:           v.Payment.ID,
			Status:       v.Payment.Status,
			Amount:       v.Payment.Amount,
			Method:       v.Payment.Method,
			PixCode:      v.Payment.PixCode,
			PixQrCode:    v.Payment.PixQrCode,
			PixRemaining: int64(v.PixRemaining.Seconds()),
		}
	}
	return out
}

// CloseSessions tears down every in-flight checkout session. Called on
// shutdown so pollers stop before the process exits.
func (h *Handler) CloseSessions(ctx context.Context) {
	h.mu.Lock()
	sessions := make([]*checkout.Session, 0, len(h.active))
	for id, s := range h.active {
		sessions = append(sessions, s)
		delete(h.active, id)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}

// activeSession returns the user's in-flight checkout session, if any.
func (h *Handler) activeSession(userID string) *checkout.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active[userID]
}

// beginCheckout starts a checkout pass from the user's stored cart. An
// existing session for the same user is torn down first; each user has at
// most one in-flight checkout.
func (h *Handler) beginCheckout(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	snapshot, err := h.carts.Get(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	s, err := h.checkout.Begin(r.Context(), u, snapshot)
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) {
			writeJSON(r.Context(), w, http.StatusConflict, errorResponse{
				Code:     http.StatusConflict,
				Message:  "cart is empty",
				Redirect: "/cart",
			})
			return
		}
		writeDomainError(r.Context(), w, err)
		return
	}

	h.mu.Lock()
	prev := h.active[u.ID]
	h.active[u.ID] = s
	h.mu.Unlock()
	if prev != nil {
		prev.Close(r.Context())
	}

	writeJSON(r.Context(), w, http.StatusCreated, toCheckoutView(s.View()))
}

func (h *Handler) checkoutView(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	s := h.activeSession(u.ID)
	if s == nil {
		writeDomainError(r.Context(), w, checkout.ErrSessionClosed)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCheckoutView(s.View()))
}

type submitAddressRequest struct {
	AddressID string         `json:"addressId,omitempty"`
	Address   *address.Draft `json:"address,omitempty"`
}

func (h *Handler) submitCheckoutAddress(w http.ResponseWriter, r *http.Request) {
	var req submitAddressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}

	u := userFrom(r.Context())
	s := h.activeSession(u.ID)
	if s == nil {
		writeDomainError(r.Context(), w, checkout.ErrSessionClosed)
		return
	}

	sel := checkout.AddressSelection{SavedID: req.AddressID, Draft: req.Address}
	if err := s.SubmitAddress(r.Context(), sel); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	// The cart converted into an order; the stored cart empties with it.
	if err := h.carts.Delete(r.Context(), u.ID); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCheckoutView(s.View()))
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	s := h.activeSession(u.ID)
	if s == nil {
		writeDomainError(r.Context(), w, checkout.ErrSessionClosed)
		return
	}
	if err := s.Retry(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toCheckoutView(s.View()))
}

// abandonCheckout tears down the user's session. Idempotent: a missing
// session is already the requested state.
func (h *Handler) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	h.mu.Lock()
	s := h.active[u.ID]
	delete(h.active, u.ID)
	h.mu.Unlock()

	if s != nil {
		s.Close(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}
