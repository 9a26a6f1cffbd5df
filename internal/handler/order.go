package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/address"
	"github.com/mercadino/storefront/internal/domain/order"
	"github.com/mercadino/storefront/internal/storage/postgres"
)

type orderResponse struct {
	ID              string          `json:"id"`
	Status          order.Status    `json:"status"`
	Total           decimal.Decimal `json:"total"`
	Items           []order.Item    `json:"items"`
	ShippingAddress address.Address `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toOrderResponse(o order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Status:          o.Status,
		Total:           o.Total,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	list, err := h.orders.ListByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]orderResponse, len(list))
	for i, o := range list {
		out[i] = toOrderResponse(o)
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

// getOrder returns one order. Orders belonging to another user read as not
// found, not forbidden.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if o.UserID != u.ID {
		writeDomainError(r.Context(), w, postgres.ErrOrderNotFound)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toOrderResponse(*o))
}
