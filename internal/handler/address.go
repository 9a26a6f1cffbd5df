package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mercadino/storefront/internal/domain/address"
)

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	addrs, err := h.addresses.ListByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if addrs == nil {
		addrs = []address.Address{}
	}
	writeJSON(r.Context(), w, http.StatusOK, addrs)
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	var draft address.Draft
	if err := decodeBody(r, &draft); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := address.ValidateDraft(draft); errs != nil {
		writeDomainError(r.Context(), w, errs)
		return
	}

	u := userFrom(r.Context())
	created, err := h.addresses.Create(r.Context(), u.ID, draft)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, created)
}

func (h *Handler) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	if err := h.addresses.SetDefault(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	addrs, err := h.addresses.ListByUser(r.Context(), u.ID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, addrs)
}
