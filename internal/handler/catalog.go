package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/catalog"
)

type productResponse struct {
	ID              string           `json:"id"`
	Slug            string           `json:"slug"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	DiscountPercent *decimal.Decimal `json:"discount,omitempty"`
	Category        string           `json:"category,omitempty"`
	Image           string           `json:"image,omitempty"`
}

func toProductResponse(p catalog.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		Slug:            p.Slug,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		DiscountPercent: p.DiscountPercent,
		Category:        p.Category,
		Image:           p.Image,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

// getProduct accepts either a product ID or a slug; slugs are the storefront
// URLs' currency, IDs what the CMS hands back.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	p, err := h.catalog.GetBySlug(r.Context(), key)
	if errors.Is(err, catalog.ErrNotFound) {
		p, err = h.catalog.GetByID(r.Context(), key)
	}
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toProductResponse(*p))
}

type bannerResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Image       string `json:"image,omitempty"`
	ProductSlug string `json:"productSlug,omitempty"`
}

func (h *Handler) listBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.banners.ListBanners(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	out := make([]bannerResponse, len(banners))
	for i, b := range banners {
		out[i] = bannerResponse{
			ID:          b.ID,
			Title:       b.Title,
			Subtitle:    b.Subtitle,
			Image:       b.Image,
			ProductSlug: b.ProductSlug,
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *Handler) postalLookup(w http.ResponseWriter, r *http.Request) {
	res, err := h.postal.Lookup(r.Context(), chi.URLParam(r, "cep"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"street": res.Street,
		"city":   res.City,
		"state":  res.State,
	})
}
