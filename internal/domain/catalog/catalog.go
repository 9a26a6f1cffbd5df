// Package catalog defines the product and banner records the storefront
// reads. Content management happens upstream (the CMS registers products and
// banners); this side only consumes and seeds them.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item available for purchase. DiscountPercent, when
// set, is a 0-100 percentage applied to Price at cart time.
type Product struct {
	ID              string
	Slug            string
	Name            string
	Description     string
	Price           decimal.Decimal
	DiscountPercent *decimal.Decimal
	Category        string
	Image           string
	CreatedAt       time.Time
}

// Banner is a CMS-managed promotional entry pointing at a product.
type Banner struct {
	ID          string
	Title       string
	Subtitle    string
	Image       string
	ProductSlug string
	SortOrder   int
}

// Repository defines read and seed operations for the catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Upsert(ctx context.Context, p Product) error
}

// BannerRepository defines read and seed operations for banners.
type BannerRepository interface {
	ListBanners(ctx context.Context) ([]Banner, error)
	UpsertBanner(ctx context.Context, b Banner) error
}
