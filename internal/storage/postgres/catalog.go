package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mercadino/storefront/internal/domain/catalog"
)

const (
	productColumns = `id, slug, name, description, price, discount_percent, category, image, created_at`

	listProductsSQL     = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`
	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, slug, name, description, price, discount_percent, category, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			discount_percent = EXCLUDED.discount_percent,
			category = EXCLUDED.category,
			image = EXCLUDED.image`

	listBannersSQL  = `SELECT id, title, subtitle, image, product_slug, sort_order FROM banners ORDER BY sort_order, id`
	upsertBannerSQL = `INSERT INTO banners (id, title, subtitle, image, product_slug, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			subtitle = EXCLUDED.subtitle,
			image = EXCLUDED.image,
			product_slug = EXCLUDED.product_slug,
			sort_order = EXCLUDED.sort_order`
)

var (
	_ catalog.Repository       = (*CatalogRepository)(nil)
	_ catalog.BannerRepository = (*CatalogRepository)(nil)
)

// CatalogRepository implements catalog reads and seeding on PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository using the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns all products, newest first.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetBySlug returns a single product by its slug.
func (r *CatalogRepository) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *CatalogRepository) getOne(ctx context.Context, sql, arg string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or updates a product, keyed by slug.
func (r *CatalogRepository) Upsert(ctx context.Context, p catalog.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Slug, p.Name, p.Description, p.Price, p.DiscountPercent, p.Category, p.Image)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.Slug)
	}
	return nil
}

// ListBanners returns all banners in display order.
func (r *CatalogRepository) ListBanners(ctx context.Context) ([]catalog.Banner, error) {
	rows, err := r.pool.Query(ctx, listBannersSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list banners")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Banner, error) {
		var b catalog.Banner
		err := row.Scan(&b.ID, &b.Title, &b.Subtitle, &b.Image, &b.ProductSlug, &b.SortOrder)
		return b, err
	})
}

// UpsertBanner inserts or updates a banner.
func (r *CatalogRepository) UpsertBanner(ctx context.Context, b catalog.Banner) error {
	_, err := r.pool.Exec(ctx, upsertBannerSQL,
		b.ID, b.Title, b.Subtitle, b.Image, b.ProductSlug, b.SortOrder)
	if err != nil {
		return errors.Wrapf(err, "upsert banner %q", b.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p        catalog.Product
		discount *decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.Price,
		&discount, &p.Category, &p.Image, &p.CreatedAt,
	)
	p.DiscountPercent = discount
	return p, err
}
