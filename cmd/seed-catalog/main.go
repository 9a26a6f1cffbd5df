// Command seed-catalog loads products, banners, and demo accounts into the
// storefront database from CMS export files. Exports may be plain JSON or
// gzip-compressed (.json.gz).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mercadino/storefront/internal/auth"
	"github.com/mercadino/storefront/internal/domain/catalog"
	"github.com/mercadino/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	Discount    *decimal.Decimal `json:"discount"`
	Category    string           `json:"category"`
	Image       string           `json:"image"`
}

type bannerJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Image       string `json:"image"`
	ProductSlug string `json:"productSlug"`
	SortOrder   int    `json:"sortOrder"`
}

type userJSON struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		bannersFile  string
		usersFile    string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON export")
	flag.StringVar(&bannersFile, "banners-file", "db/seed/banners.json", "path to banners JSON export")
	flag.StringVar(&usersFile, "users-file", "", "optional path to demo accounts JSON")
	flag.StringVar(&pepper, "session-pepper", "", "HMAC pepper for password hashing (or STOREFRONT_SESSION_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("STOREFRONT_SESSION_PEPPER")
	}
	if usersFile != "" && pepper == "" {
		slog.Error("seeding accounts requires --session-pepper or STOREFRONT_SESSION_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, bannersFile, usersFile, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, bannersFile, usersFile, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return errors.Wrap(seedProducts(gctx, postgres.NewCatalogRepository(pool), productsFile), "seed products")
	})
	g.Go(func() error {
		return errors.Wrap(seedBanners(gctx, postgres.NewCatalogRepository(pool), bannersFile), "seed banners")
	})
	if usersFile != "" {
		g.Go(func() error {
			return errors.Wrap(seedUsers(gctx, postgres.NewUserRepository(pool), usersFile, pepper), "seed accounts")
		})
	}
	return g.Wait()
}

// openExport opens a seed file, transparently decompressing .gz exports.
func openExport(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "open gzip reader")
	}
	return struct {
		io.Reader
		io.Closer
	}{zr, f}, nil
}

func decodeExport[T any](path string) ([]T, error) {
	r, err := openExport(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var out []T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "parse JSON")
	}
	return out, nil
}

func seedProducts(ctx context.Context, repo *postgres.CatalogRepository, path string) error {
	slog.Info("reading products export", slog.String("path", path))

	products, err := decodeExport[productJSON](path)
	if err != nil {
		return err
	}
	for _, p := range products {
		err := repo.Upsert(ctx, catalog.Product{
			ID:              p.ID,
			Slug:            p.Slug,
			Name:            p.Name,
			Description:     p.Description,
			Price:           p.Price,
			DiscountPercent: p.Discount,
			Category:        p.Category,
			Image:           p.Image,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Slug)
		}
	}
	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func seedBanners(ctx context.Context, repo *postgres.CatalogRepository, path string) error {
	slog.Info("reading banners export", slog.String("path", path))

	banners, err := decodeExport[bannerJSON](path)
	if err != nil {
		return err
	}
	for _, b := range banners {
		err := repo.UpsertBanner(ctx, catalog.Banner{
			ID:          b.ID,
			Title:       b.Title,
			Subtitle:    b.Subtitle,
			Image:       b.Image,
			ProductSlug: b.ProductSlug,
			SortOrder:   b.SortOrder,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert banner %s", b.ID)
		}
	}
	slog.Info("banners seeded", slog.Int("count", len(banners)))
	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository, path, pepper string) error {
	slog.Info("reading accounts file", slog.String("path", path))

	users, err := decodeExport[userJSON](path)
	if err != nil {
		return err
	}
	for _, u := range users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		hash := auth.HashPassword(u.Password, []byte(pepper))
		if err := repo.Upsert(ctx, email, u.Name, hash); err != nil {
			return errors.Wrapf(err, "upsert account %s", email)
		}
	}
	slog.Info("accounts seeded", slog.Int("count", len(users)))
	return nil
}
