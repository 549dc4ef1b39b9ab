package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
}

type categoryJSON struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Subcategories []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"subcategories"`
}

type seedFile struct {
	Categories []categoryJSON `json:"categories"`
	Products   []productJSON  `json:"products"`
}

func main() {
	var (
		databaseURL   string
		catalogFile   string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "optional JSON file with categories and products")
	flag.StringVar(&adminEmail, "admin-email", "", "administrator email (or SHOP_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "administrator password (or SHOP_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("SHOP_SEED_ADMIN_EMAIL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("SHOP_SEED_ADMIN_PASSWORD")
	}
	if adminEmail == "" || adminPassword == "" {
		slog.Error("admin credentials are required: set --admin-email and --admin-password")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, email, password string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAdmin(ctx, repository.NewUserRepository(pool), email, password); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	if catalogFile == "" {
		slog.Info("no catalog file given, skipping catalog")
		return nil
	}

	data, err := readCatalog(catalogFile)
	if err != nil {
		return err
	}

	catalogRepo := repository.NewCatalogRepository(pool)
	if err := seedCategories(ctx, catalogRepo, data.Categories); err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := seedProducts(ctx, catalogRepo, data.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	return nil
}

func seedAdmin(ctx context.Context, users *repository.UserRepository, email, password string) error {
	slog.Info("seeding administrator", slog.String("email", email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	u := &auth.User{Email: email, PasswordHash: hash}
	if err := users.Create(ctx, u); err != nil {
		return err
	}

	slog.Info("upserted administrator", slog.String("id", u.ID), slog.String("email", u.Email))

	return nil
}

func readCatalog(path string) (*seedFile, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}

	var data seedFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}

	return &data, nil
}

// seedCategories creates categories only into an empty catalog, since
// category ids are generated and a rerun would duplicate them.
func seedCategories(ctx context.Context, repo *repository.CatalogRepository, categories []categoryJSON) error {
	existing, err := repo.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("categories already present, skipping", slog.Int("count", len(existing)))
		return nil
	}

	for _, c := range categories {
		cat := &catalog.Category{Name: c.Name, Description: c.Description}
		if err := repo.CreateCategory(ctx, cat); err != nil {
			return errors.Wrapf(err, "create category %s", c.Name)
		}

		for _, s := range c.Subcategories {
			if err := repo.CreateSubcategory(ctx, &catalog.Subcategory{
				CategoryID:  cat.ID,
				Name:        s.Name,
				Description: s.Description,
			}); err != nil {
				return errors.Wrapf(err, "create subcategory %s/%s", c.Name, s.Name)
			}
		}

		slog.Info("created category",
			slog.String("id", cat.ID),
			slog.String("name", cat.Name),
			slog.Int("subcategories", len(c.Subcategories)),
		)
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.CatalogRepository, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	batch := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			return errors.Errorf("product %q has no id", p.Name)
		}
		batch = append(batch, catalog.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Image:       p.Image,
		})
	}

	n, err := repo.UpsertProducts(ctx, batch)
	if err != nil {
		return err
	}

	slog.Info("upserted products", slog.Int64("rows", n))

	return nil
}
