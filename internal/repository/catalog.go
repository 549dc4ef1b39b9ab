package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	listCategoriesSQL = `SELECT id, name, description, image, created_at, updated_at
		FROM categories ORDER BY created_at, id`

	getCategorySQL = `SELECT id, name, description, image, created_at, updated_at
		FROM categories WHERE id = $1`

	createCategorySQL = `INSERT INTO categories (name, description, image)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`

	updateCategorySQL = `UPDATE categories SET name = $2, description = $3, image = $4, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`

	listSubcategoriesSQL = `SELECT id, category_id, name, description, image
		FROM subcategories WHERE category_id = ANY($1) ORDER BY created_at, id`

	getSubcategorySQL = `SELECT id, category_id, name, description, image
		FROM subcategories WHERE category_id = $1 AND id = $2`

	createSubcategorySQL = `INSERT INTO subcategories (category_id, name, description, image)
		VALUES ($1, $2, $3, $4) RETURNING id`

	updateSubcategorySQL = `UPDATE subcategories SET name = $3, description = $4, image = $5
		WHERE category_id = $1 AND id = $2`

	deleteSubcategorySQL = `DELETE FROM subcategories WHERE category_id = $1 AND id = $2`

	listProductsSQL = `SELECT id, name, description, price, image, created_at, updated_at
		FROM products ORDER BY created_at, id`

	getProductSQL = `SELECT id, name, description, price, image, created_at, updated_at
		FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products (name, description, price, image)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, image = $5, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, description, price, image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
			price = EXCLUDED.price, image = EXCLUDED.image, updated_at = now()`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListCategories returns every category with its subcategories.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	if err := r.attachSubcategories(ctx, categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// GetCategory returns a category with its subcategories.
func (r *CatalogRepository) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	categories := []catalog.Category{c}
	if err := r.attachSubcategories(ctx, categories); err != nil {
		return nil, err
	}
	return &categories[0], nil
}

func (r *CatalogRepository) attachSubcategories(ctx context.Context, categories []catalog.Category) error {
	if len(categories) == 0 {
		return nil
	}
	ids := make([]string, len(categories))
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
		index[c.ID] = i
		categories[i].Subcategories = []catalog.Subcategory{}
	}

	rows, err := r.pool.Query(ctx, listSubcategoriesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing subcategories: %w", err)
	}
	subs, err := pgx.CollectRows(rows, scanSubcategory)
	if err != nil {
		return fmt.Errorf("listing subcategories: %w", err)
	}
	for _, s := range subs {
		i := index[s.CategoryID]
		categories[i].Subcategories = append(categories[i].Subcategories, s)
	}
	return nil
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	err := r.pool.QueryRow(ctx, createCategorySQL, c.Name, c.Description, c.Image).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating category: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateCategory(ctx context.Context, c *catalog.Category) error {
	err := r.pool.QueryRow(ctx, updateCategorySQL, c.ID, c.Name, c.Description, c.Image).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrCategoryNotFound
		}
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	return nil
}

// DeleteCategory removes a category; its subcategories go with it.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

func (r *CatalogRepository) GetSubcategory(ctx context.Context, categoryID, id string) (*catalog.Subcategory, error) {
	rows, err := r.pool.Query(ctx, getSubcategorySQL, categoryID, id)
	if err != nil {
		return nil, fmt.Errorf("getting subcategory %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSubcategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrSubcategoryNotFound
		}
		return nil, fmt.Errorf("getting subcategory %q: %w", id, err)
	}
	return &s, nil
}

func (r *CatalogRepository) CreateSubcategory(ctx context.Context, s *catalog.Subcategory) error {
	err := r.pool.QueryRow(ctx, createSubcategorySQL, s.CategoryID, s.Name, s.Description, s.Image).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("creating subcategory: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateSubcategory(ctx context.Context, s *catalog.Subcategory) error {
	tag, err := r.pool.Exec(ctx, updateSubcategorySQL, s.CategoryID, s.ID, s.Name, s.Description, s.Image)
	if err != nil {
		return fmt.Errorf("updating subcategory %q: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrSubcategoryNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteSubcategory(ctx context.Context, categoryID, id string) error {
	tag, err := r.pool.Exec(ctx, deleteSubcategorySQL, categoryID, id)
	if err != nil {
		return fmt.Errorf("deleting subcategory %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrSubcategoryNotFound
	}
	return nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, createProductSQL, p.Name, p.Description, p.Price, p.Image).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	err := r.pool.QueryRow(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.Price, p.Image).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrProductNotFound
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

func (r *CatalogRepository) DeleteProduct(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

// UpsertProducts writes products in a single batch inside a transaction.
func (r *CatalogRepository) UpsertProducts(ctx context.Context, products []catalog.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}

	var written int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range products {
			batch.Queue(upsertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Image)
		}
		results := tx.SendBatch(ctx, batch)
		for _, p := range products {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("upserting product %q: %w", p.ID, err)
			}
			written += tag.RowsAffected()
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var (
		c                    catalog.Category
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Image, &createdAt, &updatedAt)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, err
}

func scanSubcategory(row pgx.CollectableRow) (catalog.Subcategory, error) {
	var s catalog.Subcategory
	err := row.Scan(&s.ID, &s.CategoryID, &s.Name, &s.Description, &s.Image)
	return s, err
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p                    catalog.Product
		price                decimal.Decimal
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Image, &createdAt, &updatedAt)
	p.Price = price
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, err
}
