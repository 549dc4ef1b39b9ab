// Package catalog manages categories, their subcategories and products.
package catalog

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Lookup failures.
var (
	ErrCategoryNotFound    = errors.New("category not found")
	ErrSubcategoryNotFound = errors.New("subcategory not found")
	ErrProductNotFound     = errors.New("product not found")
)

// Category groups products and owns its subcategories.
type Category struct {
	ID            string
	Name          string
	Description   string
	Image         string
	Subcategories []Subcategory
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subcategory belongs to exactly one category.
type Subcategory struct {
	ID          string
	CategoryID  string
	Name        string
	Description string
	Image       string
}

// Product is a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Upload is an image supplied either inline as a data URI or as a file
// stream with its extension.
type Upload struct {
	DataURI string
	File    io.Reader
	Ext     string
}

// Repository persists the catalog.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id string) error

	GetSubcategory(ctx context.Context, categoryID, id string) (*Subcategory, error)
	CreateSubcategory(ctx context.Context, s *Subcategory) error
	UpdateSubcategory(ctx context.Context, s *Subcategory) error
	DeleteSubcategory(ctx context.Context, categoryID, id string) error

	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id string) error
	// UpsertProducts inserts or replaces products by id and returns how
	// many rows were written.
	UpsertProducts(ctx context.Context, products []Product) (int64, error)
}
