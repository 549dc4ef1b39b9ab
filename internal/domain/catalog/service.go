package catalog

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/artifact"
	"github.com/xenking/storefront/internal/domain/payment"
)

// ImagePolicy restricts inline catalog images.
var ImagePolicy = artifact.Policy{
	MaxBytes: 5 << 20,
	Types:    []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif"},
}

var imageExts = []string{"jpg", "jpeg", "png", "webp", "gif"}

const (
	categoryDir    = "categories"
	subcategoryDir = "subcategories"
	productDir     = "products"
)

// CategoryInput creates or patches a category or subcategory. Empty
// strings and a nil Image leave the current value on update.
type CategoryInput struct {
	Name        string
	Description string
	Image       *Upload
}

// ProductInput creates or patches a product. A nil Price leaves the
// current price on update.
type ProductInput struct {
	Name        string
	Description string
	Price       *decimal.Decimal
	Image       *Upload
}

// Service implements catalog management. Image changes follow the
// artifact replace protocol: the new image is written, the record saved,
// and only then the old image removed.
type Service struct {
	repo  Repository
	store *artifact.Store
}

// NewService creates a catalog Service.
func NewService(repo Repository, store *artifact.Store) *Service {
	return &Service{repo: repo, store: store}
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	cs, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return cs, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (*Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	return c, nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	if in.Name == "" || in.Description == "" {
		return nil, payment.Invalid("", "Name and Description are required")
	}
	c := &Category{Name: in.Name, Description: in.Description}
	err := s.withImage(ctx, "", categoryDir, "category", in.Image, func(img string) error {
		c.Image = img
		return s.repo.CreateCategory(ctx, c)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = firstNonEmpty(in.Name, c.Name)
	c.Description = firstNonEmpty(in.Description, c.Description)

	err = s.withImage(ctx, c.Image, categoryDir, "category", in.Image, func(img string) error {
		c.Image = img
		return s.repo.UpdateCategory(ctx, c)
	})
	if err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

// DeleteCategory removes the category, its subcategories and their images.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	s.removeImage(ctx, c.Image)
	for _, sub := range c.Subcategories {
		s.removeImage(ctx, sub.Image)
	}
	return nil
}

func (s *Service) ListSubcategories(ctx context.Context, categoryID string) ([]Subcategory, error) {
	c, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return c.Subcategories, nil
}

func (s *Service) GetSubcategory(ctx context.Context, categoryID, id string) (*Subcategory, error) {
	sub, err := s.repo.GetSubcategory(ctx, categoryID, id)
	if err != nil {
		return nil, errors.Wrap(err, "get subcategory")
	}
	return sub, nil
}

// CreateSubcategory adds a subcategory and returns the updated category.
func (s *Service) CreateSubcategory(ctx context.Context, categoryID string, in CategoryInput) (*Category, error) {
	if in.Name == "" || in.Description == "" {
		return nil, payment.Invalid("", "Name and Description are required")
	}
	if _, err := s.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	sub := &Subcategory{CategoryID: categoryID, Name: in.Name, Description: in.Description}
	err := s.withImage(ctx, "", subcategoryDir, "subcategory", in.Image, func(img string) error {
		sub.Image = img
		return s.repo.CreateSubcategory(ctx, sub)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create subcategory")
	}
	return s.GetCategory(ctx, categoryID)
}

func (s *Service) UpdateSubcategory(ctx context.Context, categoryID, id string, in CategoryInput) (*Subcategory, error) {
	sub, err := s.GetSubcategory(ctx, categoryID, id)
	if err != nil {
		return nil, err
	}
	sub.Name = firstNonEmpty(in.Name, sub.Name)
	sub.Description = firstNonEmpty(in.Description, sub.Description)

	err = s.withImage(ctx, sub.Image, subcategoryDir, "subcategory", in.Image, func(img string) error {
		sub.Image = img
		return s.repo.UpdateSubcategory(ctx, sub)
	})
	if err != nil {
		return nil, errors.Wrap(err, "update subcategory")
	}
	return sub, nil
}

func (s *Service) DeleteSubcategory(ctx context.Context, categoryID, id string) error {
	sub, err := s.GetSubcategory(ctx, categoryID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSubcategory(ctx, categoryID, id); err != nil {
		return errors.Wrap(err, "delete subcategory")
	}
	s.removeImage(ctx, sub.Image)
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	ps, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return ps, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if in.Name == "" || in.Description == "" || in.Price == nil || !in.Price.IsPositive() {
		return nil, payment.Invalid("", "All fields are required")
	}
	p := &Product{Name: in.Name, Description: in.Description, Price: *in.Price}
	err := s.withImage(ctx, "", productDir, "product", in.Image, func(img string) error {
		p.Image = img
		return s.repo.CreateProduct(ctx, p)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Price != nil {
		if !in.Price.IsPositive() {
			return nil, payment.Invalid("price", "must be positive")
		}
		p.Price = *in.Price
	}
	p.Name = firstNonEmpty(in.Name, p.Name)
	p.Description = firstNonEmpty(in.Description, p.Description)

	err = s.withImage(ctx, p.Image, productDir, "product", in.Image, func(img string) error {
		p.Image = img
		return s.repo.UpdateProduct(ctx, p)
	})
	if err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.removeImage(ctx, p.Image)
	return nil
}

// withImage persists the record through save. Without an upload the
// current image is kept; otherwise the upload replaces it.
func (s *Service) withImage(ctx context.Context, current, dir, name string, up *Upload, save func(img string) error) error {
	if up == nil {
		return save(current)
	}
	newPath, err := s.store.Replace(current, func() (string, error) {
		return s.storeImage(dir, name, up)
	}, save)
	if err != nil && newPath != "" {
		// Saved, but the previous image could not be removed.
		zctx.From(ctx).Warn("Remove replaced image", zap.String("path", current), zap.Error(err))
		return nil
	}
	return err
}

func (s *Service) storeImage(dir, name string, up *Upload) (string, error) {
	if up.DataURI != "" {
		p, err := s.store.SaveDataURI(dir, name, up.DataURI, ImagePolicy)
		if err != nil {
			return "", uploadError(err)
		}
		return p, nil
	}
	ext := strings.ToLower(strings.TrimPrefix(up.Ext, "."))
	if up.File == nil || !slices.Contains(imageExts, ext) {
		return "", payment.Invalid("image", "unsupported image file")
	}
	return s.store.Save(dir, name, ext, up.File)
}

func (s *Service) removeImage(ctx context.Context, img string) {
	if img == "" {
		return
	}
	if err := s.store.Remove(img); err != nil {
		zctx.From(ctx).Warn("Remove image", zap.String("path", img), zap.Error(err))
	}
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, artifact.ErrInvalidDataURI),
		errors.Is(err, artifact.ErrUnsupportedType),
		errors.Is(err, artifact.ErrTooLarge):
		return payment.Invalid("image", err.Error())
	default:
		return err
	}
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
