package handler

import (
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/payment"
)

type subcategoryJSON struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

type categoryJSON struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Image         string            `json:"image,omitempty"`
	Subcategories []subcategoryJSON `json:"subcategories"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) subcategoryJSON(r *http.Request, s catalog.Subcategory) subcategoryJSON {
	return subcategoryJSON{
		ID:          s.ID,
		CategoryID:  s.CategoryID,
		Name:        s.Name,
		Description: s.Description,
		Image:       h.url(r, s.Image),
	}
}

func (h *Handler) categoryJSON(r *http.Request, c *catalog.Category) categoryJSON {
	out := categoryJSON{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Image:         h.url(r, c.Image),
		Subcategories: make([]subcategoryJSON, 0, len(c.Subcategories)),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, s := range c.Subcategories {
		out.Subcategories = append(out.Subcategories, h.subcategoryJSON(r, s))
	}
	return out
}

func (h *Handler) productJSON(r *http.Request, p *catalog.Product) productJSON {
	return productJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Image:       h.url(r, p.Image),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// catalogForm is a category, subcategory or product submission, sent
// either as multipart/form-data with an "image" file or as JSON with the
// image inlined as a data URI.
type catalogForm struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURI    string           `json:"image"`

	image *catalog.Upload
	file  io.Closer
}

func (f *catalogForm) Close() {
	if f.file != nil {
		_ = f.file.Close()
	}
}

func (h *Handler) readCatalogForm(w http.ResponseWriter, r *http.Request) (*catalogForm, error) {
	f := &catalogForm{}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		if err := decode(r, f); err != nil {
			return nil, err
		}
		if f.ImageURI != "" {
			f.image = &catalog.Upload{DataURI: f.ImageURI}
		}
		return f, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, payment.Invalid("", "malformed multipart form")
	}
	f.Name = r.FormValue("name")
	f.Description = r.FormValue("description")
	if v := r.FormValue("price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, payment.Invalid("price", "must be a number")
		}
		f.Price = &price
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		if uri := r.FormValue("image"); uri != "" {
			f.image = &catalog.Upload{DataURI: uri}
		}
	case err != nil:
		return nil, payment.Invalid("image", "unreadable upload")
	default:
		f.file = file
		f.image = &catalog.Upload{File: file, Ext: path.Ext(header.Filename)}
	}
	return f, nil
}

func (f *catalogForm) category() catalog.CategoryInput {
	return catalog.CategoryInput{Name: f.Name, Description: f.Description, Image: f.image}
}

func (f *catalogForm) product() catalog.ProductInput {
	return catalog.ProductInput{Name: f.Name, Description: f.Description, Price: f.Price, Image: f.image}
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]categoryJSON, 0, len(cs))
	for i := range cs {
		out = append(out, h.categoryJSON(r, &cs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.GetCategory(r.Context(), chi.URLParam(r, "categoryId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.categoryJSON(r, c))
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	c, err := h.Catalog.CreateCategory(r.Context(), f.category())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.categoryJSON(r, c))
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	c, err := h.Catalog.UpdateCategory(r.Context(), chi.URLParam(r, "categoryId"), f.category())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.categoryJSON(r, c))
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteCategory(r.Context(), chi.URLParam(r, "categoryId")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Category and image deleted successfully"})
}

func (h *Handler) listSubcategories(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Catalog.ListSubcategories(r.Context(), chi.URLParam(r, "categoryId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]subcategoryJSON, 0, len(subs))
	for _, s := range subs {
		out = append(out, h.subcategoryJSON(r, s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSubcategory(w http.ResponseWriter, r *http.Request) {
	s, err := h.Catalog.GetSubcategory(r.Context(), chi.URLParam(r, "categoryId"), chi.URLParam(r, "subCategoryId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.subcategoryJSON(r, *s))
}

func (h *Handler) createSubcategory(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	c, err := h.Catalog.CreateSubcategory(r.Context(), chi.URLParam(r, "categoryId"), f.category())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.categoryJSON(r, c))
}

func (h *Handler) updateSubcategory(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	s, err := h.Catalog.UpdateSubcategory(r.Context(),
		chi.URLParam(r, "categoryId"), chi.URLParam(r, "subCategoryId"), f.category())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.subcategoryJSON(r, *s))
}

func (h *Handler) deleteSubcategory(w http.ResponseWriter, r *http.Request) {
	err := h.Catalog.DeleteSubcategory(r.Context(), chi.URLParam(r, "categoryId"), chi.URLParam(r, "subCategoryId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Subcategory deleted successfully"})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]productJSON, 0, len(ps))
	for i := range ps {
		out = append(out, h.productJSON(r, &ps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productJSON(r, p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	p, err := h.Catalog.CreateProduct(r.Context(), f.product())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.productJSON(r, p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	f, err := h.readCatalogForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer f.Close()

	p, err := h.Catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), f.product())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productJSON(r, p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Product and image deleted successfully"})
}
