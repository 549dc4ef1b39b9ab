// Package handler exposes the storefront REST API on a chi router.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/artifact"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/provider/card"
	"github.com/xenking/storefront/internal/provider/crypto"
	"github.com/xenking/storefront/internal/provider/manual"
	"github.com/xenking/storefront/internal/provider/wallet"
	"github.com/xenking/storefront/internal/reconcile"
	"github.com/xenking/storefront/pkg/health"
)

// Money leaves the API as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// AuthService signs administrators in and checks their tokens.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (string, error)
	Authenticate(token string) (*auth.Claims, error)
}

// CatalogService manages categories, subcategories and products.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id string) (*catalog.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (*catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, in catalog.CategoryInput) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListSubcategories(ctx context.Context, categoryID string) ([]catalog.Subcategory, error)
	GetSubcategory(ctx context.Context, categoryID, id string) (*catalog.Subcategory, error)
	CreateSubcategory(ctx context.Context, categoryID string, in catalog.CategoryInput) (*catalog.Category, error)
	UpdateSubcategory(ctx context.Context, categoryID, id string, in catalog.CategoryInput) (*catalog.Subcategory, error)
	DeleteSubcategory(ctx context.Context, categoryID, id string) error

	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// OrderService places and administers orders.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) (*order.Page, error)
	Update(ctx context.Context, id string, p order.Patch) (*order.Order, error)
	Delete(ctx context.Context, id string) error
}

// ManualPayments is the proof-of-payment channel.
type ManualPayments interface {
	Initiate(ctx context.Context, req manual.InitiateRequest) (*payment.Record, error)
	List(ctx context.Context) ([]payment.Record, error)
	Get(ctx context.Context, id string) (*payment.Record, error)
	Update(ctx context.Context, id string, req manual.UpdateRequest) (*payment.Record, error)
	Delete(ctx context.Context, id string) error
}

// CardPayments is the card gateway channel.
type CardPayments interface {
	Initiate(ctx context.Context, req card.InitiateRequest) (*card.InitiateResult, error)
	GetStatus(ctx context.Context, id string) (*payment.Record, error)
	List(ctx context.Context) ([]payment.Record, error)
	Delete(ctx context.Context, id string) error
}

// CryptoPayments is the crypto processor channel.
type CryptoPayments interface {
	Initiate(ctx context.Context, req crypto.InitiateRequest) (*crypto.InitiateResult, error)
	HandleCallback(ctx context.Context, body []byte, signature string) (*reconcile.Result, error)
	Verify(ctx context.Context, transactionID string) (*crypto.VerifyResult, error)
	List(ctx context.Context) ([]payment.Record, error)
	Get(ctx context.Context, id string) (*payment.Record, error)
	UpdateStatus(ctx context.Context, id, status string) (*payment.Record, error)
	Delete(ctx context.Context, id string) error
}

// WalletPayments is the redirect wallet channel.
type WalletPayments interface {
	Initiate(ctx context.Context, req wallet.InitiateRequest) (*payment.Record, error)
	Get(ctx context.Context, transactionID string) (*payment.Record, error)
	List(ctx context.Context) ([]payment.Record, error)
	UpdateStatus(ctx context.Context, transactionID, status string) (*payment.Record, error)
}

var (
	_ AuthService    = (*auth.Service)(nil)
	_ CatalogService = (*catalog.Service)(nil)
	_ OrderService   = (*order.Service)(nil)
	_ ManualPayments = (*manual.Service)(nil)
	_ CardPayments   = (*card.Service)(nil)
	_ CryptoPayments = (*crypto.Service)(nil)
	_ WalletPayments = (*wallet.Service)(nil)
)

// Config holds non-dependency handler settings.
type Config struct {
	// BaseURL is prepended to stored artifact paths in responses. When
	// empty, the request scheme and host are used.
	BaseURL string
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64
}

// Deps are the services behind the API.
type Deps struct {
	Auth    AuthService
	Catalog CatalogService
	Orders  OrderService
	Manual  ManualPayments
	Card    CardPayments
	Crypto  CryptoPayments
	Wallet  WalletPayments
	Store   *artifact.Store
	Health  *health.Health
}

// Handler serves the storefront API.
type Handler struct {
	Deps
	baseURL   string
	maxUpload int64
	now       func() time.Time
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		Deps:      deps,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxUpload: cfg.MaxUploadBytes,
		now:       time.Now,
	}
}

// Router mounts every route. Middlewares run inside the chi router, so
// they can see the matched route pattern.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.Get("/livez", h.Health.LiveEndpoint)
	r.Get("/readyz", h.Health.ReadyEndpoint)
	if prefix := "/" + h.Store.Prefix() + "/"; prefix != "//" {
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(h.Store.Root()))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Post("/auth/signin", h.signIn)

		r.Get("/categories", h.listCategories)
		r.Get("/categories/{categoryId}", h.getCategory)
		r.Get("/categories/{categoryId}/subcategories", h.listSubcategories)
		r.Get("/categories/{categoryId}/subcategories/{subCategoryId}", h.getSubcategory)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Post("/orders", h.createOrder)
		r.Post("/payments", h.createPayment)

		r.Post("/transactions/create", h.createTransaction)
		r.Get("/transactions/{id}", h.getTransaction)

		r.Get("/crypto/health", h.cryptoHealth)
		r.Post("/crypto", h.createCryptoPayment)
		r.Post("/crypto/ipn", h.cryptoIPN)
		r.Get("/crypto/verify/{transactionId}", h.verifyCryptoPayment)

		r.Post("/paypal/create", h.createWalletTransaction)
		r.Get("/paypal/{id}", h.getWalletTransaction)
		r.Put("/paypal/{id}", h.updateWalletTransaction)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/categories", h.createCategory)
			r.Put("/categories/{categoryId}", h.updateCategory)
			r.Delete("/categories/{categoryId}", h.deleteCategory)
			r.Post("/categories/{categoryId}/subcategories", h.createSubcategory)
			r.Put("/categories/{categoryId}/subcategories/{subCategoryId}", h.updateSubcategory)
			r.Delete("/categories/{categoryId}/subcategories/{subCategoryId}", h.deleteSubcategory)
			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)

			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Put("/orders/{id}", h.updateOrder)
			r.Delete("/orders/{id}", h.deleteOrder)

			r.Get("/payments", h.listPayments)
			r.Get("/payments/{id}", h.getPayment)
			r.Put("/payments/{id}", h.updatePayment)
			r.Delete("/payments/{id}", h.deletePayment)

			r.Get("/transactions", h.listTransactions)
			r.Delete("/transactions/{id}", h.deleteTransaction)

			r.Get("/crypto", h.listCryptoPayments)
			r.Get("/crypto/{id}", h.getCryptoPayment)
			r.Put("/crypto/{id}", h.updateCryptoPayment)
			r.Delete("/crypto/{id}", h.deleteCryptoPayment)

			r.Get("/paypal", h.listWalletTransactions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// errorResponse is the envelope of every synchronous JSON error.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// fail maps a service error onto the JSON envelope. Unexpected errors are
// logged and hidden behind a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else if status == http.StatusBadGateway {
		zctx.From(r.Context()).Warn("Payment provider error", zap.Error(err))
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		invalid  *payment.ValidationError
		upstream *payment.UpstreamError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &upstream):
		msg := upstream.Message
		if msg == "" {
			msg = "Payment provider is unavailable"
		}
		return http.StatusBadGateway, msg
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest, "Invalid signature"
	case errors.Is(err, payment.ErrNotFound):
		return http.StatusNotFound, "Payment not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, catalog.ErrCategoryNotFound):
		return http.StatusNotFound, "Category not found"
	case errors.Is(err, catalog.ErrSubcategoryNotFound):
		return http.StatusNotFound, "Subcategory not found"
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, payment.ErrConflict):
		return http.StatusConflict, "Transaction already exists"
	case errors.Is(err, payment.ErrStaleTransition), errors.Is(err, payment.ErrStatusChanged):
		return http.StatusConflict, payment.ErrStaleTransition.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Not authorized"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return payment.Invalid("", "request body is required")
		}
		return payment.Invalid("", "malformed JSON body")
	}
	return nil
}

// url renders a stored artifact path as an absolute URL. Without a
// configured base URL the request host is used. Absolute URLs are returned
// untouched.
func (h *Handler) url(r *http.Request, p string) string {
	if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/" + strings.TrimPrefix(p, "/")
}
