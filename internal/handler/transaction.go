package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/provider/card"
)

// cartItem is a cart line as sent by the storefront, with the product
// nested. Older clients send "_id" and "title" instead of "id" and "name".
type cartItem struct {
	Product struct {
		ID       string          `json:"id"`
		LegacyID string          `json:"_id"`
		Name     string          `json:"name"`
		Title    string          `json:"title"`
		Price    decimal.Decimal `json:"price"`
		Image    string          `json:"image"`
	} `json:"product"`
	Quantity int `json:"quantity"`
}

func (c cartItem) item() payment.Item {
	it := payment.Item{
		ProductID: c.Product.ID,
		Name:      c.Product.Name,
		Price:     c.Product.Price,
		Quantity:  c.Quantity,
		Image:     c.Product.Image,
	}
	if it.ProductID == "" {
		it.ProductID = c.Product.LegacyID
	}
	if it.Name == "" {
		it.Name = c.Product.Title
	}
	if it.Quantity == 0 {
		it.Quantity = 1
	}
	return it
}

func cartItems(in []cartItem) []payment.Item {
	out := make([]payment.Item, 0, len(in))
	for _, c := range in {
		out = append(out, c.item())
	}
	return out
}

type createTransactionRequest struct {
	User      payment.Customer `json:"user"`
	CartItems []cartItem       `json:"cartItems"`
	OrderID   string           `json:"orderId"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Card.Initiate(r.Context(), card.InitiateRequest{
		User:    req.User,
		Items:   cartItems(req.CartItems),
		OrderID: req.OrderID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// getTransaction refreshes the card payment from the gateway before
// returning it.
func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Card.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordJSON(r, rec))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Card.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordsJSON(r, recs))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Card.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Transaction deleted successfully"})
}
