package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/provider/wallet"
)

type createWalletRequest struct {
	PaymentMethod  string          `json:"paymentMethod"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Items          []cartItem      `json:"items"`
	TransactionID  string          `json:"transactionId"`
	PaymentDetails json.RawMessage `json:"paymentDetails"`
	OrderID        string          `json:"orderId"`
}

type updateWalletRequest struct {
	Status string `json:"status"`
}

type walletResponse struct {
	Success bool       `json:"success"`
	Data    recordJSON `json:"data"`
}

type walletListResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Data    []recordJSON `json:"data"`
}

func (h *Handler) createWalletTransaction(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Wallet.Initiate(r.Context(), wallet.InitiateRequest{
		PaymentMethod:  req.PaymentMethod,
		Status:         req.Status,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Items:          cartItems(req.Items),
		TransactionID:  req.TransactionID,
		PaymentDetails: req.PaymentDetails,
		OrderID:        req.OrderID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, walletResponse{Success: true, Data: h.recordJSON(r, rec)})
}

func (h *Handler) getWalletTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Wallet.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Success: true, Data: h.recordJSON(r, rec)})
}

func (h *Handler) updateWalletTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateWalletRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Wallet.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{Success: true, Data: h.recordJSON(r, rec)})
}

func (h *Handler) listWalletTransactions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Wallet.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletListResponse{
		Success: true,
		Count:   len(recs),
		Data:    h.recordsJSON(r, recs),
	})
}
