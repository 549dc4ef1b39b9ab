package handler

import (
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/provider/manual"
)

// recordJSON is the client view of a payment record on any channel.
type recordJSON struct {
	ID            string          `json:"id"`
	Channel       payment.Channel `json:"channel"`
	TransactionID string          `json:"transactionId"`
	OrderID       string          `json:"orderId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method,omitempty"`
	Status        payment.Status  `json:"status"`
	Detail        payment.Detail  `json:"detail,omitempty"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (h *Handler) recordJSON(r *http.Request, rec *payment.Record) recordJSON {
	detail := rec.Detail
	if md, ok := detail.(payment.ManualDetail); ok {
		md.ProofPath = h.url(r, md.ProofPath)
		detail = md
	}
	return recordJSON{
		ID:            rec.ID,
		Channel:       rec.Channel,
		TransactionID: rec.ExternalID,
		OrderID:       rec.OrderID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Method:        rec.Method,
		Status:        rec.Status,
		Detail:        detail,
		ExpiresAt:     rec.ExpiresAt,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func (h *Handler) recordsJSON(r *http.Request, recs []payment.Record) []recordJSON {
	out := make([]recordJSON, 0, len(recs))
	for i := range recs {
		out = append(out, h.recordJSON(r, &recs[i]))
	}
	return out
}

// proofExts lists the file extensions accepted for multipart proofs.
var proofExts = []string{".jpg", ".jpeg", ".png", ".pdf"}

type createPaymentRequest struct {
	Method   string            `json:"method"`
	OrderID  string            `json:"orderId"`
	Details  map[string]string `json:"details"`
	Proof    string            `json:"paymentProof"`
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
}

type updatePaymentRequest struct {
	Status  *string           `json:"status"`
	Details map[string]string `json:"details"`
}

// readPaymentForm reads a proof-of-payment submission. Multipart uploads
// carry the proof as a "paymentProof" file which is stored right away; JSON
// bodies inline it as a data URI, either at the top level or inside
// details.
func (h *Handler) readPaymentForm(w http.ResponseWriter, r *http.Request) (manual.InitiateRequest, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var req createPaymentRequest
		if err := decode(r, &req); err != nil {
			return manual.InitiateRequest{}, err
		}
		proof := req.Proof
		if proof == "" {
			proof = req.Details["paymentProof"]
		}
		return manual.InitiateRequest{
			Method:   req.Method,
			OrderID:  req.OrderID,
			Details:  req.Details,
			Proof:    proof,
			Amount:   req.Amount,
			Currency: req.Currency,
		}, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return manual.InitiateRequest{}, payment.Invalid("", "malformed multipart form")
	}
	req := manual.InitiateRequest{
		Method:   r.FormValue("method"),
		OrderID:  r.FormValue("orderId"),
		Currency: r.FormValue("currency"),
	}
	if v := r.FormValue("amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return req, payment.Invalid("amount", "must be a number")
		}
		req.Amount = amount
	}
	if v := r.FormValue("details"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Details); err != nil {
			return req, payment.Invalid("details", "must be a JSON object")
		}
	}
	if !slices.Contains(manual.Methods, req.Method) {
		return req, payment.Invalid("method", "unsupported payment method "+req.Method)
	}

	file, header, err := r.FormFile("paymentProof")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		req.Proof = r.FormValue("paymentProof")
		return req, nil
	case err != nil:
		return req, payment.Invalid("paymentProof", "unreadable upload")
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(path.Ext(header.Filename))
	if !slices.Contains(proofExts, ext) {
		return req, payment.Invalid("paymentProof", "only jpg, png and pdf files are accepted")
	}
	if header.Size > int64(manual.ProofPolicy.MaxBytes) {
		return req, payment.Invalid("paymentProof", "file too large")
	}
	p, err := h.Store.Save("payments", "payment", ext, file)
	if err != nil {
		return req, errors.Wrap(err, "store payment proof")
	}
	req.ProofPath = p
	return req, nil
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	req, err := h.readPaymentForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Manual.Initiate(r.Context(), req)
	if err != nil {
		if req.ProofPath != "" {
			if rmErr := h.Store.Remove(req.ProofPath); rmErr != nil {
				zctx.From(r.Context()).Warn("Remove orphaned payment proof",
					zap.String("path", req.ProofPath),
					zap.Error(rmErr),
				)
			}
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.recordJSON(r, rec))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Manual.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordsJSON(r, recs))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Manual.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordJSON(r, rec))
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Manual.Update(r.Context(), chi.URLParam(r, "id"), manual.UpdateRequest{
		Status:  req.Status,
		Details: req.Details,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordJSON(r, rec))
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Manual.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Payment deleted successfully"})
}
