package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/provider/crypto"
)

// Signature headers of inbound IPN deliveries, in lookup order.
const (
	signatureHeader       = "X-Processor-Signature"
	legacySignatureHeader = "X-Nowpayments-Sig"
)

// maxCallbackBytes bounds IPN bodies.
const maxCallbackBytes = 1 << 20

type createCryptoRequest struct {
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	PayCurrency string           `json:"payCurrency"`
	Customer    payment.Customer `json:"customer"`
	Items       []payment.Item   `json:"items"`
	OrderID     string           `json:"orderId"`
}

type updateCryptoRequest struct {
	Status string `json:"status"`
}

type cryptoRecordResponse struct {
	Success bool       `json:"success"`
	Payment recordJSON `json:"payment"`
}

type cryptoListResponse struct {
	Success  bool         `json:"success"`
	Count    int          `json:"count"`
	Payments []recordJSON `json:"payments"`
}

type cryptoVerifyResponse struct {
	Success  bool       `json:"success"`
	Verified bool       `json:"verified"`
	Payment  recordJSON `json:"payment"`
}

type cryptoHealthResponse struct {
	Status       string    `json:"status"`
	CryptoRoutes bool      `json:"cryptoRoutes"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *Handler) cryptoHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cryptoHealthResponse{
		Status:       "OK",
		CryptoRoutes: true,
		Timestamp:    h.now().UTC(),
	})
}

func (h *Handler) createCryptoPayment(w http.ResponseWriter, r *http.Request) {
	var req createCryptoRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Crypto.Initiate(r.Context(), crypto.InitiateRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		PayCurrency: req.PayCurrency,
		Customer:    req.Customer,
		Items:       req.Items,
		OrderID:     req.OrderID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body, err := encodeProcessorPayment(res.Processor)
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "encode processor response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// encodeProcessorPayment returns the processor response as received with
// "success": true added in front.
func encodeProcessorPayment(p *crypto.ProcessorPayment) ([]byte, error) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)

	if len(p.Raw) > 0 {
		if err := jx.DecodeBytes(p.Raw).Obj(func(d *jx.Decoder, key string) error {
			if key == "success" {
				return d.Skip()
			}
			v, err := d.Raw()
			if err != nil {
				return err
			}
			e.FieldStart(key)
			e.Raw(v)
			return nil
		}); err != nil {
			return nil, err
		}
		e.ObjEnd()
		return e.Bytes(), nil
	}

	e.FieldStart("payment_id")
	e.Str(p.ID)
	e.FieldStart("payment_status")
	e.Str(p.Status)
	e.FieldStart("pay_address")
	e.Str(p.PayAddress)
	e.FieldStart("pay_amount")
	e.Raw([]byte(p.PayAmount.String()))
	e.FieldStart("pay_currency")
	e.Str(p.PayCurrency)
	e.FieldStart("price_amount")
	e.Raw([]byte(p.PriceAmount.String()))
	e.FieldStart("price_currency")
	e.Str(p.PriceCurrency)
	if p.InvoiceURL != "" {
		e.FieldStart("invoice_url")
		e.Str(p.InvoiceURL)
	}
	if p.OrderID != "" {
		e.FieldStart("order_id")
		e.Str(p.OrderID)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}

// cryptoIPN receives processor callbacks. Replies are plain text since
// the processor only looks at the status code.
func (h *Handler) cryptoIPN(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		lg.Warn("Read IPN body", zap.Error(err))
		writeText(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		sig = r.Header.Get(legacySignatureHeader)
	}

	res, err := h.Crypto.HandleCallback(r.Context(), body, sig)
	var invalid *payment.ValidationError
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		lg.Warn("IPN rejected", zap.Error(err))
		writeText(w, http.StatusBadRequest, "Invalid signature")
		return
	case errors.Is(err, payment.ErrNotFound):
		lg.Warn("IPN for unknown payment", zap.Error(err))
		writeText(w, http.StatusNotFound, "Payment not found")
		return
	case errors.As(err, &invalid):
		lg.Warn("IPN payload rejected", zap.Error(err))
		writeText(w, http.StatusBadRequest, "Invalid payload")
		return
	case err != nil:
		lg.Error("IPN processing failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "IPN processing failed")
		return
	}

	lg.Info("IPN processed",
		zap.String("transaction_id", res.Record.ExternalID),
		zap.String("status", string(res.Record.Status)),
		zap.Stringer("transition", res.Transition),
	)
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) verifyCryptoPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.Crypto.Verify(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cryptoVerifyResponse{
		Success:  true,
		Verified: res.Verified,
		Payment:  h.recordJSON(r, res.Record),
	})
}

func (h *Handler) listCryptoPayments(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Crypto.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cryptoListResponse{
		Success:  true,
		Count:    len(recs),
		Payments: h.recordsJSON(r, recs),
	})
}

func (h *Handler) getCryptoPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Crypto.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cryptoRecordResponse{Success: true, Payment: h.recordJSON(r, rec)})
}

func (h *Handler) updateCryptoPayment(w http.ResponseWriter, r *http.Request) {
	var req updateCryptoRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.Crypto.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cryptoRecordResponse{Success: true, Payment: h.recordJSON(r, rec)})
}

func (h *Handler) deleteCryptoPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Crypto.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Payment deleted successfully"})
}
