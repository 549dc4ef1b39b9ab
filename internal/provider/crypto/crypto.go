// Package crypto implements cryptocurrency payments through a hosted
// processor. Payments are confirmed by signed IPN callbacks and can be
// verified on demand by polling the processor.
package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/reconcile"
)

// Processor side defaults.
const (
	DefaultCurrency    = "USD"
	DefaultPayCurrency = "LTC"
	// PaymentWindow is how long the processor holds a deposit address.
	PaymentWindow = 10 * time.Minute

	qrCodeBase = "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data="
)

// Config configures the crypto channel.
type Config struct {
	IPNSecret string
	// CallbackURL is the public URL of the IPN endpoint.
	CallbackURL string
	PayCurrency string
}

// InitiateRequest starts a crypto checkout.
type InitiateRequest struct {
	Amount      decimal.Decimal
	Currency    string
	PayCurrency string
	Customer    payment.Customer
	Items       []payment.Item
	OrderID     string
}

// InitiateResult holds the stored record and the processor response.
type InitiateResult struct {
	Record    *payment.Record
	Processor *ProcessorPayment
}

// VerifyResult is the outcome of an on-demand verification.
type VerifyResult struct {
	Verified bool
	Record   *payment.Record
}

// AdminStatuses lists the statuses an administrator may set.
var AdminStatuses = []payment.Status{
	payment.StatusPending,
	payment.StatusCompleted,
	payment.StatusFailed,
	payment.StatusExpired,
}

// Service handles the crypto channel.
type Service struct {
	processor Processor
	payments  payment.Repository
	engine    *reconcile.Engine
	cfg       Config
	now       func() time.Time
}

var (
	_ reconcile.Adapter          = (*Service)(nil)
	_ reconcile.CallbackVerifier = (*Service)(nil)
	_ reconcile.CallbackDecoder  = (*Service)(nil)
	_ reconcile.StatusPoller     = (*Service)(nil)
)

// NewService creates a crypto Service.
func NewService(processor Processor, payments payment.Repository, engine *reconcile.Engine, cfg Config) *Service {
	if cfg.PayCurrency == "" {
		cfg.PayCurrency = DefaultPayCurrency
	}
	return &Service{
		processor: processor,
		payments:  payments,
		engine:    engine,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Service) Channel() payment.Channel { return payment.ChannelCrypto }

// Normalize maps processor statuses: only "finished" completes a payment,
// every other reported status fails it.
func (s *Service) Normalize(native string) payment.Status {
	if native == "finished" {
		return payment.StatusCompleted
	}
	return payment.StatusFailed
}

// Initiate requests a deposit address from the processor and persists a
// pending record that expires after PaymentWindow.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if !req.Amount.IsPositive() {
		return nil, payment.Invalid("amount", "valid amount is required")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	payCurrency := strings.ToUpper(req.PayCurrency)
	if payCurrency == "" {
		payCurrency = s.cfg.PayCurrency
	}

	now := s.now()
	orderRef := req.OrderID
	if orderRef == "" {
		orderRef = "order_" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	p, err := s.processor.CreatePayment(ctx, CreatePaymentRequest{
		PriceAmount:      req.Amount,
		PriceCurrency:    currency,
		PayCurrency:      payCurrency,
		CallbackURL:      s.cfg.CallbackURL,
		OrderID:          orderRef,
		OrderDescription: fmt.Sprintf("Payment for %d items", len(req.Items)),
		CustomerEmail:    req.Customer.Email,
	})
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &payment.UpstreamError{Provider: providerName, Message: "response without payment_id"}
	}

	amount := p.PriceAmount
	if amount.IsZero() {
		amount = req.Amount
	}
	if p.PriceCurrency != "" {
		currency = strings.ToUpper(p.PriceCurrency)
	}
	expires := now.Add(PaymentWindow)

	rec := &payment.Record{
		Channel:    payment.ChannelCrypto,
		ExternalID: p.ID,
		OrderID:    req.OrderID,
		Amount:     amount,
		Currency:   currency,
		Method:     "crypto",
		Status:     payment.StatusPending,
		ExpiresAt:  &expires,
		Detail: payment.CryptoDetail{
			CryptoAmount:   p.PayAmount,
			CryptoCurrency: p.PayCurrency,
			WalletAddress:  p.PayAddress,
			PaymentURL:     p.InvoiceURL,
			QRCodeURL:      qrCodeBase + url.QueryEscape(p.PayAddress),
			Customer:       req.Customer,
			Items:          req.Items,
			ProcessorData:  p.Raw,
		},
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	s.engine.RecordCreated(ctx, rec)
	return &InitiateResult{Record: rec, Processor: p}, nil
}

// Sign returns the hex HMAC-SHA512 of body under the IPN secret.
func (s *Service) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(s.cfg.IPNSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback checks the IPN signature against the exact body.
func (s *Service) VerifyCallback(body []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha512.Size {
		return payment.ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(s.cfg.IPNSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return payment.ErrInvalidSignature
	}
	return nil
}

// DecodeCallback reads payment_id and payment_status from an IPN body and
// keeps the body as the latest processor payload.
func (s *Service) DecodeCallback(body []byte) (reconcile.Notification, error) {
	var id, status string
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "payment_id":
			id, err = readString(d)
		case "payment_status":
			status, err = readString(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return reconcile.Notification{}, payment.Invalid("body", "malformed IPN payload")
	}
	if id == "" {
		return reconcile.Notification{}, payment.Invalid("payment_id", "required")
	}

	raw := append([]byte(nil), body...)
	return reconcile.Notification{
		ExternalID: id,
		Status:     s.Normalize(status),
		Refresh:    withProcessorData(raw),
	}, nil
}

// PollStatus asks the processor for the payment. A finished payment
// completes the record; an unfinished one past its expiry expires it;
// anything else leaves the status unchanged.
func (s *Service) PollStatus(ctx context.Context, rec *payment.Record) (reconcile.Notification, error) {
	p, err := s.processor.GetPayment(ctx, rec.ExternalID)
	if err != nil {
		return reconcile.Notification{}, err
	}

	n := reconcile.Notification{
		ExternalID: rec.ExternalID,
		Refresh:    withProcessorData(p.Raw),
	}
	switch {
	case p.Status == "finished":
		n.Status = payment.StatusCompleted
	case rec.Expired(s.now()):
		n.Status = payment.StatusExpired
	}
	return n, nil
}

func withProcessorData(raw []byte) func(payment.Detail) payment.Detail {
	return func(d payment.Detail) payment.Detail {
		cd, _ := d.(payment.CryptoDetail)
		cd.ProcessorData = raw
		return cd
	}
}

// HandleCallback authenticates and applies an IPN delivery.
func (s *Service) HandleCallback(ctx context.Context, body []byte, signature string) (*reconcile.Result, error) {
	return s.engine.HandleCallback(ctx, payment.ChannelCrypto, body, signature)
}

// Verify returns the payment identified by the processor transaction id,
// refreshing it from the processor unless it is already completed.
func (s *Service) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	res, err := s.engine.Verify(ctx, payment.ChannelCrypto, transactionID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Verified: res.Record.Status == payment.StatusCompleted,
		Record:   res.Record,
	}, nil
}

// List returns crypto payments, newest first.
func (s *Service) List(ctx context.Context) ([]payment.Record, error) {
	recs, err := s.payments.List(ctx, payment.Filter{Channel: payment.ChannelCrypto})
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return recs, nil
}

// Get returns a crypto payment by its internal id.
func (s *Service) Get(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if rec.Channel != payment.ChannelCrypto {
		return nil, payment.ErrNotFound
	}
	return rec, nil
}

// UpdateStatus applies an administrator status change.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*payment.Record, error) {
	st, err := payment.ParseStatus(status)
	if err != nil || !slices.Contains(AdminStatuses, st) {
		return nil, payment.Invalid("status", "valid status is required")
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Apply(ctx, reconcile.Event{
		Channel:    payment.ChannelCrypto,
		ExternalID: rec.ExternalID,
		Status:     st,
		Source:     reconcile.SourceAdmin,
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Delete removes a crypto payment record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.payments.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete payment")
	}
	return nil
}
