// Package wallet records redirect-wallet transactions. The buyer's client
// completes the checkout with the wallet provider and reports the
// transaction id and status back.
package wallet

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/reconcile"
)

const (
	MethodPayPal    = "paypal"
	DefaultCurrency = "USD"
)

// Statuses lists the statuses a wallet transaction may carry.
var Statuses = []payment.Status{
	payment.StatusPending,
	payment.StatusCompleted,
	payment.StatusFailed,
	payment.StatusRefunded,
}

// InitiateRequest records a wallet transaction reported by the client.
type InitiateRequest struct {
	PaymentMethod  string
	Status         string
	Amount         decimal.Decimal
	Currency       string
	Items          []payment.Item
	TransactionID  string
	PaymentDetails json.RawMessage
	OrderID        string
}

// Service handles the wallet channel.
type Service struct {
	payments payment.Repository
	engine   *reconcile.Engine
}

var _ reconcile.Adapter = (*Service)(nil)

// NewService creates a wallet Service.
func NewService(payments payment.Repository, engine *reconcile.Engine) *Service {
	return &Service{payments: payments, engine: engine}
}

func (s *Service) Channel() payment.Channel { return payment.ChannelWallet }

// Normalize maps wallet statuses. Unknown values are still pending.
func (s *Service) Normalize(native string) payment.Status {
	st, err := payment.ParseStatus(strings.ToLower(native))
	if err != nil || !slices.Contains(Statuses, st) {
		return payment.StatusPending
	}
	return st
}

func parseStatus(v string) (payment.Status, error) {
	st, err := payment.ParseStatus(v)
	if err != nil || !slices.Contains(Statuses, st) {
		return "", payment.Invalid("status", "must be one of pending, completed, failed, refunded")
	}
	return st, nil
}

// Initiate persists a new transaction. An existing transaction id is a
// conflict and is never overwritten.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*payment.Record, error) {
	if req.PaymentMethod != MethodPayPal {
		return nil, payment.Invalid("paymentMethod", "must be paypal")
	}
	st, err := parseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if req.TransactionID == "" {
		return nil, payment.Invalid("transactionId", "required")
	}
	if req.Amount.IsNegative() {
		return nil, payment.Invalid("amount", "must not be negative")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}

	rec := &payment.Record{
		Channel:    payment.ChannelWallet,
		ExternalID: req.TransactionID,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		Currency:   currency,
		Method:     req.PaymentMethod,
		Status:     st,
		Detail: payment.WalletDetail{
			Items:          req.Items,
			PaymentDetails: req.PaymentDetails,
		},
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	s.engine.RecordCreated(ctx, rec)
	return rec, nil
}

// Get returns a wallet transaction by its provider transaction id.
func (s *Service) Get(ctx context.Context, transactionID string) (*payment.Record, error) {
	rec, err := s.payments.GetByExternalID(ctx, payment.ChannelWallet, transactionID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	return rec, nil
}

// List returns wallet transactions, newest first.
func (s *Service) List(ctx context.Context) ([]payment.Record, error) {
	recs, err := s.payments.List(ctx, payment.Filter{Channel: payment.ChannelWallet})
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return recs, nil
}

// UpdateStatus moves a transaction to status through the reconciliation
// engine. Moves out of a final status that payment.Decide rejects are
// reported as payment.ErrStaleTransition.
func (s *Service) UpdateStatus(ctx context.Context, transactionID, status string) (*payment.Record, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Apply(ctx, reconcile.Event{
		Channel:    payment.ChannelWallet,
		ExternalID: transactionID,
		Status:     st,
		Source:     reconcile.SourceAPI,
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Record, nil
}
