// Package card implements card payments through a payment-intent gateway.
package card

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/reconcile"
)

// DefaultCurrency is used when the service is configured without one.
const DefaultCurrency = "pkr"

// InitiateRequest starts a card checkout.
type InitiateRequest struct {
	User    payment.Customer
	Items   []payment.Item
	OrderID string
}

// InitiateResult is returned to the client, which confirms the intent
// with ClientSecret. The secret is never stored.
type InitiateResult struct {
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId"`
	IntentID      string          `json:"paymentIntentId"`
	ClientSecret  string          `json:"clientSecret"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// Service handles the card channel.
type Service struct {
	gateway  Gateway
	payments payment.Repository
	engine   *reconcile.Engine
	currency string
}

var (
	_ reconcile.Adapter      = (*Service)(nil)
	_ reconcile.StatusPoller = (*Service)(nil)
)

// NewService creates a card Service charging in currency.
func NewService(gateway Gateway, payments payment.Repository, engine *reconcile.Engine, currency string) *Service {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Service{
		gateway:  gateway,
		payments: payments,
		engine:   engine,
		currency: strings.ToLower(currency),
	}
}

func (s *Service) Channel() payment.Channel { return payment.ChannelCard }

// Normalize maps payment-intent statuses.
func (s *Service) Normalize(native string) payment.Status {
	switch native {
	case "succeeded":
		return payment.StatusCompleted
	case "processing", "requires_capture":
		return payment.StatusPending
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return payment.StatusRequiresAction
	case "canceled":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

// Initiate creates a gateway intent for the cart total and persists the
// record in the intent's initial state.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if len(req.Items) == 0 {
		return nil, payment.Invalid("cartItems", "cart items are required")
	}
	if req.User.ID == "" || req.User.Address == nil {
		return nil, payment.Invalid("user", "user details are incomplete")
	}

	amount := decimal.Zero
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, payment.Invalid(fmt.Sprintf("cartItems[%d].quantity", i), "must be greater than 0")
		}
		if it.Price.IsNegative() {
			return nil, payment.Invalid(fmt.Sprintf("cartItems[%d].price", i), "must not be negative")
		}
		amount = amount.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	minor := payment.ToMinorUnits(amount, s.currency)
	if minor <= 0 {
		return nil, payment.Invalid("cartItems", "cart total must be positive")
	}

	metadata := map[string]string{"userId": req.User.ID}
	if req.OrderID != "" {
		metadata["orderId"] = req.OrderID
	}
	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		Amount:   minor,
		Currency: s.currency,
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}

	rec := &payment.Record{
		Channel:    payment.ChannelCard,
		ExternalID: intent.ID,
		OrderID:    req.OrderID,
		Amount:     amount,
		Currency:   strings.ToUpper(s.currency),
		Method:     "card",
		Status:     s.Normalize(intent.Status),
		Detail: payment.CardDetail{
			IntentStatus: intent.Status,
			AmountMinor:  minor,
			Card:         intent.Card,
			ReceiptURL:   intent.ReceiptURL,
			Customer:     req.User,
			Items:        req.Items,
		},
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}
	s.engine.RecordCreated(ctx, rec)

	return &InitiateResult{
		Status:        intent.Status,
		TransactionID: rec.ID,
		IntentID:      intent.ID,
		ClientSecret:  intent.ClientSecret,
		Amount:        amount,
		Currency:      rec.Currency,
	}, nil
}

// PollStatus retrieves the intent and mirrors its card metadata.
func (s *Service) PollStatus(ctx context.Context, rec *payment.Record) (reconcile.Notification, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, rec.ExternalID)
	if err != nil {
		return reconcile.Notification{}, err
	}
	return reconcile.Notification{
		ExternalID: intent.ID,
		Status:     s.Normalize(intent.Status),
		Refresh: func(d payment.Detail) payment.Detail {
			cd, _ := d.(payment.CardDetail)
			cd.IntentStatus = intent.Status
			if intent.Card != nil {
				cd.Card = intent.Card
			}
			if intent.ReceiptURL != "" {
				cd.ReceiptURL = intent.ReceiptURL
			}
			return cd
		},
	}, nil
}

// GetStatus refreshes a card payment from the gateway and returns it.
// A status the record can no longer take is ignored; the stored record
// is returned as is.
func (s *Service) GetStatus(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Verify(ctx, payment.ChannelCard, rec.ExternalID)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Get returns a card payment by its internal id without contacting the
// gateway.
func (s *Service) Get(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if rec.Channel != payment.ChannelCard {
		return nil, payment.ErrNotFound
	}
	return rec, nil
}

// List returns card payments, newest first.
func (s *Service) List(ctx context.Context) ([]payment.Record, error) {
	recs, err := s.payments.List(ctx, payment.Filter{Channel: payment.ChannelCard})
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return recs, nil
}

// Delete removes a card payment record. The gateway intent is left as is.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.payments.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete payment")
	}
	return nil
}
