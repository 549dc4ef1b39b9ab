package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
)

// ErrNotFound is returned when the referenced order does not exist.
var ErrNotFound = errors.New("order not found")

const (
	defaultLimit = 10
	maxLimit     = 100
)

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Customer       *Customer
	Products       []LineItem
	ShippingMethod string
	PaymentMethod  string
	// Status overrides the initial fulfilment state when set.
	Status Status
}

// Patch is a partial order update. Nil fields are left untouched; a nil
// Products slice means the line items are not being replaced.
type Patch struct {
	Status        *Status
	PaymentStatus *PaymentStatus
	Products      []LineItem
}

// Service encapsulates order business logic.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// Create validates the request, computes totals and persists the order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}
	if len(req.Products) == 0 {
		return nil, payment.Invalid("products", "at least one product is required")
	}
	if req.ShippingMethod == "" {
		return nil, payment.Invalid("shippingMethod", "required")
	}
	if req.PaymentMethod == "" {
		return nil, payment.Invalid("paymentMethod", "required")
	}

	status := StatusProcessing
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, payment.Invalid("status", fmt.Sprintf("unknown order status %q", req.Status))
		}
		status = req.Status
	}

	o := &Order{
		ID:             uuid.New().String(),
		Customer:       *req.Customer,
		ShippingMethod: req.ShippingMethod,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentUnpaid,
		Status:         status,
		PaymentRefs:    []string{},
	}
	if err := o.SetProducts(req.Products); err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// List returns one page of orders, newest first.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, payment.Invalid("status", fmt.Sprintf("unknown order status %q", f.Status))
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, payment.Invalid("paymentStatus", fmt.Sprintf("unknown payment status %q", f.PaymentStatus))
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	f.Limit = min(f.Limit, maxLimit)

	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Update applies a partial patch. Replacing line items recomputes every
// total from scratch.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Order, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, payment.Invalid("status", fmt.Sprintf("unknown order status %q", *p.Status))
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return nil, payment.Invalid("paymentStatus", fmt.Sprintf("unknown payment status %q", *p.PaymentStatus))
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.Products != nil {
		if len(p.Products) == 0 {
			return nil, payment.Invalid("products", "at least one product is required")
		}
		if err := o.SetProducts(p.Products); err != nil {
			return nil, err
		}
	}

	if err := s.orders.Update(ctx, o, p.PaymentStatus != nil); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// Delete removes an order.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

// RecordPaymentOutcome mirrors a normalized payment status onto the order
// and remembers the provider transaction id. It is the only path by which
// payment flows change an order. A Paid order is never moved back to
// Pending or Failed and a Refunded order is never changed.
//
// A missing order is logged and reported as ErrNotFound.
func (s *Service) RecordPaymentOutcome(ctx context.Context, orderID string, status payment.Status, txID string) (*Order, error) {
	target := PaymentStatusFor(status)
	o, err := s.orders.RecordPayment(ctx, orderID, target, keepOver(target), txID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			zctx.From(ctx).Warn("Payment outcome for unknown order",
				zap.String("order_id", orderID),
				zap.String("payment_status", string(status)),
				zap.String("transaction_id", txID),
			)
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "record payment outcome")
	}
	return o, nil
}

// PaymentStatusFor maps a normalized payment status onto the order summary.
func PaymentStatusFor(s payment.Status) PaymentStatus {
	switch s {
	case payment.StatusCompleted:
		return PaymentPaid
	case payment.StatusFailed, payment.StatusExpired:
		return PaymentFailed
	case payment.StatusRefunded:
		return PaymentRefunded
	default:
		return PaymentPending
	}
}

// keepOver lists the stored summaries that target must not overwrite.
func keepOver(target PaymentStatus) []PaymentStatus {
	switch target {
	case PaymentRefunded:
		return nil
	case PaymentPaid:
		return []PaymentStatus{PaymentRefunded}
	default:
		return []PaymentStatus{PaymentPaid, PaymentRefunded}
	}
}

// SetProducts replaces the line items and recomputes every derived total.
func (o *Order) SetProducts(items []LineItem) error {
	products := make([]LineItem, len(items))
	totalQuantity := 0
	grandTotal := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return payment.Invalid(fmt.Sprintf("products[%d].quantity", i), "must be greater than 0")
		}
		if item.Price.IsNegative() {
			return payment.Invalid(fmt.Sprintf("products[%d].price", i), "must not be negative")
		}
		item.TotalPrice = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		products[i] = item
		totalQuantity += item.Quantity
		grandTotal = grandTotal.Add(item.TotalPrice)
	}

	o.Products = products
	o.TotalProducts = len(products)
	o.TotalQuantity = totalQuantity
	o.GrandTotal = grandTotal
	return nil
}

func validateCustomer(c *Customer) error {
	if c == nil {
		return payment.Invalid("customer", "required")
	}
	for _, f := range []struct{ name, value string }{
		{"customer.name", c.Name},
		{"customer.email", c.Email},
		{"customer.address", c.Address},
		{"customer.city", c.City},
		{"customer.zipCode", c.ZipCode},
		{"customer.phone", c.Phone},
		{"customer.country", c.Country},
	} {
		if f.value == "" {
			return payment.Invalid(f.name, "required")
		}
	}
	return nil
}
