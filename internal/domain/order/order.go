package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Valid reports whether s is a known fulfilment state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus summarizes the payment records linked to an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentUnpaid   PaymentStatus = "Unpaid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

// Valid reports whether s is a known payment summary.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentUnpaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Customer is the buyer snapshot taken when the order is placed.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
}

// LineItem is one ordered product. TotalPrice is always Price × Quantity.
type LineItem struct {
	ProductID  string          `json:"product"`
	Name       string          `json:"name"`
	Image      string          `json:"image"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Order is a placed customer order. The totals are derived from Products
// and are never set independently.
type Order struct {
	ID             string
	Customer       Customer
	Products       []LineItem
	TotalProducts  int
	TotalQuantity  int
	GrandTotal     decimal.Decimal
	ShippingMethod string
	PaymentMethod  string
	PaymentStatus  PaymentStatus
	Status         Status
	// PaymentRefs holds external transaction ids of payments made against
	// the order. They are lookup hints, the payment record stays the source
	// of truth.
	PaymentRefs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows List results. Page is 1-based.
type Filter struct {
	Status        Status
	PaymentStatus PaymentStatus
	Page          int
	Limit         int
}

// Offset returns the number of rows to skip for the filter's page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of orders.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// Pages returns the number of pages needed to hold Total orders.
func (p Page) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// Update stores o. The payment summary is only written when
	// setPaymentStatus is true, so a status or products patch cannot revert
	// an outcome recorded since o was read. Implementations refresh
	// PaymentStatus and PaymentRefs in o from the stored row.
	Update(ctx context.Context, o *Order, setPaymentStatus bool) error
	Delete(ctx context.Context, id string) error

	// RecordPayment sets the payment summary to status unless the stored
	// summary is one of keep, and appends ref to PaymentRefs if it is not
	// already present. Both happen in a single statement.
	RecordPayment(ctx context.Context, id string, status PaymentStatus, keep []PaymentStatus, ref string) (*Order, error)
}
