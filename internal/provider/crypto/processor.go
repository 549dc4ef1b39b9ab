package crypto

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest asks the processor for a deposit address.
type CreatePaymentRequest struct {
	PriceAmount      decimal.Decimal
	PriceCurrency    string
	PayCurrency      string
	CallbackURL      string
	OrderID          string
	OrderDescription string
	CustomerEmail    string
}

// ProcessorPayment is the processor's view of a payment.
type ProcessorPayment struct {
	ID            string
	Status        string
	PayAddress    string
	PayAmount     decimal.Decimal
	PayCurrency   string
	PriceAmount   decimal.Decimal
	PriceCurrency string
	InvoiceURL    string
	OrderID       string
	// Raw is the response body as received.
	Raw []byte
}

// Processor is the crypto processor boundary.
type Processor interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*ProcessorPayment, error)
	GetPayment(ctx context.Context, id string) (*ProcessorPayment, error)
}
