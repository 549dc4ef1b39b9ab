package card

import (
	"context"

	"github.com/xenking/storefront/internal/domain/payment"
)

// Intent is a gateway payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	// Status is the gateway's native intent status.
	Status   string
	Amount   int64
	Currency string
	// Card and ReceiptURL are set once the intent has a charge.
	Card       *payment.Card
	ReceiptURL string
}

// CreateIntentParams describes a new intent. Amount is in minor units.
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Gateway is the card-network gateway boundary.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error)
	// RetrieveIntent returns the intent with its latest charge expanded.
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
