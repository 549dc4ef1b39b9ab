package card

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/xenking/storefront/internal/domain/payment"
)

// StripeGateway implements Gateway with Stripe PaymentIntents.
type StripeGateway struct {
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway authenticated with secretKey. The
// HTTP client carries timeouts and instrumentation.
func NewStripeGateway(secretKey string, httpClient *http.Client) *StripeGateway {
	api := client.New(secretKey, stripe.NewBackends(httpClient))
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(p.Amount),
		Currency:           stripe.String(p.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, upstream(err)
	}
	return convertIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, upstream(err)
	}
	return convertIntent(pi), nil
}

func convertIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}

	ch := pi.LatestCharge
	if ch == nil {
		return in
	}
	in.ReceiptURL = ch.ReceiptURL
	if ch.PaymentMethodDetails == nil || ch.PaymentMethodDetails.Card == nil {
		return in
	}
	c := ch.PaymentMethodDetails.Card
	in.Card = &payment.Card{
		Brand:    string(c.Brand),
		Last4:    c.Last4,
		ExpMonth: c.ExpMonth,
		ExpYear:  c.ExpYear,
		Country:  c.Country,
		Funding:  string(c.Funding),
	}
	if c.Checks != nil {
		in.Card.CVCCheck = string(c.Checks.CVCCheck)
	}
	return in
}

func upstream(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return &payment.UpstreamError{Provider: "stripe", Message: serr.Msg, Err: err}
	}
	return &payment.UpstreamError{Provider: "stripe", Err: err}
}
