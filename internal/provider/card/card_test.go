package card

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/payment/paymenttest"
	"github.com/xenking/storefront/internal/reconcile"
)

// --- Fakes ---

type fakeGateway struct {
	created   []CreateIntentParams
	retrieves int
	intent    Intent
	createErr error
}

func (g *fakeGateway) CreateIntent(_ context.Context, p CreateIntentParams) (*Intent, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, p)
	in := g.intent
	in.Amount = p.Amount
	in.Currency = p.Currency
	return &in, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	g.retrieves++
	in := g.intent
	in.ID = id
	return &in, nil
}

type recordingOrders struct {
	statuses []payment.Status
}

func (r *recordingOrders) RecordPaymentOutcome(_ context.Context, id string, st payment.Status, _ string) (*order.Order, error) {
	r.statuses = append(r.statuses, st)
	return &order.Order{ID: id}, nil
}

// --- Helpers ---

func newService(t *testing.T, currency string) (*Service, *fakeGateway, *paymenttest.Memory, *recordingOrders) {
	t.Helper()
	gw := &fakeGateway{intent: Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: "requires_payment_method"}}
	repo := paymenttest.New()
	orders := &recordingOrders{}
	engine, err := reconcile.NewEngine(repo, orders, reconcile.Options{})
	require.NoError(t, err)
	svc := NewService(gw, repo, engine, currency)
	engine.Register(svc)
	return svc, gw, repo, orders
}

func user() payment.Customer {
	return payment.Customer{ID: "u1", Name: "Sara", Address: &payment.Address{Line1: "1 Main", City: "Karachi"}}
}

func items() []payment.Item {
	return []payment.Item{
		{ProductID: "p1", Price: decimal.RequireFromString("12.34"), Quantity: 1},
		{ProductID: "p2", Price: decimal.RequireFromString("5"), Quantity: 2},
	}
}

// --- Tests ---

func TestInitiate(t *testing.T) {
	svc, gw, repo, orders := newService(t, "usd")

	res, err := svc.Initiate(context.Background(), InitiateRequest{User: user(), Items: items(), OrderID: "o1"})
	require.NoError(t, err)

	assert.Equal(t, "requires_payment_method", res.Status)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, "USD", res.Currency)
	assert.True(t, decimal.RequireFromString("22.34").Equal(res.Amount))

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(2234), gw.created[0].Amount)
	assert.Equal(t, "usd", gw.created[0].Currency)
	assert.Equal(t, map[string]string{"userId": "u1", "orderId": "o1"}, gw.created[0].Metadata)

	rec, err := repo.GetByID(context.Background(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRequiresAction, rec.Status)
	assert.Equal(t, "pi_1", rec.ExternalID)
	cd := rec.Detail.(payment.CardDetail)
	assert.Equal(t, "requires_payment_method", cd.IntentStatus)
	assert.Equal(t, int64(2234), cd.AmountMinor)

	// The order learns about the intent as soon as it is stored.
	assert.Equal(t, []payment.Status{payment.StatusRequiresAction}, orders.statuses)
}

func TestInitiate_ZeroDecimalCurrency(t *testing.T) {
	svc, gw, _, _ := newService(t, "JPY")

	_, err := svc.Initiate(context.Background(), InitiateRequest{
		User:  user(),
		Items: []payment.Item{{Price: decimal.NewFromInt(500), Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(500), gw.created[0].Amount)
}

func TestInitiate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  InitiateRequest
	}{
		{"no items", InitiateRequest{User: user()}},
		{"no user id", InitiateRequest{User: payment.Customer{Address: &payment.Address{}}, Items: items()}},
		{"no address", InitiateRequest{User: payment.Customer{ID: "u1"}, Items: items()}},
		{"zero quantity", InitiateRequest{User: user(), Items: []payment.Item{{Price: decimal.NewFromInt(1)}}}},
		{"zero total", InitiateRequest{User: user(), Items: []payment.Item{{Price: decimal.Zero, Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gw, _, _ := newService(t, "")
			_, err := svc.Initiate(context.Background(), tt.req)

			var vErr *payment.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Empty(t, gw.created)
		})
	}
}

func TestInitiate_GatewayErrorPersistsNothing(t *testing.T) {
	svc, gw, repo, _ := newService(t, "")
	gw.createErr = &payment.UpstreamError{Provider: "stripe", Message: "card_declined"}

	_, err := svc.Initiate(context.Background(), InitiateRequest{User: user(), Items: items()})
	var upErr *payment.UpstreamError
	require.ErrorAs(t, err, &upErr)

	recs, err := repo.List(context.Background(), payment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetStatus_MirrorsCardMetadata(t *testing.T) {
	svc, gw, _, orders := newService(t, "")
	ctx := context.Background()

	res, err := svc.Initiate(ctx, InitiateRequest{User: user(), Items: items(), OrderID: "o1"})
	require.NoError(t, err)

	gw.intent.Status = "succeeded"
	gw.intent.Card = &payment.Card{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
	gw.intent.ReceiptURL = "https://pay.example/receipt"

	rec, err := svc.GetStatus(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, rec.Status)
	cd := rec.Detail.(payment.CardDetail)
	assert.Equal(t, "succeeded", cd.IntentStatus)
	assert.Equal(t, "4242", cd.Card.Last4)
	assert.Equal(t, "https://pay.example/receipt", cd.ReceiptURL)
	assert.Equal(t, []payment.Status{payment.StatusRequiresAction, payment.StatusCompleted}, orders.statuses)

	// Completed records are served without another gateway round trip.
	again, err := svc.GetStatus(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.retrieves)
	assert.Equal(t, rec.Detail, again.Detail)
}

func TestGetStatus_PendingRefreshIsIdempotent(t *testing.T) {
	svc, gw, repo, _ := newService(t, "")
	ctx := context.Background()

	res, err := svc.Initiate(ctx, InitiateRequest{User: user(), Items: items()})
	require.NoError(t, err)

	gw.intent.Status = "requires_action"
	for range 2 {
		rec, err := svc.GetStatus(ctx, res.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusRequiresAction, rec.Status)
	}

	recs, err := repo.List(ctx, payment.Filter{Channel: payment.ChannelCard})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestGetStatus_NotFound(t *testing.T) {
	svc, _, _, _ := newService(t, "")

	_, err := svc.GetStatus(context.Background(), "missing")
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestNormalize(t *testing.T) {
	svc := NewService(nil, nil, nil, "")
	tests := map[string]payment.Status{
		"succeeded":               payment.StatusCompleted,
		"processing":              payment.StatusPending,
		"requires_capture":        payment.StatusPending,
		"requires_payment_method": payment.StatusRequiresAction,
		"requires_confirmation":   payment.StatusRequiresAction,
		"requires_action":         payment.StatusRequiresAction,
		"canceled":                payment.StatusFailed,
	}
	for native, want := range tests {
		assert.Equal(t, want, svc.Normalize(native), native)
	}
}

func TestConvertIntent(t *testing.T) {
	pi := &stripe.PaymentIntent{
		ID:           "pi_9",
		ClientSecret: "secret",
		Status:       stripe.PaymentIntentStatusSucceeded,
		Amount:       1234,
		Currency:     "usd",
		LatestCharge: &stripe.Charge{
			ReceiptURL: "https://receipt",
			PaymentMethodDetails: &stripe.ChargePaymentMethodDetails{
				Card: &stripe.ChargePaymentMethodDetailsCard{
					Brand:    "visa",
					Last4:    "4242",
					ExpMonth: 1,
					ExpYear:  2031,
					Country:  "PK",
					Funding:  "credit",
					Checks:   &stripe.ChargePaymentMethodDetailsCardChecks{CVCCheck: "pass"},
				},
			},
		},
	}

	in := convertIntent(pi)
	assert.Equal(t, "succeeded", in.Status)
	assert.Equal(t, "https://receipt", in.ReceiptURL)
	require.NotNil(t, in.Card)
	assert.Equal(t, payment.Card{
		Brand: "visa", Last4: "4242", ExpMonth: 1, ExpYear: 2031,
		Country: "PK", Funding: "credit", CVCCheck: "pass",
	}, *in.Card)

	bare := convertIntent(&stripe.PaymentIntent{ID: "pi_0", Status: stripe.PaymentIntentStatusRequiresPaymentMethod})
	assert.Nil(t, bare.Card)
}

func TestUpstream(t *testing.T) {
	err := upstream(&stripe.Error{Msg: "Your card was declined."})
	var upErr *payment.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "Your card was declined.", upErr.Message)

	err = upstream(errors.New("dial tcp: timeout"))
	require.ErrorAs(t, err, &upErr)
	assert.Empty(t, upErr.Message)
}
