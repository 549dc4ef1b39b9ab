package wallet

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/payment/paymenttest"
	"github.com/xenking/storefront/internal/reconcile"
)

// --- Fakes ---

type recordingOrders struct {
	calls []string
}

func (r *recordingOrders) RecordPaymentOutcome(_ context.Context, id string, st payment.Status, txID string) (*order.Order, error) {
	r.calls = append(r.calls, id+":"+string(st)+":"+txID)
	return &order.Order{ID: id}, nil
}

// --- Helpers ---

func newService(t *testing.T) (*Service, *paymenttest.Memory, *recordingOrders) {
	t.Helper()
	repo := paymenttest.New()
	orders := &recordingOrders{}
	engine, err := reconcile.NewEngine(repo, orders, reconcile.Options{})
	require.NoError(t, err)
	svc := NewService(repo, engine)
	engine.Register(svc)
	return svc, repo, orders
}

func request(txID string) InitiateRequest {
	return InitiateRequest{
		PaymentMethod:  "paypal",
		Status:         "pending",
		Amount:         decimal.RequireFromString("19.99"),
		TransactionID:  txID,
		Items:          []payment.Item{{ProductID: "p1", Name: "Lamp", Price: decimal.RequireFromString("19.99"), Quantity: 1}},
		PaymentDetails: json.RawMessage(`{"payer":{"email":"buyer@example.com"}}`),
	}
}

// --- Tests ---

func TestInitiate(t *testing.T) {
	svc, _, _ := newService(t)

	rec, err := svc.Initiate(context.Background(), request("PAY-1"))
	require.NoError(t, err)

	assert.Equal(t, payment.ChannelWallet, rec.Channel)
	assert.Equal(t, "PAY-1", rec.ExternalID)
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, "paypal", rec.Method)
	assert.Equal(t, payment.StatusPending, rec.Status)

	got, err := svc.Get(context.Background(), "PAY-1")
	require.NoError(t, err)
	wd := got.Detail.(payment.WalletDetail)
	assert.Len(t, wd.Items, 1)
	assert.JSONEq(t, `{"payer":{"email":"buyer@example.com"}}`, string(wd.PaymentDetails))
}

func TestInitiate_RecordsOrderOutcome(t *testing.T) {
	svc, _, orders := newService(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, request("PAY-1"))
	require.NoError(t, err)
	assert.Empty(t, orders.calls)

	req := request("PAY-2")
	req.OrderID = "o1"
	_, err = svc.Initiate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1:pending:PAY-2"}, orders.calls)
}

func TestInitiate_DuplicateTransactionID(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, request("PAY-1"))
	require.NoError(t, err)

	dup := request("PAY-1")
	dup.Status = "completed"
	dup.Amount = decimal.NewFromInt(1)
	_, err = svc.Initiate(ctx, dup)
	require.ErrorIs(t, err, payment.ErrConflict)

	got, err := svc.Get(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
	assert.True(t, decimal.RequireFromString("19.99").Equal(got.Amount))
}

func TestInitiate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(r *InitiateRequest)
	}{
		{"method", "paymentMethod", func(r *InitiateRequest) { r.PaymentMethod = "venmo" }},
		{"status", "status", func(r *InitiateRequest) { r.Status = "expired" }},
		{"unknown status", "status", func(r *InitiateRequest) { r.Status = "done" }},
		{"transaction id", "transactionId", func(r *InitiateRequest) { r.TransactionID = "" }},
		{"amount", "amount", func(r *InitiateRequest) { r.Amount = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newService(t)
			req := request("PAY-1")
			tt.edit(&req)

			_, err := svc.Initiate(context.Background(), req)
			var vErr *payment.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, repo, orders := newService(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.Now = func() time.Time { return created }

	req := request("PAY-1")
	req.OrderID = "o1"
	_, err := svc.Initiate(ctx, req)
	require.NoError(t, err)

	repo.Now = func() time.Time { return created.Add(time.Hour) }
	rec, err := svc.UpdateStatus(ctx, "PAY-1", "completed")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, rec.Status)
	assert.Equal(t, created.Add(time.Hour), rec.UpdatedAt)
	assert.Equal(t, []string{"o1:pending:PAY-1", "o1:completed:PAY-1"}, orders.calls)

	_, err = svc.UpdateStatus(ctx, "PAY-1", "failed")
	require.ErrorIs(t, err, payment.ErrStaleTransition)

	rec, err = svc.UpdateStatus(ctx, "PAY-1", "refunded")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, rec.Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.UpdateStatus(context.Background(), "PAY-404", "completed")
	require.ErrorIs(t, err, payment.ErrNotFound)

	_, err = svc.UpdateStatus(context.Background(), "PAY-404", "requires_action")
	var vErr *payment.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestList_NewestFirst(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"PAY-1", "PAY-2", "PAY-3"} {
		repo.Now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := svc.Initiate(ctx, request(id))
		require.NoError(t, err)
	}

	recs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "PAY-3", recs[0].ExternalID)
	assert.Equal(t, "PAY-1", recs[2].ExternalID)
}

func TestNormalize(t *testing.T) {
	svc := NewService(nil, nil)
	assert.Equal(t, payment.StatusCompleted, svc.Normalize("COMPLETED"))
	assert.Equal(t, payment.StatusRefunded, svc.Normalize("refunded"))
	assert.Equal(t, payment.StatusPending, svc.Normalize("APPROVED"))
	assert.Equal(t, payment.StatusPending, svc.Normalize("expired"))
}
