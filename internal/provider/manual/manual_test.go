package manual

import (
	"context"
	"os"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/artifact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/payment/paymenttest"
	"github.com/xenking/storefront/internal/reconcile"
)

const proofURI = "data:image/png;base64,aGVsbG8="

type nopOrders struct{}

func (nopOrders) RecordPaymentOutcome(context.Context, string, payment.Status, string) (*order.Order, error) {
	return &order.Order{}, nil
}

// failingRepo rejects every insert.
type failingRepo struct {
	*paymenttest.Memory
}

func (failingRepo) Create(context.Context, *payment.Record) error {
	return errors.New("db down")
}

func newService(t *testing.T, repo payment.Repository) (*Service, *artifact.Store) {
	t.Helper()
	store, err := artifact.New(t.TempDir(), "uploads")
	require.NoError(t, err)
	engine, err := reconcile.NewEngine(repo, nopOrders{}, reconcile.Options{})
	require.NoError(t, err)
	svc := NewService(repo, store, engine)
	engine.Register(svc)
	return svc, store
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestInitiate_StoresProofPath(t *testing.T) {
	repo := paymenttest.New()
	svc, store := newService(t, repo)

	rec, err := svc.Initiate(context.Background(), InitiateRequest{
		Method:  "Easypaisa",
		OrderID: "o1",
		Details: map[string]string{"mobileNumber": "03001234567", "paymentProof": proofURI},
		Proof:   proofURI,
	})
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPending, rec.Status)
	md := rec.Detail.(payment.ManualDetail)
	assert.True(t, store.Exists(md.ProofPath))
	assert.NotContains(t, md.Details, "paymentProof")
	assert.Equal(t, "03001234567", md.Details["mobileNumber"])

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, md.ProofPath, stored.Detail.(payment.ManualDetail).ProofPath)
}

func TestInitiate_RejectsUnknownMethod(t *testing.T) {
	svc, _ := newService(t, paymenttest.New())

	_, err := svc.Initiate(context.Background(), InitiateRequest{Method: "Barter"})
	var vErr *payment.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "method", vErr.Field)
}

func TestInitiate_RejectsUnsupportedProof(t *testing.T) {
	svc, store := newService(t, paymenttest.New())

	_, err := svc.Initiate(context.Background(), InitiateRequest{
		Method: "Bank Transfer",
		Proof:  "data:text/plain;base64,aGVsbG8=",
	})
	var vErr *payment.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "paymentProof", vErr.Field)
	assert.Zero(t, countFiles(t, store.Root()+"/payments"))
}

func TestInitiate_PersistFailureRemovesProof(t *testing.T) {
	svc, store := newService(t, failingRepo{paymenttest.New()})

	_, err := svc.Initiate(context.Background(), InitiateRequest{
		Method: "Bank Transfer",
		Proof:  proofURI,
	})
	require.Error(t, err)
	assert.Zero(t, countFiles(t, store.Root()+"/payments"))
}

func TestUpdate_GoesThroughEngine(t *testing.T) {
	repo := paymenttest.New()
	svc, _ := newService(t, repo)
	ctx := context.Background()

	rec, err := svc.Initiate(ctx, InitiateRequest{Method: "Cash on Delivery", Details: map[string]string{"notes": "gate 2"}})
	require.NoError(t, err)

	completed := "completed"
	updated, err := svc.Update(ctx, rec.ID, UpdateRequest{
		Status:  &completed,
		Details: map[string]string{"recipientName": "Bilal"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, updated.Status)
	md := updated.Detail.(payment.ManualDetail)
	assert.Equal(t, "gate 2", md.Details["notes"])
	assert.Equal(t, "Bilal", md.Details["recipientName"])

	pending := "pending"
	_, err = svc.Update(ctx, rec.ID, UpdateRequest{Status: &pending})
	require.ErrorIs(t, err, payment.ErrStaleTransition)

	bogus := "paid"
	_, err = svc.Update(ctx, rec.ID, UpdateRequest{Status: &bogus})
	var vErr *payment.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestGet_OtherChannelIsNotFound(t *testing.T) {
	repo := paymenttest.New()
	svc, _ := newService(t, repo)
	other := repo.Put(payment.Record{Channel: payment.ChannelWallet, ExternalID: "w1", Status: payment.StatusPending})

	_, err := svc.Get(context.Background(), other.ID)
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestDelete_RemovesProof(t *testing.T) {
	repo := paymenttest.New()
	svc, store := newService(t, repo)
	ctx := context.Background()

	rec, err := svc.Initiate(ctx, InitiateRequest{Method: "Jazz Cash", Proof: proofURI})
	require.NoError(t, err)
	proof := rec.Detail.(payment.ManualDetail).ProofPath
	require.True(t, store.Exists(proof))

	require.NoError(t, svc.Delete(ctx, rec.ID))
	assert.False(t, store.Exists(proof))

	_, err = repo.GetByID(ctx, rec.ID)
	require.ErrorIs(t, err, payment.ErrNotFound)
}

func TestNormalize(t *testing.T) {
	svc := &Service{}
	assert.Equal(t, payment.StatusCompleted, svc.Normalize("completed"))
	assert.Equal(t, payment.StatusPending, svc.Normalize("under review"))
}
