// Package manual implements proof-of-payment submissions. The channel has
// no provider side: records are created by the buyer and moved between
// statuses by an administrator.
package manual

import (
	"context"
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/artifact"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/reconcile"
)

// Methods lists the accepted manual payment methods.
var Methods = []string{
	"Credit Card",
	"Debit Card",
	"Easypaisa",
	"Jazz Cash",
	"Bank Account Transfer",
	"Bank Transfer",
	"Cash on Delivery",
}

// ProofPolicy restricts uploaded proofs to images and PDFs up to 5 MiB.
var ProofPolicy = artifact.Policy{
	MaxBytes: 5 << 20,
	Types:    []string{"image/jpeg", "image/png", "image/jpg", "application/pdf"},
}

const proofDir = "payments"

// InitiateRequest is a proof-of-payment submission.
type InitiateRequest struct {
	Method  string
	OrderID string
	Details map[string]string
	// Proof is an inline data URI. It is decoded and stored, only the
	// resulting path is persisted.
	Proof string
	// ProofPath is an already stored proof, for multipart uploads.
	ProofPath string
	Amount    decimal.Decimal
	Currency  string
}

// UpdateRequest is an administrator change. Nil fields are left as is.
type UpdateRequest struct {
	Status  *string
	Details map[string]string
}

// Service handles the manual channel.
type Service struct {
	payments payment.Repository
	store    *artifact.Store
	engine   *reconcile.Engine
}

var _ reconcile.Adapter = (*Service)(nil)

// NewService creates a manual channel Service.
func NewService(payments payment.Repository, store *artifact.Store, engine *reconcile.Engine) *Service {
	return &Service{payments: payments, store: store, engine: engine}
}

func (s *Service) Channel() payment.Channel { return payment.ChannelManual }

// Normalize accepts the normalized vocabulary directly, anything else is
// treated as still pending review.
func (s *Service) Normalize(native string) payment.Status {
	st, err := payment.ParseStatus(native)
	if err != nil {
		return payment.StatusPending
	}
	return st
}

// Initiate stores the proof artifact and persists a pending record. The
// artifact is removed again if the record cannot be saved.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*payment.Record, error) {
	if !slices.Contains(Methods, req.Method) {
		return nil, payment.Invalid("method", "unsupported payment method "+req.Method)
	}

	details := maps.Clone(req.Details)
	if details == nil {
		details = map[string]string{}
	}
	delete(details, "paymentProof")

	proof := req.ProofPath
	if req.Proof != "" && artifact.IsDataURI(req.Proof) {
		p, err := s.store.SaveDataURI(proofDir, "payment", req.Proof, ProofPolicy)
		if err != nil {
			if errors.Is(err, artifact.ErrInvalidDataURI) ||
				errors.Is(err, artifact.ErrUnsupportedType) ||
				errors.Is(err, artifact.ErrTooLarge) {
				return nil, payment.Invalid("paymentProof", err.Error())
			}
			return nil, errors.Wrap(err, "store payment proof")
		}
		proof = p
	}

	rec := &payment.Record{
		Channel:    payment.ChannelManual,
		ExternalID: "manual_" + uuid.New().String(),
		OrderID:    req.OrderID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		Status:     payment.StatusPending,
		Detail:     payment.ManualDetail{Details: details, ProofPath: proof},
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		if proof != "" {
			if rmErr := s.store.Remove(proof); rmErr != nil {
				zctx.From(ctx).Warn("Remove orphaned payment proof",
					zap.String("path", proof),
					zap.Error(rmErr),
				)
			}
		}
		return nil, errors.Wrap(err, "create payment")
	}
	s.engine.RecordCreated(ctx, rec)
	return rec, nil
}

// List returns manual payments, newest first.
func (s *Service) List(ctx context.Context) ([]payment.Record, error) {
	recs, err := s.payments.List(ctx, payment.Filter{Channel: payment.ChannelManual})
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	return recs, nil
}

// Get returns a manual payment by its internal id.
func (s *Service) Get(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	if rec.Channel != payment.ChannelManual {
		return nil, payment.ErrNotFound
	}
	return rec, nil
}

// Update applies an administrator change through the reconciliation
// engine, so a final status is never overwritten.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*payment.Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := rec.Status
	if req.Status != nil {
		if status, err = payment.ParseStatus(*req.Status); err != nil {
			return nil, err
		}
	}

	ev := reconcile.Event{
		Channel:    payment.ChannelManual,
		ExternalID: rec.ExternalID,
		Status:     status,
		Source:     reconcile.SourceAdmin,
	}
	if req.Details != nil {
		ev.Refresh = func(d payment.Detail) payment.Detail {
			md, _ := d.(payment.ManualDetail)
			merged := maps.Clone(md.Details)
			if merged == nil {
				merged = map[string]string{}
			}
			for k, v := range req.Details {
				if k == "paymentProof" {
					continue
				}
				merged[k] = v
			}
			md.Details = merged
			return md
		}
	}

	res, err := s.engine.Apply(ctx, ev)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Delete removes a manual payment together with its proof artifact.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	rec, err := s.payments.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete payment")
	}
	if md, ok := rec.Detail.(payment.ManualDetail); ok && md.ProofPath != "" {
		if err := s.store.Remove(md.ProofPath); err != nil {
			zctx.From(ctx).Warn("Remove payment proof", zap.String("path", md.ProofPath), zap.Error(err))
		}
	}
	return nil
}
