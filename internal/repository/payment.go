package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

const (
	paymentColumns = `id, channel, external_id, order_id, amount, currency, method, status, detail,
		expires_at, created_at, updated_at`

	createPaymentSQL = `INSERT INTO payments (id, channel, external_id, order_id, amount, currency, method,
		status, detail, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	getPaymentByIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getPaymentByExternalIDSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE channel = $1 AND external_id = $2`

	listPaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments
		WHERE ($1::text = '' OR channel = $1)
			AND ($2::text = '' OR order_id = $2)
			AND ($3::text = '' OR status = $3)
		ORDER BY created_at DESC, id`

	// The status guard makes the update a compare-and-set: a concurrent
	// writer that changed the status first leaves this statement with no
	// rows.
	casPaymentStatusSQL = `UPDATE payments SET status = $4, detail = COALESCE($5::jsonb, detail), updated_at = now()
		WHERE channel = $1 AND external_id = $2 AND status = $3
		RETURNING ` + paymentColumns

	updatePaymentDetailSQL = `UPDATE payments SET detail = $3, updated_at = now()
		WHERE channel = $1 AND external_id = $2
		RETURNING ` + paymentColumns

	paymentExistsSQL = `SELECT EXISTS (SELECT 1 FROM payments WHERE channel = $1 AND external_id = $2)`

	deletePaymentSQL = `DELETE FROM payments WHERE id = $1 RETURNING ` + paymentColumns
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
// Channel details are stored as JSONB and decoded by channel tag.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a record. A second record with the same channel and
// external id is rejected with payment.ErrConflict.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Record) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	detail, err := payment.MarshalDetail(p.Detail)
	if err != nil {
		return fmt.Errorf("marshaling payment detail: %w", err)
	}

	err = r.pool.QueryRow(ctx, createPaymentSQL,
		p.ID, string(p.Channel), p.ExternalID, nullable(p.OrderID), p.Amount, p.Currency, p.Method,
		string(p.Status), detail, p.ExpiresAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrConflict
		}
		return fmt.Errorf("creating payment %s/%s: %w", p.Channel, p.ExternalID, err)
	}
	return nil
}

// GetByID returns a record by its internal identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Record, error) {
	return r.one(ctx, getPaymentByIDSQL, id)
}

// GetByExternalID returns a record by its provider transaction id.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, ch payment.Channel, externalID string) (*payment.Record, error) {
	return r.one(ctx, getPaymentByExternalIDSQL, string(ch), externalID)
}

// List returns records matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, f payment.Filter) ([]payment.Record, error) {
	rows, err := r.pool.Query(ctx, listPaymentsSQL, string(f.Channel), f.OrderID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	return recs, nil
}

// CompareAndSetStatus moves a record from one status to another only if
// the stored status still equals from.
func (r *PaymentRepository) CompareAndSetStatus(
	ctx context.Context,
	ch payment.Channel,
	externalID string,
	from, to payment.Status,
	detail payment.Detail,
) (*payment.Record, error) {
	var detailJSON []byte
	if detail != nil {
		var err error
		if detailJSON, err = payment.MarshalDetail(detail); err != nil {
			return nil, fmt.Errorf("marshaling payment detail: %w", err)
		}
	}

	rec, err := r.one(ctx, casPaymentStatusSQL, string(ch), externalID, string(from), string(to), detailJSON)
	if !errors.Is(err, payment.ErrNotFound) {
		return rec, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, paymentExistsSQL, string(ch), externalID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking payment %s/%s: %w", ch, externalID, err)
	}
	if exists {
		return nil, payment.ErrStatusChanged
	}
	return nil, payment.ErrNotFound
}

// UpdateDetail overwrites the channel payload of a record.
func (r *PaymentRepository) UpdateDetail(ctx context.Context, ch payment.Channel, externalID string, detail payment.Detail) (*payment.Record, error) {
	detailJSON, err := payment.MarshalDetail(detail)
	if err != nil {
		return nil, fmt.Errorf("marshaling payment detail: %w", err)
	}
	return r.one(ctx, updatePaymentDetailSQL, string(ch), externalID, detailJSON)
}

// Delete removes a record and returns it as it was stored.
func (r *PaymentRepository) Delete(ctx context.Context, id string) (*payment.Record, error) {
	return r.one(ctx, deletePaymentSQL, id)
}

func (r *PaymentRepository) one(ctx context.Context, sql string, args ...any) (*payment.Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	return &rec, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Record, error) {
	var (
		p                    payment.Record
		channel, status      string
		orderID              *string
		amount               decimal.Decimal
		detail               []byte
		expiresAt            *time.Time
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&p.ID, &channel, &p.ExternalID, &orderID, &amount, &p.Currency, &p.Method, &status, &detail,
		&expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return payment.Record{}, err
	}

	p.Channel = payment.Channel(channel)
	p.Status = payment.Status(status)
	if p.Detail, err = payment.UnmarshalDetail(p.Channel, detail); err != nil {
		return payment.Record{}, err
	}
	if orderID != nil {
		p.OrderID = *orderID
	}
	p.Amount = amount
	p.ExpiresAt = expiresAt
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
