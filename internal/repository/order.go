package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, customer, products, total_products, total_quantity, grand_total,
		shipping_method, payment_method, payment_status, status, payment_refs, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, customer, products, total_products, total_quantity, grand_total,
		shipping_method, payment_method, payment_status, status, payment_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR payment_status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	countOrdersSQL = `SELECT count(*) FROM orders
		WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR payment_status = $2)`

	// A NULL $9 leaves payment_status to RecordPayment.
	updateOrderSQL = `UPDATE orders SET customer = $2, products = $3, total_products = $4,
		total_quantity = $5, grand_total = $6, shipping_method = $7, payment_method = $8,
		payment_status = COALESCE($9::text, payment_status), status = $10, updated_at = now()
		WHERE id = $1
		RETURNING payment_status, payment_refs, updated_at`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	// The keep check and the ref append run in one statement so concurrent
	// outcomes for the same order cannot interleave.
	recordPaymentSQL = `UPDATE orders SET
		payment_status = CASE WHEN payment_status = ANY($3::text[]) THEN payment_status ELSE $2::text END,
		payment_refs = CASE WHEN $4::text = '' OR $4::text = ANY(payment_refs) THEN payment_refs
			ELSE array_append(payment_refs, $4::text) END,
		updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Customer and line items are serialized to
// JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	customer, products, err := marshalOrder(o)
	if err != nil {
		return err
	}
	refs := o.PaymentRefs
	if refs == nil {
		refs = []string{}
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, customer, products, o.TotalProducts, o.TotalQuantity, o.GrandTotal,
		o.ShippingMethod, o.PaymentMethod, string(o.PaymentStatus), string(o.Status), refs,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by its identifier.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns one page of orders, newest first, and the total number of
// orders matching the filter.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, string(f.Status), string(f.PaymentStatus)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), string(f.PaymentStatus), f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// Update overwrites the mutable columns of the order. payment_status is
// written only when setPaymentStatus is true; the stored payment summary
// and refs are read back into o either way.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, setPaymentStatus bool) error {
	customer, products, err := marshalOrder(o)
	if err != nil {
		return err
	}

	var paymentStatus *string
	if setPaymentStatus {
		s := string(o.PaymentStatus)
		paymentStatus = &s
	}

	var stored string
	err = r.pool.QueryRow(ctx, updateOrderSQL,
		o.ID, customer, products, o.TotalProducts, o.TotalQuantity, o.GrandTotal,
		o.ShippingMethod, o.PaymentMethod, paymentStatus, string(o.Status),
	).Scan(&stored, &o.PaymentRefs, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	o.PaymentStatus = order.PaymentStatus(stored)
	return nil
}

// Delete removes an order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// RecordPayment updates the payment summary unless the stored summary is
// one of keep, and appends ref to the order's payment references once.
func (r *OrderRepository) RecordPayment(
	ctx context.Context,
	id string,
	status order.PaymentStatus,
	keep []order.PaymentStatus,
	ref string,
) (*order.Order, error) {
	keepStrs := make([]string, len(keep))
	for i, k := range keep {
		keepStrs[i] = string(k)
	}

	rows, err := r.pool.Query(ctx, recordPaymentSQL, id, string(status), keepStrs, ref)
	if err != nil {
		return nil, fmt.Errorf("recording payment on order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("recording payment on order %q: %w", id, err)
	}
	return &o, nil
}

func marshalOrder(o *order.Order) (customer, products []byte, err error) {
	customer, err = json.Marshal(o.Customer)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order customer: %w", err)
	}
	items := o.Products
	if items == nil {
		items = []order.LineItem{}
	}
	products, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling order products: %w", err)
	}
	return customer, products, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                       order.Order
		customer, products      []byte
		totalProducts, totalQty int32
		grandTotal              decimal.Decimal
		paymentStatus, status   string
		createdAt, updatedAt    time.Time
	)
	err := row.Scan(
		&o.ID, &customer, &products, &totalProducts, &totalQty, &grandTotal,
		&o.ShippingMethod, &o.PaymentMethod, &paymentStatus, &status, &o.PaymentRefs,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order customer: %w", err)
	}
	if err := json.Unmarshal(products, &o.Products); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order products: %w", err)
	}
	o.TotalProducts = int(totalProducts)
	o.TotalQuantity = int(totalQty)
	o.GrandTotal = grandTotal
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}
