package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teakspice/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items, the address snapshot, payment, shipment and notes are JSONB columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	notes := o.Notes
	if notes == nil {
		notes = []order.Note{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, email, items, shipping_address, subtotal, discount_amount,
			shipping_fee, total_amount, coupon_code, shipping_quote, status, payment, shipment, notes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.UserID, o.Email, o.Items, o.ShippingAddress, o.Subtotal, o.DiscountAmount,
		o.ShippingFee, o.TotalAmount, o.CouponCode, o.ShippingQuote, string(o.Status), o.Payment, o.Shipment, notes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %s", o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, email, items, shipping_address, subtotal, discount_amount, shipping_fee,
			total_amount, coupon_code, shipping_quote, status, payment, shipment, notes, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(
		&o.ID, &o.UserID, &o.Email, &o.Items, &o.ShippingAddress, &o.Subtotal, &o.DiscountAmount, &o.ShippingFee,
		&o.TotalAmount, &o.CouponCode, &o.ShippingQuote, &o.Status, &o.Payment, &o.Shipment, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	o.ShippingAddress.UserID = o.UserID
	return &o, nil
}

// UpdateState writes status and payment when the stored status equals
// expected.
func (r *OrderRepository) UpdateState(ctx context.Context, o *order.Order, expected order.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $2, payment = $3, updated_at = $4
		WHERE id = $1 AND status = $5`,
		o.ID, string(o.Status), o.Payment, o.UpdatedAt, string(expected),
	)
	if err != nil {
		return errors.Wrapf(err, "update order %s", o.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missingOr(ctx, o.ID, order.ErrStateConflict)
}

func (r *OrderRepository) SetShipment(ctx context.Context, id string, s *order.Shipment) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET shipment = $2 WHERE id = $1`, id, s)
	if err != nil {
		return errors.Wrapf(err, "set shipment of %s", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// AddNote appends n to the order's notes.
func (r *OrderRepository) AddNote(ctx context.Context, id string, n order.Note) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET notes = notes || jsonb_build_array($2::jsonb) WHERE id = $1`, id, n)
	if err != nil {
		return errors.Wrapf(err, "add note to %s", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) HasCompletedOrder(ctx context.Context, userID string) (bool, error) {
	ok, err := exists(ctx, r.pool, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = $1 AND status IN ('confirmed', 'processing', 'shipped', 'delivered')
		)`, userID)
	if err != nil {
		return false, errors.Wrap(err, "check completed orders")
	}
	return ok, nil
}

func (r *OrderRepository) missingOr(ctx context.Context, id string, otherwise error) error {
	ok, err := exists(ctx, r.pool, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id)
	if err != nil {
		return errors.Wrapf(err, "check order %s", id)
	}
	if !ok {
		return order.ErrNotFound
	}
	return otherwise
}
