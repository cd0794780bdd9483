package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	orderColumns = `id, owner_key, items, shipping_address, payment_method, shipping_method,
		coupon_code, subtotal, discount, tax, shipping_cost, total, created_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
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

// Create persists o. A second Create with the same ID leaves the first row
// untouched, which makes resubmission safe.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	if _, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OwnerKey, items, address, o.PaymentMethod, o.ShippingMethod,
		o.CouponCode, o.Subtotal, o.Discount, o.Tax, o.ShippingCost, o.Total, o.CreatedAt,
	); err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns the order or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o              order.Order
		items, address []byte
		coupon         *string
	)
	err := r.pool.QueryRow(ctx, getOrderByIDSQL, id).Scan(
		&o.ID, &o.OwnerKey, &items, &address, &o.PaymentMethod, &o.ShippingMethod,
		&coupon, &o.Subtotal, &o.Discount, &o.Tax, &o.ShippingCost, &o.Total, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	if coupon != nil {
		o.CouponCode = *coupon
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrapf(err, "order %q items", id)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, errors.Wrapf(err, "order %q address", id)
	}
	return &o, nil
}
