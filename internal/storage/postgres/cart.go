package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/storage/codec"
)

const (
	getCartSQL = `SELECT items, updated_at FROM carts WHERE owner_key = $1`

	saveCartSQL = `INSERT INTO carts (owner_key, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key) DO UPDATE SET
			items = EXCLUDED.items,
			updated_at = EXCLUDED.updated_at`

	deleteCartSQL = `DELETE FROM carts WHERE owner_key = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores one cart record per owner key, with line items in a
// JSONB column.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the owner's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	c := &cart.Cart{Owner: owner}
	var items []byte
	err := r.pool.QueryRow(ctx, getCartSQL, owner.Key()).Scan(&items, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart %s", owner)
	}
	if c.Items, err = codec.DecodeItems(items); err != nil {
		return nil, errors.Wrapf(err, "cart %s", owner)
	}
	return c, nil
}

// Save replaces the owner's cart record.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	if _, err := r.pool.Exec(ctx, saveCartSQL,
		c.Owner.Key(), codec.EncodeItems(c.Items), c.UpdatedAt,
	); err != nil {
		return errors.Wrapf(err, "save cart %s", c.Owner)
	}
	return nil
}

// Delete removes the owner's cart record. Deleting a missing record is not an error.
func (r *CartRepository) Delete(ctx context.Context, owner cart.Owner) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, owner.Key()); err != nil {
		return errors.Wrapf(err, "delete cart %s", owner)
	}
	return nil
}
