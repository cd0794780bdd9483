// Package redis stores carts in Redis. Guest carts expire after a period of
// inactivity; user carts are kept until deleted.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/storage/codec"
)

const (
	keyPrefix      = "cart:"
	fieldItems     = "items"
	fieldUpdatedAt = "updated_at"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository keeps each cart in a hash at cart:<owner key>.
type CartRepository struct {
	rdb      redis.UniversalClient
	guestTTL time.Duration
}

// NewCartRepository returns a CartRepository. A zero guestTTL keeps guest
// carts forever.
func NewCartRepository(rdb redis.UniversalClient, guestTTL time.Duration) *CartRepository {
	return &CartRepository{rdb: rdb, guestTTL: guestTTL}
}

func cartKey(owner cart.Owner) string { return keyPrefix + owner.Key() }

// Get returns the owner's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	fields, err := r.rdb.HGetAll(ctx, cartKey(owner)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "get cart %s", owner)
	}
	items, ok := fields[fieldItems]
	if !ok {
		return nil, cart.ErrNotFound
	}

	c := &cart.Cart{Owner: owner}
	if c.Items, err = codec.DecodeItems([]byte(items)); err != nil {
		return nil, errors.Wrapf(err, "cart %s", owner)
	}
	if ts := fields[fieldUpdatedAt]; ts != "" {
		if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errors.Wrapf(err, "cart %s updated_at", owner)
		}
	}
	return c, nil
}

// Save replaces the owner's cart and refreshes the guest expiry.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	key := cartKey(c.Owner)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldItems, codec.EncodeItems(c.Items),
			fieldUpdatedAt, c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if c.Owner.IsGuest() && r.guestTTL > 0 {
			pipe.Expire(ctx, key, r.guestTTL)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save cart %s", c.Owner)
	}
	return nil
}

// Delete removes the owner's cart. Deleting a missing cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, owner cart.Owner) error {
	if err := r.rdb.Del(ctx, cartKey(owner)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart %s", owner)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
