package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// MergePolicy selects how a guest cart is reconciled with an existing user cart.
type MergePolicy string

const (
	// MergePresence keeps an existing user cart untouched and discards the
	// guest cart. The guest cart is only adopted when the user has no record.
	MergePresence MergePolicy = "presence"
	// MergeUnion adds guest lines into an existing user cart, summing matching
	// product/variant lines subject to the stock check.
	MergeUnion MergePolicy = "union"
)

// ParseMergePolicy parses a configured policy name. Empty means MergePresence.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "", MergePresence:
		return MergePresence, nil
	case MergeUnion:
		return MergeUnion, nil
	default:
		return "", errors.Errorf("unknown merge policy %q", s)
	}
}

// Merger reconciles a guest cart into a user cart on login. It must complete
// before any other cart mutation of the same login is served.
type Merger struct {
	repo    Repository
	catalog product.Repository
	policy  MergePolicy
	now     func() time.Time
}

// NewMerger returns a Merger using the given policy.
func NewMerger(repo Repository, catalog product.Repository, policy MergePolicy) *Merger {
	return &Merger{
		repo:    repo,
		catalog: catalog,
		policy:  policy,
		now:     time.Now,
	}
}

// Merge runs the login transition from guest to user and returns the user's
// resulting cart. The guest record never survives a merge.
func (m *Merger) Merge(ctx context.Context, guest, user Owner) (*Cart, error) {
	if !guest.IsGuest() {
		return nil, errors.Wrap(ErrInvalidOwner, "merge source must be a guest")
	}
	if user.IsGuest() {
		return nil, errors.Wrap(ErrInvalidOwner, "merge target must be a user")
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("guest", guest.Key()),
		zap.String("user", user.Key()),
		zap.String("policy", string(m.policy)),
	)

	userCart, err := m.get(ctx, user)
	if err != nil {
		return nil, err
	}

	if userCart != nil && m.policy != MergeUnion {
		if err := m.repo.Delete(ctx, guest); err != nil {
			return nil, errors.Wrapf(err, "delete guest cart %s", guest)
		}
		lg.Debug("User cart kept, guest cart discarded")
		return userCart, nil
	}

	guestCart, err := m.get(ctx, guest)
	if err != nil {
		return nil, err
	}

	switch {
	case guestCart == nil && userCart == nil:
		lg.Debug("No carts to merge")
		return &Cart{Owner: user}, nil
	case guestCart == nil:
		return userCart, nil
	case userCart == nil:
		userCart = &Cart{Owner: user, Items: guestCart.Items}
		lg.Debug("Guest cart transferred", zap.Int("lines", len(guestCart.Items)))
	default:
		if err := m.union(ctx, userCart, guestCart); err != nil {
			return nil, err
		}
		lg.Debug("Guest cart merged into user cart", zap.Int("lines", len(userCart.Items)))
	}

	userCart.Owner = user
	userCart.UpdatedAt = m.now()
	// Save before delete so a failure in between never loses the guest's items.
	if err := m.repo.Save(ctx, userCart); err != nil {
		return nil, errors.Wrapf(err, "save cart %s", user)
	}
	if err := m.repo.Delete(ctx, guest); err != nil {
		return nil, errors.Wrapf(err, "delete guest cart %s", guest)
	}
	return userCart, nil
}

func (m *Merger) get(ctx context.Context, owner Owner) (*Cart, error) {
	c, err := m.repo.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load cart %s", owner)
	}
	return c, nil
}

// union folds guest lines into dst. A line whose combined quantity fails the
// stock check keeps the user's quantity; a new line that fails it is dropped.
func (m *Merger) union(ctx context.Context, dst, src *Cart) error {
	lg := zctx.From(ctx)
	for _, line := range src.Items {
		live, err := m.catalog.GetByID(ctx, line.Product.ID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				lg.Debug("Guest line dropped, product gone", zap.String("product_id", line.Product.ID))
				continue
			}
			return errors.Wrapf(err, "get product %s", line.Product.ID)
		}

		i := dst.indexOf(line.Product.ID, line.Variant)
		if i < 0 {
			if err := stock.CanSetQuantity(*live, line.Quantity); err != nil {
				lg.Debug("Guest line dropped", zap.Error(err))
				continue
			}
			dst.Items = append(dst.Items, line)
			continue
		}

		combined := dst.Items[i].Quantity + line.Quantity
		if err := stock.CanSetQuantity(*live, combined); err != nil {
			lg.Debug("Guest quantity not merged", zap.Error(err))
			continue
		}
		dst.Items[i].Quantity = combined
		dst.Items[i].Product.Stock = live.Stock
	}
	return nil
}
