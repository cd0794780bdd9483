package cart

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// Store performs cart mutations for a single owner. Every mutation loads the
// current cart, applies the change and saves it before returning, so the
// returned cart is exactly what storage holds.
type Store struct {
	repo    Repository
	catalog product.Repository
	owner   Owner
	now     func() time.Time
}

// NewStore returns a Store scoped to owner.
func NewStore(repo Repository, catalog product.Repository, owner Owner) *Store {
	return &Store{
		repo:    repo,
		catalog: catalog,
		owner:   owner,
		now:     time.Now,
	}
}

// Owner returns the identity this store is scoped to.
func (s *Store) Owner() Owner { return s.owner }

// Cart returns the owner's cart. A missing record yields an empty cart that is
// not persisted until the first mutation.
func (s *Store) Cart(ctx context.Context) (*Cart, error) {
	c, err := s.repo.Get(ctx, s.owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{Owner: s.owner}, nil
		}
		return nil, errors.Wrapf(err, "load cart %s", s.owner)
	}
	return c, nil
}

// AddItem adds quantity units of p with the given variant. An existing line
// with the same product and variant is increased; the whole operation is
// rejected with stock.ErrInsufficientStock if the resulting quantity exceeds
// p.Stock.
func (s *Store) AddItem(ctx context.Context, p product.Product, quantity int, variant string) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.addLine(c, p, quantity, variant); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}

	zctx.From(ctx).Debug("Cart item added",
		zap.String("owner", s.owner.Key()),
		zap.String("product_id", p.ID),
		zap.Int("quantity", quantity),
	)
	return c, nil
}

func (s *Store) addLine(c *Cart, p product.Product, quantity int, variant string) error {
	if i := c.indexOf(p.ID, variant); i >= 0 {
		requested := c.Items[i].Quantity + quantity
		if err := stock.CanSetQuantity(p, requested); err != nil {
			return err
		}
		c.Items[i].Quantity = requested
		c.Items[i].Product.Stock = p.Stock
		return nil
	}

	if err := stock.CanSetQuantity(p, quantity); err != nil {
		return err
	}
	now := s.now()
	c.Items = append(c.Items, LineItem{
		ID:       lineID(p.ID, variant, now),
		Product:  p,
		Quantity: quantity,
		Variant:  variant,
		AddedAt:  now,
	})
	return nil
}

// UpdateQuantity sets a line's quantity. Zero or negative removes the line.
// Stock is re-read from the catalog; a rejected update keeps the previous quantity.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, lineID)
	}

	c, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	i := c.indexOfLine(lineID)
	if i < 0 {
		return nil, ErrLineNotFound
	}

	live, err := s.catalog.GetByID(ctx, c.Items[i].Product.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", c.Items[i].Product.ID)
	}
	if err := stock.CanSetQuantity(*live, quantity); err != nil {
		return nil, err
	}

	c.Items[i].Quantity = quantity
	c.Items[i].Product.Stock = live.Stock
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem deletes a line. Removing an absent line is a no-op.
func (s *Store) RemoveItem(ctx context.Context, lineID string) (*Cart, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	i := c.indexOfLine(lineID)
	if i < 0 {
		return c, nil
	}

	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart. The cart record itself is kept.
func (s *Store) Clear(ctx context.Context) (*Cart, error) {
	c := &Cart{Owner: s.owner}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ReorderLine is a product/variant/quantity triple taken from a past order.
type ReorderLine struct {
	ProductID string
	Variant   string
	Quantity  int
}

// SkippedLine is a reorder line that could not be added, with the reason.
type SkippedLine struct {
	Line   ReorderLine
	Reason error
}

// Reorder adds the lines of a previous order using live catalog data. Lines
// whose product no longer exists or whose quantity fails the stock check are
// skipped and reported; the remaining lines are saved in one write.
func (s *Store) Reorder(ctx context.Context, lines []ReorderLine) (*Cart, []SkippedLine, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		skipped []SkippedLine
		added   int
	)
	for _, line := range lines {
		if line.Quantity < 1 {
			skipped = append(skipped, SkippedLine{Line: line, Reason: ErrInvalidQuantity})
			continue
		}
		p, err := s.catalog.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				skipped = append(skipped, SkippedLine{Line: line, Reason: err})
				continue
			}
			return nil, nil, errors.Wrapf(err, "get product %s", line.ProductID)
		}
		if err := s.addLine(c, *p, line.Quantity, line.Variant); err != nil {
			skipped = append(skipped, SkippedLine{Line: line, Reason: err})
			continue
		}
		added++
	}

	if added > 0 {
		if err := s.save(ctx, c); err != nil {
			return nil, nil, err
		}
	}
	return c, skipped, nil
}

func (s *Store) save(ctx context.Context, c *Cart) error {
	c.Owner = s.owner
	c.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, c); err != nil {
		return errors.Wrapf(err, "save cart %s", s.owner)
	}
	return nil
}

// lineID derives a line identifier from the product, the variant and the
// creation instant. The variant is hashed so the ID stays URL-safe.
func lineID(productID, variant string, at time.Time) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(variant))
	return fmt.Sprintf("%s-%08x-%d", productID, h.Sum32(), at.UnixNano())
}
