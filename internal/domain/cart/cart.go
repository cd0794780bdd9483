// Package cart owns cart state for a single owner identity: line items,
// stock-guarded mutations, and the guest-to-user merge performed at login.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

var (
	// ErrNotFound is returned by a Repository when no cart record exists for an owner.
	ErrNotFound = errors.New("cart not found")
	// ErrLineNotFound is returned when a line item ID is not present in the cart.
	ErrLineNotFound = errors.New("line item not found")
	// ErrInvalidQuantity is returned when an item is added with a quantity below one.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrInvalidOwner is returned when an owner identity is malformed or of the wrong kind.
	ErrInvalidOwner = errors.New("invalid cart owner")
)

// GuestKey is the storage key for guest carts. Guest sessions are namespaced
// under it so a guest key never collides with a user key.
const GuestKey = "guest"

// OwnerKind distinguishes guest and authenticated cart owners.
type OwnerKind string

const (
	OwnerGuest OwnerKind = "guest"
	OwnerUser  OwnerKind = "user"
)

// Owner identifies who a cart belongs to: a guest session or a user, never both.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// Guest returns the owner for an unauthenticated session.
func Guest(sessionID string) Owner {
	return Owner{Kind: OwnerGuest, ID: sessionID}
}

// User returns the owner for an authenticated user.
func User(userID string) Owner {
	return Owner{Kind: OwnerUser, ID: userID}
}

// IsGuest reports whether the owner is a guest session.
func (o Owner) IsGuest() bool { return o.Kind == OwnerGuest }

// Key returns the durable storage key of the owner's cart.
func (o Owner) Key() string {
	if o.Kind == OwnerGuest {
		if o.ID == "" {
			return GuestKey
		}
		return GuestKey + ":" + o.ID
	}
	return "user:" + o.ID
}

// Validate checks that the owner is usable as a storage key.
func (o Owner) Validate() error {
	switch o.Kind {
	case OwnerGuest:
		return nil
	case OwnerUser:
		if o.ID == "" {
			return errors.Wrap(ErrInvalidOwner, "empty user id")
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidOwner, "unknown kind %q", o.Kind)
	}
}

func (o Owner) String() string { return o.Key() }

// LineItem is one product/variant entry of a cart. Product is a snapshot taken
// when the line was created; catalog price changes do not affect it.
type LineItem struct {
	ID       string
	Product  product.Product
	Quantity int
	Variant  string
	AddedAt  time.Time
}

// Total returns the line total at the snapshot's effective price.
func (l LineItem) Total() decimal.Decimal {
	return l.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered collection of line items. Order is insertion order and
// only matters for display.
type Cart struct {
	Owner     Owner
	Items     []LineItem
	UpdatedAt time.Time
}

// TotalItems returns the sum of all line quantities.
func (c *Cart) TotalItems() int {
	var n int
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

// TotalPrice returns the sum of line totals; a sale price always wins over the list price.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Items {
		total = total.Add(l.Total())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) indexOf(productID, variant string) int {
	for i, l := range c.Items {
		if l.Product.ID == productID && l.Variant == variant {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOfLine(lineID string) int {
	for i, l := range c.Items {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

// Repository is durable per-owner cart storage.
type Repository interface {
	// Get returns ErrNotFound when the owner has no cart record.
	Get(ctx context.Context, owner Owner) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	// Delete removes the owner's record; deleting a missing record is not an error.
	Delete(ctx context.Context, owner Owner) error
}
