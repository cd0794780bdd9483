package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
)

// ProductNotFoundError indicates an ordered product no longer exists.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

var _ Placer = (*Service)(nil)

// Service places orders: it re-checks stock against the catalog and persists
// the order. It does not reserve or decrement stock.
type Service struct {
	products product.Repository
	orders   Repository
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
		now:      time.Now,
	}
}

// PlaceOrder validates o, fetches its products in a single batch to confirm
// stock, and persists it. An order without ID gets one; submitting the same
// ID again is idempotent and confirms the order stored first.
func (s *Service) PlaceOrder(ctx context.Context, o *Order) (*Confirmation, error) {
	if len(o.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(o.Items))
	for i, item := range o.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Quantities of the same product across variants share one stock.
	requested := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		requested[item.ProductID] += item.Quantity
	}
	for _, item := range o.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if err := stock.CanSetQuantity(p, requested[item.ProductID]); err != nil {
			return nil, err
		}
	}

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// A resubmitted ID keeps the first stored row; confirm what was stored.
	stored, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "read back order %q", o.ID)
	}
	return &Confirmation{
		OrderID:   stored.ID,
		Total:     stored.Total,
		CreatedAt: stored.CreatedAt,
	}, nil
}
