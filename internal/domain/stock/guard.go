// Package stock guards cart quantities against available product stock.
package stock

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// ErrInsufficientStock matches every *InsufficientStockError.
var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError reports a requested quantity above available stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CanSetQuantity checks whether a line for p may hold requested units.
// The check is a rejection, never a clamp.
func CanSetQuantity(p product.Product, requested int) error {
	if requested > p.Stock {
		return &InsufficientStockError{
			ProductID: p.ID,
			Requested: requested,
			Available: p.Stock,
		}
	}
	return nil
}
