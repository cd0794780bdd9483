package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Address is a shipping address as collected during checkout.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

// Item is a single line of a submitted order, priced at its cart snapshot.
type Item struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Variant   string          `json:"variant,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the finalized checkout payload.
type Order struct {
	ID              string
	OwnerKey        string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   string
	ShippingMethod  string
	CouponCode      string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	CreatedAt       time.Time
}

// Confirmation acknowledges a placed order.
type Confirmation struct {
	OrderID   string
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Placer submits finalized orders.
type Placer interface {
	PlaceOrder(ctx context.Context, o *Order) (*Confirmation, error)
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores o. Creating an order whose ID already exists is a no-op.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}
