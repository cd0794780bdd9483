package coupon

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes Amount percent off the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat Amount off the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// ErrInvalidCoupon is returned when a coupon code is unknown or the subtotal
// is below the coupon's minimum order amount.
var ErrInvalidCoupon = errors.New("invalid coupon code")

var hundred = decimal.NewFromInt(100)

// Coupon is a discount code gated by a minimum order amount. Codes are
// unique case-insensitively.
type Coupon struct {
	Code        string
	Type        DiscountType
	Amount      decimal.Decimal
	MinAmount   decimal.Decimal
	Description string
}

// Check validates the coupon's own configuration.
func (c Coupon) Check() error {
	switch c.Type {
	case DiscountPercentage, DiscountFixed:
	default:
		return errors.Errorf("coupon %s: unsupported discount type %q", c.Code, c.Type)
	}
	if c.Amount.IsNegative() {
		return errors.Errorf("coupon %s: negative amount", c.Code)
	}
	if c.Type == DiscountPercentage && c.Amount.GreaterThan(hundred) {
		return errors.Errorf("coupon %s: percentage above 100", c.Code)
	}
	if c.MinAmount.IsNegative() {
		return errors.Errorf("coupon %s: negative minimum amount", c.Code)
	}
	return nil
}

// Discount returns the discount for subtotal at full precision. A fixed
// discount never exceeds the subtotal.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Amount).Div(hundred)
	case DiscountFixed:
		amount = decimal.Min(c.Amount, subtotal)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// NormalizeCode returns the canonical (upper-case, trimmed) form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
