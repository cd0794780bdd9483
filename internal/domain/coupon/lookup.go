package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Lookup finds code in coupons, ignoring case. This is the only place codes
// are resolved.
func Lookup(coupons []Coupon, code string) (*Coupon, error) {
	want := NormalizeCode(code)
	if want == "" {
		return nil, ErrInvalidCoupon
	}
	for i := range coupons {
		if NormalizeCode(coupons[i].Code) == want {
			c := coupons[i]
			return &c, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidCoupon, "code %q not found", code)
}

// Validate checks that c may be applied to an order with the given subtotal.
func Validate(c *Coupon, subtotal decimal.Decimal) error {
	if err := c.Check(); err != nil {
		return errors.Wrap(ErrInvalidCoupon, err.Error())
	}
	if subtotal.LessThan(c.MinAmount) {
		return errors.Wrapf(ErrInvalidCoupon, "subtotal %s below minimum %s for %s",
			subtotal.StringFixed(2), c.MinAmount.StringFixed(2), c.Code)
	}
	return nil
}

// Resolve looks up code and validates it against subtotal in one step.
func Resolve(coupons []Coupon, code string, subtotal decimal.Decimal) (*Coupon, error) {
	c, err := Lookup(coupons, code)
	if err != nil {
		return nil, err
	}
	if err := Validate(c, subtotal); err != nil {
		return nil, err
	}
	return c, nil
}
