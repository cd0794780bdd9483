// Package pricing computes an order's itemized total: discount, then tax on
// the discounted subtotal, then shipping.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

// FreeShippingName is the only shipping method name whose MinFree threshold
// is honoured.
const FreeShippingName = "Free Shipping"

// TaxRule maps the closed subtotal range [Min, Max] to a rate. A null Max
// leaves the range open upwards.
type TaxRule struct {
	Min  decimal.Decimal
	Max  decimal.NullDecimal
	Rate decimal.Decimal
}

// Contains reports whether amount falls within the rule's range.
func (r TaxRule) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(r.Min) {
		return false
	}
	return !r.Max.Valid || amount.LessThanOrEqual(r.Max.Decimal)
}

// ShippingMethod is a selectable delivery option with a flat cost.
type ShippingMethod struct {
	Name    string
	Cost    decimal.Decimal
	MinFree decimal.NullDecimal
}

// FreeShippingShortfall returns how much the subtotal is short of the
// method's free-shipping threshold. ok is false when the method has no
// threshold or the threshold is met.
func (m ShippingMethod) FreeShippingShortfall(subtotal decimal.Decimal) (shortfall decimal.Decimal, ok bool) {
	if m.Name != FreeShippingName || !m.MinFree.Valid {
		return decimal.Zero, false
	}
	if subtotal.GreaterThanOrEqual(m.MinFree.Decimal) {
		return decimal.Zero, false
	}
	return m.MinFree.Decimal.Sub(subtotal), true
}

// Breakdown is the itemized result of pricing. Values carry full precision;
// use Rounded for display.
type Breakdown struct {
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	Tax                decimal.Decimal
	ShippingCost       decimal.Decimal
	Total              decimal.Decimal
}

// Rounded returns a copy with every amount rounded to cents.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		Subtotal:           b.Subtotal.Round(2),
		Discount:           b.Discount.Round(2),
		DiscountedSubtotal: b.DiscountedSubtotal.Round(2),
		Tax:                b.Tax.Round(2),
		ShippingCost:       b.ShippingCost.Round(2),
		Total:              b.Total.Round(2),
	}
}

// Engine is the pricing pipeline. It has no state and performs no I/O.
type Engine struct{}

// PriceCart prices c. See Price.
func (e Engine) PriceCart(c *cart.Cart, cp *coupon.Coupon, rules []TaxRule, method ShippingMethod) Breakdown {
	return e.Price(c.TotalPrice(), cp, rules, method)
}

// Price runs the pipeline over subtotal. The coupon, when given, must already
// have been validated against subtotal.
func (Engine) Price(subtotal decimal.Decimal, cp *coupon.Coupon, rules []TaxRule, method ShippingMethod) Breakdown {
	discount := decimal.Zero
	if cp != nil {
		discount = cp.Discount(subtotal)
	}
	discounted := subtotal.Sub(discount)

	tax := decimal.Zero
	if rule, ok := matchTaxRule(rules, discounted); ok {
		tax = discounted.Mul(rule.Rate)
	}

	// Free shipping is judged on the pre-discount subtotal while tax uses the
	// discounted one. This is a business rule: a coupon must not be what
	// unlocks free shipping.
	shipping := method.Cost
	if method.Name == FreeShippingName && method.MinFree.Valid && subtotal.GreaterThanOrEqual(method.MinFree.Decimal) {
		shipping = decimal.Zero
	}

	return Breakdown{
		Subtotal:           subtotal,
		Discount:           discount,
		DiscountedSubtotal: discounted,
		Tax:                tax,
		ShippingCost:       shipping,
		Total:              discounted.Add(tax).Add(shipping),
	}
}

// matchTaxRule returns the first rule whose range contains amount. No match
// means zero tax, not an error.
func matchTaxRule(rules []TaxRule, amount decimal.Decimal) (TaxRule, bool) {
	for _, r := range rules {
		if r.Contains(amount) {
			return r, true
		}
	}
	return TaxRule{}, false
}
