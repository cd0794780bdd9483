package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// SettingsProvider supplies coupon, tax and shipping configuration. The three
// lists are not required to be consistent with each other.
type SettingsProvider interface {
	ListCoupons(ctx context.Context) ([]coupon.Coupon, error)
	ListTaxRules(ctx context.Context) ([]pricing.TaxRule, error)
	ListShippingMethods(ctx context.Context) ([]pricing.ShippingMethod, error)
}

// Settings is the configuration snapshot a checkout session works with.
type Settings struct {
	Coupons         []coupon.Coupon
	TaxRules        []pricing.TaxRule
	ShippingMethods []pricing.ShippingMethod
}

// FetchSettings loads all three lists concurrently. Any failure fails the
// whole fetch; nothing is defaulted.
func FetchSettings(ctx context.Context, p SettingsProvider) (*Settings, error) {
	var s Settings
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if s.Coupons, err = p.ListCoupons(ctx); err != nil {
			return errors.Wrap(err, "list coupons")
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.TaxRules, err = p.ListTaxRules(ctx); err != nil {
			return errors.Wrap(err, "list tax rules")
		}
		return nil
	})
	g.Go(func() (err error) {
		if s.ShippingMethods, err = p.ListShippingMethods(ctx); err != nil {
			return errors.Wrap(err, "list shipping methods")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ShippingMethod returns the configured method with the given name.
func (s *Settings) ShippingMethod(name string) (pricing.ShippingMethod, bool) {
	for _, m := range s.ShippingMethods {
		if m.Name == name {
			return m, true
		}
	}
	return pricing.ShippingMethod{}, false
}
