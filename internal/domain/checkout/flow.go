package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// Step is a position in the checkout sequence.
type Step int

const (
	StepShipping Step = iota + 1
	StepDelivery
	StepPayment
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepDelivery:
		return "delivery"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// PaymentMethod is the customer's chosen way to pay.
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

// Payment holds the payment step input. Card fields are only required for
// PaymentCard.
type Payment struct {
	Method         PaymentMethod
	CardholderName string
	CardNumber     string
	Expiry         string
	CVV            string
}

// Session is a snapshot of a checkout in progress.
type Session struct {
	ID             string
	Owner          cart.Owner
	Step           Step
	Address        order.Address
	ShippingMethod string
	Payment        Payment
	Coupon         *coupon.Coupon
	Cart           *cart.Cart
	// Pricing is kept at full precision; round with Pricing.Rounded for display.
	Pricing      pricing.Breakdown
	Confirmation *order.Confirmation
	UpdatedAt    time.Time
}

// Closed reports whether the session's order was placed.
func (s Session) Closed() bool { return s.Confirmation != nil }

// Flow drives one checkout session. A Flow is not safe for concurrent use.
type Flow struct {
	session  Session
	store    *cart.Store
	settings *Settings
	placer   order.Placer
	engine   pricing.Engine
	orderID  string
	now      func() time.Time
}

// Begin fetches settings, reads the owner's cart and starts a session at the
// shipping step.
func Begin(ctx context.Context, store *cart.Store, provider SettingsProvider, placer order.Placer) (*Flow, error) {
	settings, err := FetchSettings(ctx, provider)
	if err != nil {
		return nil, errors.Wrap(err, "fetch settings")
	}
	f := &Flow{
		session: Session{
			ID:    uuid.NewString(),
			Owner: store.Owner(),
			Step:  StepShipping,
		},
		store:    store,
		settings: settings,
		placer:   placer,
		now:      time.Now,
	}
	if err := f.refresh(ctx); err != nil {
		return nil, err
	}
	zctx.From(ctx).Debug("Checkout started",
		zap.String("session_id", f.session.ID),
		zap.String("owner", f.session.Owner.Key()),
	)
	return f, nil
}

// Session returns a copy of the current session state.
func (f *Flow) Session() Session { return f.session }

// Settings returns the configuration the session was started with.
func (f *Flow) Settings() *Settings { return f.settings }

// SetAddress replaces the shipping address. Validation happens on Advance.
func (f *Flow) SetAddress(a order.Address) error {
	if err := f.open(); err != nil {
		return err
	}
	f.session.Address = a
	f.touch()
	return nil
}

// SelectShippingMethod chooses a configured shipping method and reprices.
func (f *Flow) SelectShippingMethod(ctx context.Context, name string) error {
	if err := f.open(); err != nil {
		return err
	}
	if _, ok := f.settings.ShippingMethod(name); !ok {
		return errors.Wrapf(ErrUnknownShippingMethod, "%q", name)
	}
	f.session.ShippingMethod = name
	return f.refresh(ctx)
}

// SetPayment replaces the payment details. Validation happens on Advance.
func (f *Flow) SetPayment(p Payment) error {
	if err := f.open(); err != nil {
		return err
	}
	f.session.Payment = p
	f.touch()
	return nil
}

// Advance moves to the next step once every step up to and including the
// current one is complete.
func (f *Flow) Advance(ctx context.Context) error {
	if err := f.open(); err != nil {
		return err
	}
	if f.session.Step >= StepReview {
		return errors.Wrap(ErrInvalidStep, "already at review")
	}
	if err := f.refresh(ctx); err != nil {
		return err
	}
	if err := f.validateThrough(f.session.Step); err != nil {
		return err
	}
	f.session.Step++
	return nil
}

// Back returns to an earlier step. Entered data is kept.
func (f *Flow) Back(step Step) error {
	if err := f.open(); err != nil {
		return err
	}
	if step < StepShipping || step >= f.session.Step {
		return errors.Wrapf(ErrInvalidStep, "cannot go back from %s to %s", f.session.Step, step)
	}
	f.session.Step = step
	f.touch()
	return nil
}

// ApplyCoupon validates code against the current subtotal and reprices. A
// rejected code leaves any previously applied coupon in place.
func (f *Flow) ApplyCoupon(ctx context.Context, code string) error {
	if err := f.open(); err != nil {
		return err
	}
	if err := f.refresh(ctx); err != nil {
		return err
	}
	c, err := coupon.Resolve(f.settings.Coupons, code, f.session.Pricing.Subtotal)
	if err != nil {
		return err
	}
	f.session.Coupon = c
	f.reprice()
	return nil
}

// RemoveCoupon drops the applied coupon and reprices.
func (f *Flow) RemoveCoupon(ctx context.Context) error {
	if err := f.open(); err != nil {
		return err
	}
	f.session.Coupon = nil
	return f.refresh(ctx)
}

// Refresh re-reads the cart and recomputes pricing.
func (f *Flow) Refresh(ctx context.Context) error {
	if err := f.open(); err != nil {
		return err
	}
	return f.refresh(ctx)
}

// Submit places the order from the review step. An applied coupon the cart
// no longer qualifies for fails with coupon.ErrInvalidCoupon and stays
// applied. A backend failure leaves the session at review; retrying sends
// the same order ID so the backend can deduplicate. On success the cart is
// cleared and the session closes.
func (f *Flow) Submit(ctx context.Context) (*order.Confirmation, error) {
	if err := f.open(); err != nil {
		return nil, err
	}
	if f.session.Step != StepReview {
		return nil, errors.Wrapf(ErrInvalidStep, "submit from %s", f.session.Step)
	}
	if err := f.refresh(ctx); err != nil {
		return nil, err
	}
	if err := f.validateThrough(StepPayment); err != nil {
		return nil, err
	}
	if f.session.Cart.IsEmpty() {
		return nil, &ValidationError{Step: StepReview, Fields: []string{"items"}}
	}
	if c := f.session.Coupon; c != nil {
		if err := coupon.Validate(c, f.session.Pricing.Subtotal); err != nil {
			return nil, err
		}
	}

	if f.orderID == "" {
		f.orderID = uuid.NewString()
	}
	lg := zctx.From(ctx).With(
		zap.String("session_id", f.session.ID),
		zap.String("order_id", f.orderID),
	)

	conf, err := f.placer.PlaceOrder(ctx, f.buildOrder())
	if err != nil {
		lg.Warn("Order submission failed", zap.Error(err))
		return nil, &SubmissionError{Err: err}
	}

	f.session.Confirmation = conf
	f.touch()
	lg.Info("Order placed", zap.String("total", conf.Total.StringFixed(2)))

	if _, err := f.store.Clear(ctx); err != nil {
		lg.Warn("Clear cart after order", zap.Error(err))
	}
	return conf, nil
}

func (f *Flow) buildOrder() *order.Order {
	s := f.session
	p := s.Pricing.Rounded()
	items := make([]order.Item, 0, len(s.Cart.Items))
	for _, li := range s.Cart.Items {
		items = append(items, order.Item{
			ProductID: li.Product.ID,
			Title:     li.Product.Title,
			Variant:   li.Variant,
			Quantity:  li.Quantity,
			UnitPrice: li.Product.EffectivePrice(),
		})
	}
	o := &order.Order{
		ID:              f.orderID,
		OwnerKey:        s.Owner.Key(),
		Items:           items,
		ShippingAddress: s.Address,
		PaymentMethod:   string(s.Payment.Method),
		ShippingMethod:  s.ShippingMethod,
		Subtotal:        p.Subtotal,
		Discount:        p.Discount,
		Tax:             p.Tax,
		ShippingCost:    p.ShippingCost,
		Total:           p.Total,
	}
	if s.Coupon != nil {
		o.CouponCode = s.Coupon.Code
	}
	return o
}

func (f *Flow) open() error {
	if f.session.Closed() {
		return ErrSessionClosed
	}
	return nil
}

func (f *Flow) touch() { f.session.UpdatedAt = f.now() }

func (f *Flow) refresh(ctx context.Context) error {
	c, err := f.store.Cart(ctx)
	if err != nil {
		return errors.Wrap(err, "read cart")
	}
	f.session.Cart = c
	f.reprice()
	return nil
}

func (f *Flow) reprice() {
	method, _ := f.settings.ShippingMethod(f.session.ShippingMethod)
	f.session.Pricing = f.engine.PriceCart(f.session.Cart, f.session.Coupon, f.settings.TaxRules, method)
	f.touch()
}

// validateThrough checks every step from shipping up to and including last.
func (f *Flow) validateThrough(last Step) error {
	for step := StepShipping; step <= last && step < StepReview; step++ {
		var err error
		switch step {
		case StepShipping:
			err = validateAddress(f.session.Address)
		case StepDelivery:
			err = f.validateDelivery()
		case StepPayment:
			err = validatePayment(f.session.Payment)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateAddress(a order.Address) error {
	var missing []string
	for _, field := range []struct {
		name, value string
	}{
		{"first_name", a.FirstName},
		{"last_name", a.LastName},
		{"email", a.Email},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Step: StepShipping, Fields: missing}
	}
	return nil
}

func (f *Flow) validateDelivery() error {
	method, ok := f.settings.ShippingMethod(f.session.ShippingMethod)
	if !ok {
		return &ValidationError{Step: StepDelivery, Fields: []string{"shipping_method"}}
	}
	subtotal := f.session.Pricing.Subtotal
	if shortfall, short := method.FreeShippingShortfall(subtotal); short {
		return &ShippingThresholdError{
			Method:    method.Name,
			MinFree:   method.MinFree.Decimal,
			Subtotal:  subtotal,
			Shortfall: shortfall,
		}
	}
	return nil
}

func validatePayment(p Payment) error {
	switch p.Method {
	case PaymentCashOnDelivery, PaymentBankTransfer:
		return nil
	case PaymentCard:
		var missing []string
		for _, field := range []struct {
			name, value string
		}{
			{"cardholder_name", p.CardholderName},
			{"card_number", p.CardNumber},
			{"expiry", p.Expiry},
			{"cvv", p.CVV},
		} {
			if strings.TrimSpace(field.value) == "" {
				missing = append(missing, field.name)
			}
		}
		if len(missing) > 0 {
			return &ValidationError{Step: StepPayment, Fields: missing}
		}
		return nil
	default:
		return &ValidationError{Step: StepPayment, Fields: []string{"payment_method"}}
	}
}
