package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

// money renders amounts with two decimals. Values are rounded here and
// nowhere earlier.
func money(d decimal.Decimal) string { return d.StringFixed(2) }

type lineResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

type cartResponse struct {
	Owner      string         `json:"owner"`
	Items      []lineResponse `json:"items"`
	TotalItems int            `json:"totalItems"`
	Subtotal   string         `json:"subtotal"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	resp := cartResponse{
		Owner:      c.Owner.Key(),
		Items:      make([]lineResponse, 0, len(c.Items)),
		TotalItems: c.TotalItems(),
		Subtotal:   money(c.TotalPrice()),
	}
	for _, li := range c.Items {
		resp.Items = append(resp.Items, lineResponse{
			ID:        li.ID,
			ProductID: li.Product.ID,
			Title:     li.Product.Title,
			Variant:   li.Variant,
			Quantity:  li.Quantity,
			UnitPrice: money(li.Product.EffectivePrice()),
			Total:     money(li.Total()),
		})
	}
	return resp
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
	Variant   string `json:"variant"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type loginRequest struct {
	UserID  string `json:"userId"`
	GuestID string `json:"guestId"`
}

type skippedResponse struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type reorderResponse struct {
	Cart    cartResponse      `json:"cart"`
	Skipped []skippedResponse `json:"skipped"`
}

type addressDTO struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

func (a addressDTO) toDomain() order.Address {
	return order.Address{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func newAddressDTO(a order.Address) addressDTO {
	return addressDTO{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type shippingRequest struct {
	Method string `json:"method"`
}

type paymentRequest struct {
	Method         string `json:"method"`
	CardholderName string `json:"cardholderName"`
	CardNumber     string `json:"cardNumber"`
	Expiry         string `json:"expiry"`
	CVV            string `json:"cvv"`
}

type backRequest struct {
	Step string `json:"step"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type paymentResponse struct {
	Method   string `json:"method,omitempty"`
	CardLast string `json:"cardLast4,omitempty"`
}

type couponResponse struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

type pricingResponse struct {
	Subtotal           string `json:"subtotal"`
	Discount           string `json:"discount"`
	DiscountedSubtotal string `json:"discountedSubtotal"`
	Tax                string `json:"tax"`
	Shipping           string `json:"shipping"`
	Total              string `json:"total"`
}

type shippingOption struct {
	Name      string `json:"name"`
	Cost      string `json:"cost"`
	MinFree   string `json:"minFree,omitempty"`
	Eligible  bool   `json:"eligible"`
	Shortfall string `json:"shortfall,omitempty"`
}

type confirmationResponse struct {
	OrderID   string    `json:"orderId"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionResponse struct {
	ID              string                `json:"id"`
	Step            string                `json:"step"`
	Address         addressDTO            `json:"address"`
	ShippingMethod  string                `json:"shippingMethod,omitempty"`
	ShippingOptions []shippingOption      `json:"shippingOptions"`
	Payment         paymentResponse       `json:"payment"`
	Coupon          *couponResponse       `json:"coupon,omitempty"`
	Pricing         pricingResponse       `json:"pricing"`
	Cart            cartResponse          `json:"cart"`
	Closed          bool                  `json:"closed"`
	Confirmation    *confirmationResponse `json:"confirmation,omitempty"`
}

func newConfirmationResponse(c *order.Confirmation) *confirmationResponse {
	return &confirmationResponse{OrderID: c.OrderID, Total: money(c.Total), CreatedAt: c.CreatedAt}
}

func newSessionResponse(s checkout.Session, methods []pricing.ShippingMethod) sessionResponse {
	p := s.Pricing.Rounded()
	resp := sessionResponse{
		ID:             s.ID,
		Step:           s.Step.String(),
		Address:        newAddressDTO(s.Address),
		ShippingMethod: s.ShippingMethod,
		Payment:        paymentResponse{Method: string(s.Payment.Method)},
		Pricing: pricingResponse{
			Subtotal:           money(p.Subtotal),
			Discount:           money(p.Discount),
			DiscountedSubtotal: money(p.DiscountedSubtotal),
			Tax:                money(p.Tax),
			Shipping:           money(p.ShippingCost),
			Total:              money(p.Total),
		},
		Cart:   newCartResponse(s.Cart),
		Closed: s.Closed(),
	}
	if n := len(s.Payment.CardNumber); n >= 4 {
		resp.Payment.CardLast = s.Payment.CardNumber[n-4:]
	}
	if s.Coupon != nil {
		resp.Coupon = &couponResponse{Code: s.Coupon.Code, Description: s.Coupon.Description}
	}
	if s.Confirmation != nil {
		resp.Confirmation = newConfirmationResponse(s.Confirmation)
	}
	resp.ShippingOptions = make([]shippingOption, 0, len(methods))
	for _, m := range methods {
		opt := shippingOption{Name: m.Name, Cost: money(m.Cost), Eligible: true}
		if m.MinFree.Valid {
			opt.MinFree = money(m.MinFree.Decimal)
		}
		if shortfall, short := m.FreeShippingShortfall(s.Pricing.Subtotal); short {
			opt.Eligible = false
			opt.Shortfall = money(shortfall)
		}
		resp.ShippingOptions = append(resp.ShippingOptions, opt)
	}
	return resp
}

func parseStep(name string) (checkout.Step, bool) {
	for s := checkout.StepShipping; s <= checkout.StepReview; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}
