// Package handler exposes the cart and checkout over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

const (
	headerUserID  = "X-User-ID"
	headerGuestID = "X-Guest-ID"
	headerAPIKey  = "api_key"
)

// Deps are the collaborators the handlers delegate to.
type Deps struct {
	Carts    cart.Repository
	Catalog  product.Repository
	Orders   order.Repository
	Placer   order.Placer
	Settings checkout.SettingsProvider
	Merger   *cart.Merger
	Auth     *auth.Authenticator
	Sessions *Sessions
	Meter    metric.Meter
}

// Handler serves the /api routes.
type Handler struct {
	Deps
	submissions metric.Int64Counter
}

// New validates deps and creates the submission counter.
func New(deps Deps) (*Handler, error) {
	switch {
	case deps.Carts == nil, deps.Catalog == nil, deps.Orders == nil, deps.Placer == nil,
		deps.Settings == nil, deps.Merger == nil, deps.Auth == nil, deps.Sessions == nil,
		deps.Meter == nil:
		return nil, errors.New("handler: missing dependency")
	}
	submissions, err := deps.Meter.Int64Counter("kart.checkout.submissions",
		metric.WithDescription("Checkout submissions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create submissions counter")
	}
	return &Handler{Deps: deps, submissions: submissions}, nil
}

// Mount registers all routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{lineID}", h.UpdateItem)
		r.Delete("/items/{lineID}", h.RemoveItem)
		r.Post("/reorder/{orderID}", h.Reorder)
	})
	r.Post("/session/login", h.Login)
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.BeginCheckout)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.Delete("/", h.CancelCheckout)
			r.Put("/address", h.SetAddress)
			r.Put("/shipping", h.SelectShipping)
			r.Put("/payment", h.SetPayment)
			r.Post("/advance", h.Advance)
			r.Post("/back", h.Back)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
			r.With(h.RequireAPIKey(auth.ScopeSubmitOrder)).Post("/submit", h.Submit)
		})
	})
}

// ownerFrom identifies the shopper. A user ID wins over a guest ID; with
// neither the shared anonymous guest cart is used.
func ownerFrom(r *http.Request) cart.Owner {
	if id := r.Header.Get(headerUserID); id != "" {
		return cart.User(id)
	}
	return cart.Guest(r.Header.Get(headerGuestID))
}

func (h *Handler) store(r *http.Request) *cart.Store {
	return cart.NewStore(h.Carts, h.Catalog, ownerFrom(r))
}
