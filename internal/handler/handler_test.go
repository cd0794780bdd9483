package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// --- Fakes ---

type memCarts struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func (r *memCarts) Get(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner.Key()]
	if !ok {
		return nil, cart.ErrNotFound
	}
	c.Items = append([]cart.LineItem(nil), c.Items...)
	return &c, nil
}

func (r *memCarts) Save(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *c
	out.Items = append([]cart.LineItem(nil), c.Items...)
	r.carts[c.Owner.Key()] = out
	return nil
}

func (r *memCarts) Delete(_ context.Context, owner cart.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, owner.Key())
	return nil
}

type memCatalog map[string]product.Product

func (m memCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m memCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func (r *memOrders) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		r.orders[o.ID] = *o
	}
	return nil
}

func (r *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

type staticSettings struct{ s checkout.Settings }

func (p staticSettings) ListCoupons(context.Context) ([]coupon.Coupon, error) {
	return p.s.Coupons, nil
}

func (p staticSettings) ListTaxRules(context.Context) ([]pricing.TaxRule, error) {
	return p.s.TaxRules, nil
}

func (p staticSettings) ListShippingMethods(context.Context) ([]pricing.ShippingMethod, error) {
	return p.s.ShippingMethods, nil
}

// failingPlacer fails every call with err.
type failingPlacer struct{ err error }

func (p failingPlacer) PlaceOrder(context.Context, *order.Order) (*order.Confirmation, error) {
	return nil, p.err
}

type memKeys map[string]*auth.APIKeyInfo

func (m memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// --- Helpers ---

const (
	testPepper = "pepper"
	testAPIKey = "secret-key"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type env struct {
	router   http.Handler
	carts    *memCarts
	orders   *memOrders
	sessions *Sessions
}

func newEnv(t *testing.T, placer order.Placer) *env {
	t.Helper()
	catalog := memCatalog{
		"p1": {ID: "p1", Title: "Lamp", Price: d("25.00"), Stock: 10},
		"p2": {ID: "p2", Title: "Mug", Price: d("8.00"), SalePrice: decimal.NewNullDecimal(d("6.50")), Stock: 1},
	}
	e := &env{
		carts:    &memCarts{carts: map[string]cart.Cart{}},
		orders:   &memOrders{orders: map[string]order.Order{}},
		sessions: NewSessions(time.Hour),
	}
	if placer == nil {
		placer = order.NewService(catalog, e.orders)
	}
	hash := auth.HashKey(testPepper, testAPIKey)
	h, err := New(Deps{
		Carts:   e.carts,
		Catalog: catalog,
		Orders:  e.orders,
		Placer:  placer,
		Settings: staticSettings{checkout.Settings{
			Coupons:  []coupon.Coupon{{Code: "SAVE10", Type: coupon.DiscountPercentage, Amount: d("10")}},
			TaxRules: []pricing.TaxRule{{Min: decimal.Zero, Rate: d("0.1")}},
			ShippingMethods: []pricing.ShippingMethod{
				{Name: "Standard", Cost: d("5")},
				{Name: pricing.FreeShippingName, MinFree: decimal.NewNullDecimal(d("100"))},
			},
		}},
		Merger: cart.NewMerger(e.carts, catalog, cart.MergePresence),
		Auth: auth.NewAuthenticator(memKeys{
			hash: {ID: "k1", KeyHash: hash, Scopes: []string{auth.ScopeSubmitOrder}},
		}, testPepper),
		Sessions: e.sessions,
		Meter:    noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", h.Mount)
	e.router = r
	return e
}

// do sends a request. headers are key/value pairs.
func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := decodeBody[errorResponse](t, w)
	assert.Equal(t, code, resp.Code)
	return resp
}

var (
	user1 = []string{headerUserID, "u1"}
	user2 = []string{headerUserID, "u2"}
)

func withKey(h []string) []string {
	return append(append([]string(nil), h...), headerAPIKey, testAPIKey)
}

func validAddress() addressDTO {
	return addressDTO{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Street:     "1 Main St",
		City:       "London",
		State:      "LDN",
		PostalCode: "N1",
	}
}

// beginAtReview fills a user cart with two lamps and walks a session to review.
func (e *env) beginAtReview(t *testing.T, who []string) string {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/cart/items", map[string]any{"productId": "p1", "quantity": 2}, who...).Code)

	w := e.do(t, http.MethodPost, "/api/checkout", nil, who...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeBody[sessionResponse](t, w).ID
	base := "/api/checkout/" + id

	steps := []struct {
		method, path string
		body         any
	}{
		{http.MethodPut, "/address", validAddress()},
		{http.MethodPost, "/advance", nil},
		{http.MethodPut, "/shipping", shippingRequest{Method: "Standard"}},
		{http.MethodPost, "/advance", nil},
		{http.MethodPut, "/payment", paymentRequest{Method: "card", CardholderName: "Ada", CardNumber: "4242424242424242", Expiry: "12/30", CVV: "123"}},
		{http.MethodPost, "/advance", nil},
	}
	for _, s := range steps {
		w := e.do(t, s.method, base+s.path, s.body, who...)
		require.Equal(t, http.StatusOK, w.Code, "%s %s: %s", s.method, s.path, w.Body.String())
	}
	return id
}

// --- Cart ---

func TestCart_Lifecycle(t *testing.T) {
	e := newEnv(t, nil)
	guest := []string{headerGuestID, "g1"}

	w := e.do(t, http.MethodGet, "/api/cart", nil, guest...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[cartResponse](t, w).Items)

	w = e.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: "p1", Variant: "red"}, guest...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decodeBody[cartResponse](t, w)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "guest:g1", c.Owner)
	assert.Equal(t, 1, c.Items[0].Quantity, "quantity defaults to one")
	assert.Equal(t, "25.00", c.Subtotal)
	lineID := c.Items[0].ID

	w = e.do(t, http.MethodPatch, "/api/cart/items/"+lineID, updateItemRequest{Quantity: 3}, guest...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c = decodeBody[cartResponse](t, w)
	assert.Equal(t, 3, c.TotalItems)
	assert.Equal(t, "75.00", c.Subtotal)

	w = e.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: "p2"}, guest...)
	require.Equal(t, http.StatusOK, w.Code)
	c = decodeBody[cartResponse](t, w)
	assert.Equal(t, "6.50", c.Items[1].UnitPrice, "sale price wins")
	assert.Equal(t, "81.50", c.Subtotal)

	w = e.do(t, http.MethodDelete, "/api/cart/items/"+lineID, nil, guest...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[cartResponse](t, w).Items, 1)

	w = e.do(t, http.MethodDelete, "/api/cart", nil, guest...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[cartResponse](t, w).Items)

	w = e.do(t, http.MethodGet, "/api/cart", nil)
	assert.Equal(t, "guest", decodeBody[cartResponse](t, w).Owner)
}

func TestAddItem_Errors(t *testing.T) {
	e := newEnv(t, nil)

	for _, tt := range []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"OverStock", map[string]any{"productId": "p1", "quantity": 11}, http.StatusConflict, "insufficient_stock"},
		{"ZeroQuantity", map[string]any{"productId": "p1", "quantity": 0}, http.StatusUnprocessableEntity, "invalid_quantity"},
		{"UnknownProduct", map[string]any{"productId": "nope"}, http.StatusNotFound, "product_not_found"},
		{"MissingProduct", map[string]any{"quantity": 1}, http.StatusBadRequest, "invalid_request"},
		{"UnknownField", `{"productId":"p1","color":"red"}`, http.StatusBadRequest, "invalid_request"},
		{"Malformed", `{`, http.StatusBadRequest, "invalid_request"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, e.do(t, http.MethodPost, "/api/cart/items", tt.body, user1...), tt.status, tt.code)
		})
	}
}

func TestUpdateItem_Errors(t *testing.T) {
	e := newEnv(t, nil)
	requireError(t, e.do(t, http.MethodPatch, "/api/cart/items/missing", updateItemRequest{Quantity: 1}, user1...),
		http.StatusNotFound, "line_not_found")

	w := e.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: "p2"}, user1...)
	lineID := decodeBody[cartResponse](t, w).Items[0].ID
	requireError(t, e.do(t, http.MethodPatch, "/api/cart/items/"+lineID, updateItemRequest{Quantity: 2}, user1...),
		http.StatusConflict, "insufficient_stock")
}

func TestLogin_MergesGuestCart(t *testing.T) {
	e := newEnv(t, nil)
	guest := []string{headerGuestID, "g1"}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: "p1"}, guest...).Code)

	w := e.do(t, http.MethodPost, "/api/session/login", loginRequest{UserID: "u9", GuestID: "g1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decodeBody[cartResponse](t, w)
	assert.Equal(t, "user:u9", c.Owner)
	require.Len(t, c.Items, 1)

	w = e.do(t, http.MethodGet, "/api/cart", nil, guest...)
	assert.Empty(t, decodeBody[cartResponse](t, w).Items, "guest cart is gone after login")

	requireError(t, e.do(t, http.MethodPost, "/api/session/login", loginRequest{GuestID: "g1"}),
		http.StatusBadRequest, "invalid_request")
}

// --- Checkout ---

func TestCheckout_SubmitAndReorder(t *testing.T) {
	e := newEnv(t, nil)
	id := e.beginAtReview(t, user1)
	base := "/api/checkout/" + id

	w := e.do(t, http.MethodGet, base, nil, user1...)
	require.Equal(t, http.StatusOK, w.Code)
	s := decodeBody[sessionResponse](t, w)
	assert.Equal(t, "review", s.Step)
	assert.Equal(t, "4242", s.Payment.CardLast)
	assert.Equal(t, pricingResponse{
		Subtotal:           "50.00",
		Discount:           "0.00",
		DiscountedSubtotal: "50.00",
		Tax:                "5.00",
		Shipping:           "5.00",
		Total:              "60.00",
	}, s.Pricing)
	require.Len(t, s.ShippingOptions, 2)
	assert.True(t, s.ShippingOptions[0].Eligible)
	assert.False(t, s.ShippingOptions[1].Eligible)
	assert.Equal(t, "50.00", s.ShippingOptions[1].Shortfall)

	requireError(t, e.do(t, http.MethodPost, base+"/submit", nil, user1...), http.StatusUnauthorized, "unauthorized")
	requireError(t, e.do(t, http.MethodPost, base+"/submit", nil, user1[0], user1[1], headerAPIKey, "wrong"),
		http.StatusUnauthorized, "unauthorized")

	w = e.do(t, http.MethodPost, base+"/submit", nil, withKey(user1)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s = decodeBody[sessionResponse](t, w)
	assert.True(t, s.Closed)
	require.NotNil(t, s.Confirmation)
	assert.Equal(t, "60.00", s.Confirmation.Total)

	stored, err := e.orders.GetByID(context.Background(), s.Confirmation.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "user:u1", stored.OwnerKey)

	w = e.do(t, http.MethodGet, "/api/cart", nil, user1...)
	assert.Empty(t, decodeBody[cartResponse](t, w).Items, "cart cleared after order")

	requireError(t, e.do(t, http.MethodPost, base+"/advance", nil, user1...), http.StatusConflict, "session_closed")

	requireError(t, e.do(t, http.MethodPost, "/api/cart/reorder/"+s.Confirmation.OrderID, nil, user2...),
		http.StatusNotFound, "order_not_found")
	requireError(t, e.do(t, http.MethodPost, "/api/cart/reorder/missing", nil, user1...),
		http.StatusNotFound, "order_not_found")

	w = e.do(t, http.MethodPost, "/api/cart/reorder/"+s.Confirmation.OrderID, nil, user1...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	re := decodeBody[reorderResponse](t, w)
	require.Len(t, re.Cart.Items, 1)
	assert.Equal(t, 2, re.Cart.Items[0].Quantity)
	assert.Empty(t, re.Skipped)
}

func TestCheckout_Validation(t *testing.T) {
	e := newEnv(t, nil)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: "p1"}, user1...).Code)
	w := e.do(t, http.MethodPost, "/api/checkout", nil, user1...)
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/api/checkout/" + decodeBody[sessionResponse](t, w).ID

	resp := requireError(t, e.do(t, http.MethodPost, base+"/advance", nil, user1...),
		http.StatusUnprocessableEntity, "validation_failed")
	assert.Contains(t, resp.Fields, "first_name")
	assert.Contains(t, resp.Fields, "postal_code")

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, base+"/address", validAddress(), user1...).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, base+"/advance", nil, user1...).Code)

	requireError(t, e.do(t, http.MethodPut, base+"/shipping", shippingRequest{Method: "Teleport"}, user1...),
		http.StatusUnprocessableEntity, "unknown_shipping_method")
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, base+"/shipping", shippingRequest{Method: pricing.FreeShippingName}, user1...).Code)
	requireError(t, e.do(t, http.MethodPost, base+"/advance", nil, user1...),
		http.StatusUnprocessableEntity, "shipping_threshold_unmet")

	requireError(t, e.do(t, http.MethodPost, base+"/submit", nil, withKey(user1)...),
		http.StatusConflict, "invalid_step")

	requireError(t, e.do(t, http.MethodPost, base+"/back", backRequest{Step: "nowhere"}, user1...),
		http.StatusBadRequest, "invalid_request")
	requireError(t, e.do(t, http.MethodPost, base+"/back", backRequest{Step: "payment"}, user1...),
		http.StatusConflict, "invalid_step")
	w = e.do(t, http.MethodPost, base+"/back", backRequest{Step: "shipping"}, user1...)
	require.Equal(t, http.StatusOK, w.Code)
	s := decodeBody[sessionResponse](t, w)
	assert.Equal(t, "shipping", s.Step)
	assert.Equal(t, "Ada", s.Address.FirstName, "entered data is kept")
}

func TestCheckout_Coupons(t *testing.T) {
	e := newEnv(t, nil)
	id := e.beginAtReview(t, user1)
	base := "/api/checkout/" + id

	w := e.do(t, http.MethodPost, base+"/coupon", couponRequest{Code: "save10"}, user1...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decodeBody[sessionResponse](t, w)
	require.NotNil(t, s.Coupon)
	assert.Equal(t, "SAVE10", s.Coupon.Code)
	assert.Equal(t, "5.00", s.Pricing.Discount)
	assert.Equal(t, "54.50", s.Pricing.Total)

	requireError(t, e.do(t, http.MethodPost, base+"/coupon", couponRequest{Code: "NOPE"}, user1...),
		http.StatusUnprocessableEntity, "invalid_coupon")

	w = e.do(t, http.MethodDelete, base+"/coupon", nil, user1...)
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeBody[sessionResponse](t, w)
	assert.Nil(t, s.Coupon)
	assert.Equal(t, "60.00", s.Pricing.Total)
}

func TestCheckout_SubmissionFailures(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Backend", errors.New("connection reset"), http.StatusBadGateway, "submission_failed"},
		{"Unavailable", order.ErrUnavailable, http.StatusServiceUnavailable, "submission_unavailable"},
		{"Rejected", &stock.InsufficientStockError{ProductID: "p1"}, http.StatusConflict, "order_rejected"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, failingPlacer{err: tt.err})
			id := e.beginAtReview(t, user1)
			base := "/api/checkout/" + id

			requireError(t, e.do(t, http.MethodPost, base+"/submit", nil, withKey(user1)...), tt.status, tt.code)

			w := e.do(t, http.MethodGet, base, nil, user1...)
			s := decodeBody[sessionResponse](t, w)
			assert.Equal(t, "review", s.Step)
			assert.False(t, s.Closed)
			assert.Len(t, s.Cart.Items, 1, "cart untouched")
		})
	}
}

func TestCheckout_OwnerIsolation(t *testing.T) {
	e := newEnv(t, nil)
	id := e.beginAtReview(t, user1)
	base := "/api/checkout/" + id

	requireError(t, e.do(t, http.MethodGet, base, nil, user2...), http.StatusNotFound, "session_not_found")
	requireError(t, e.do(t, http.MethodDelete, base, nil, user2...), http.StatusNotFound, "session_not_found")
	requireError(t, e.do(t, http.MethodGet, "/api/checkout/unknown", nil, user1...), http.StatusNotFound, "session_not_found")

	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, base, nil, user1...).Code)
	requireError(t, e.do(t, http.MethodGet, base, nil, user1...), http.StatusNotFound, "session_not_found")
}

func TestSubmitOutcome(t *testing.T) {
	assert.Equal(t, "placed", submitOutcome(nil))
	assert.Equal(t, "invalid", submitOutcome(checkout.ErrInvalidStep))
	assert.Equal(t, "failed", submitOutcome(&checkout.SubmissionError{Err: errors.New("boom")}))
	assert.Equal(t, "rejected", submitOutcome(&checkout.SubmissionError{Err: order.ErrEmptyItems}))
}

func TestClassify_Unknown(t *testing.T) {
	_, _, ok := classify(errors.New("disk on fire"))
	assert.False(t, ok)

	w := httptest.NewRecorder()
	writeError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"internal","message":"internal server error"}`, w.Body.String())
}
