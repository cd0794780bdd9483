package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

var (
	errBadRequest      = errors.New("invalid request body")
	errSessionNotFound = errors.New("checkout session not found")
	errOrderNotFound   = errors.New("order not found")
)

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// classify maps err to a status and response body. ok is false for errors
// that are not a client-visible outcome.
func classify(err error) (status int, resp errorResponse, ok bool) {
	var (
		vErr  *checkout.ValidationError
		tErr  *checkout.ShippingThresholdError
		sErr  *checkout.SubmissionError
		isErr *stock.InsufficientStockError
		pnf   *order.ProductNotFoundError
		iq    *order.InvalidQuantityError
	)
	reply := func(status int, code string) (int, errorResponse, bool) {
		return status, errorResponse{Code: code, Message: err.Error()}, true
	}

	switch {
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, errorResponse{
			Code:    "validation_failed",
			Message: vErr.Error(),
			Fields:  vErr.Fields,
		}, true
	case errors.As(err, &tErr):
		return reply(http.StatusUnprocessableEntity, "shipping_threshold_unmet")
	case errors.As(err, &sErr):
		switch {
		case errors.Is(err, order.ErrUnavailable):
			return reply(http.StatusServiceUnavailable, "submission_unavailable")
		case errors.As(err, &isErr), errors.As(err, &pnf), errors.As(err, &iq), errors.Is(err, order.ErrEmptyItems):
			return reply(http.StatusConflict, "order_rejected")
		default:
			return http.StatusBadGateway, errorResponse{
				Code:    "submission_failed",
				Message: "order submission failed, please retry",
			}, true
		}
	case errors.As(err, &isErr), errors.Is(err, stock.ErrInsufficientStock):
		return reply(http.StatusConflict, "insufficient_stock")
	case errors.Is(err, cart.ErrInvalidQuantity):
		return reply(http.StatusUnprocessableEntity, "invalid_quantity")
	case errors.Is(err, cart.ErrLineNotFound):
		return reply(http.StatusNotFound, "line_not_found")
	case errors.Is(err, cart.ErrInvalidOwner):
		return reply(http.StatusBadRequest, "invalid_owner")
	case errors.Is(err, product.ErrNotFound):
		return reply(http.StatusNotFound, "product_not_found")
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return reply(http.StatusUnprocessableEntity, "invalid_coupon")
	case errors.Is(err, checkout.ErrUnknownShippingMethod):
		return reply(http.StatusUnprocessableEntity, "unknown_shipping_method")
	case errors.Is(err, checkout.ErrInvalidStep):
		return reply(http.StatusConflict, "invalid_step")
	case errors.Is(err, checkout.ErrSessionClosed):
		return reply(http.StatusConflict, "session_closed")
	case errors.Is(err, errSessionNotFound):
		return reply(http.StatusNotFound, "session_not_found")
	case errors.Is(err, errOrderNotFound):
		return reply(http.StatusNotFound, "order_not_found")
	case errors.Is(err, auth.ErrUnauthorized):
		return reply(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, errBadRequest):
		return reply(http.StatusBadRequest, "invalid_request")
	}
	return 0, errorResponse{}, false
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp, ok := classify(err)
	if !ok {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		status = http.StatusInternalServerError
		resp = errorResponse{Code: "internal", Message: "internal server error"}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}
