package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	f, err := checkout.Begin(r.Context(), h.store(r), h.Settings, h.Placer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Sessions.Add(f)
	writeJSON(w, http.StatusCreated, newSessionResponse(f.Session(), f.Settings().ShippingMethods))
}

// withFlow runs fn on the addressed session and replies with the resulting
// state. The snapshot is taken while the session is still locked.
func (h *Handler) withFlow(w http.ResponseWriter, r *http.Request, fn func(context.Context, *checkout.Flow) error) {
	var resp sessionResponse
	err := h.Sessions.With(chi.URLParam(r, "sessionID"), ownerFrom(r), func(f *checkout.Flow) error {
		if err := fn(r.Context(), f); err != nil {
			return err
		}
		resp = newSessionResponse(f.Session(), f.Settings().ShippingMethods)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCheckout refreshes the session against the current cart. Closed
// sessions are returned as they are.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		if f.Session().Closed() {
			return nil
		}
		return f.Refresh(ctx)
	})
}

func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Remove(chi.URLParam(r, "sessionID"), ownerFrom(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	var req addressDTO
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withFlow(w, r, func(_ context.Context, f *checkout.Flow) error {
		return f.SetAddress(req.toDomain())
	})
}

func (h *Handler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		return f.SelectShippingMethod(ctx, req.Method)
	})
}

func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withFlow(w, r, func(_ context.Context, f *checkout.Flow) error {
		return f.SetPayment(checkout.Payment{
			Method:         checkout.PaymentMethod(req.Method),
			CardholderName: req.CardholderName,
			CardNumber:     req.CardNumber,
			Expiry:         req.Expiry,
			CVV:            req.CVV,
		})
	})
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		return f.Advance(ctx)
	})
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	step, ok := parseStep(req.Step)
	if !ok {
		writeError(w, r, errors.Wrapf(errBadRequest, "unknown step %q", req.Step))
		return
	}
	h.withFlow(w, r, func(_ context.Context, f *checkout.Flow) error {
		return f.Back(step)
	})
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		return f.ApplyCoupon(ctx, req.Code)
	})
}

func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		return f.RemoveCoupon(ctx)
	})
}

// Submit places the order. The outcome is counted whether or not the
// backend accepted it.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.withFlow(w, r, func(ctx context.Context, f *checkout.Flow) error {
		_, err := f.Submit(ctx)
		h.submissions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", submitOutcome(err)),
		))
		return err
	})
}

func submitOutcome(err error) string {
	var sErr *checkout.SubmissionError
	switch {
	case err == nil:
		return "placed"
	case !errors.As(err, &sErr):
		return "invalid"
	}
	if _, resp, _ := classify(err); resp.Code == "order_rejected" {
		return "rejected"
	}
	return "failed"
}
