package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.store(r).Cart(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.store(r).Clear(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, errors.Wrap(errBadRequest, "productId is required"))
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	p, err := h.Catalog.GetByID(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.store(r).AddItem(r.Context(), *p, qty, req.Variant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.store(r).UpdateQuantity(r.Context(), chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.store(r).RemoveItem(r.Context(), chi.URLParam(r, "lineID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// Reorder copies the lines of one of the caller's past orders into the cart.
// Orders of other owners are reported as not found.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	o, err := h.Orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, errOrderNotFound)
		return
	case err != nil:
		writeError(w, r, err)
		return
	case o.OwnerKey != owner.Key():
		writeError(w, r, errOrderNotFound)
		return
	}

	lines := make([]cart.ReorderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, cart.ReorderLine{ProductID: it.ProductID, Variant: it.Variant, Quantity: it.Quantity})
	}
	c, skipped, err := h.store(r).Reorder(r.Context(), lines)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := reorderResponse{
		Cart:    newCartResponse(c),
		Skipped: make([]skippedResponse, 0, len(skipped)),
	}
	for _, s := range skipped {
		reason := "rejected"
		if _, body, ok := classify(s.Reason); ok {
			reason = body.Code
		}
		resp.Skipped = append(resp.Skipped, skippedResponse{
			ProductID: s.Line.ProductID,
			Variant:   s.Line.Variant,
			Quantity:  s.Line.Quantity,
			Reason:    reason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
