package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Login merges the guest's cart into the user's and returns the result.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, r, errors.Wrap(errBadRequest, "userId is required"))
		return
	}
	c, err := h.Merger.Merge(r.Context(), cart.Guest(req.GuestID), cart.User(req.UserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(c))
}
