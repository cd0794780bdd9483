package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

// RequireAPIKey admits requests whose api_key header carries scope.
func (h *Handler) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.Auth.Authenticate(r.Context(), r.Header.Get(headerAPIKey), scope)
			if err != nil {
				// Bare ErrUnauthorized is a missing or unknown key; anything wrapped carries detail.
				if err != auth.ErrUnauthorized { //nolint:errorlint
					zctx.From(r.Context()).Info("API key rejected", zap.Error(err))
				}
				writeError(w, r, auth.ErrUnauthorized)
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
