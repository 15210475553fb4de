package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/caja-pos/internal/domain/auth"
)

// APIKeyHeader carries the operator's API key.
const APIKeyHeader = "api_key"

// authenticate resolves the api_key header to an operator and stores it in
// the request context. Unknown keys get 401.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		op, err := h.auth.Authenticate(r.Context(), key)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected api key", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Code:    http.StatusUnauthorized,
				Message: "invalid or missing api_key",
			})
			return
		}

		ctx := auth.WithOperator(r.Context(), op)
		ctx = zctx.With(ctx, zap.String("operator_id", op.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
