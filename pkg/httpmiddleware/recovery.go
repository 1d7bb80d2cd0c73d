package httpmiddleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery converts handler panics into 500 responses with the service's
// JSON error envelope, logging the panic value and stack. http.ErrAbortHandler
// is re-raised so deliberate connection aborts keep their semantics.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("panic recovered",
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusInternalServerError,
					"message": "internal server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
