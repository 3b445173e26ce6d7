package middleware

import (
	"net/http"

	"github.com/JonMunkholm/sanandem/internal/core"
)

// RequestMetadata stores the client IP and User-Agent in the context for
// audit logging.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), ClientIP(r))
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
