package web

import (
	"net/http"

	"github.com/JonMunkholm/jury/internal/core"
)

// clientMetadata stores the client IP and User-Agent in the request context
// so import logs can name who started an import.
func clientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClient(r.Context(), clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
