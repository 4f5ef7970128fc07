package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// AdminAuth returns middleware that requires the admin password, sent either
// as X-Admin-Password or as "Authorization: Bearer <password>".
// A missing password is 401, a wrong one 403. An empty configured password
// rejects everything.
func AdminAuth(password string) func(http.Handler) http.Handler {
	want := []byte(password)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := credential(r)
			if got == "" {
				slog.Warn("auth: missing admin password",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				denied(w, http.StatusUnauthorized, "missing admin password", "AUTH001")
				return
			}

			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Warn("auth: wrong admin password",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				denied(w, http.StatusForbidden, "invalid admin password", "AUTH002")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func credential(r *http.Request) string {
	if pw := r.Header.Get("X-Admin-Password"); pw != "" {
		return pw
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func denied(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q,"code":%q}`+"\n", message, message, code)
}
