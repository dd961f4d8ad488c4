// Package authmw provides HTTP middleware for static token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Require returns middleware that accepts the configured token either as
// an Authorization Bearer header or an X-API-Token header. Community
// health workers' field tooling cannot always set Authorization, so both
// carriers are honored. Comparison is constant-time.
func Require(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := tokenFromRequest(r)
			if got == "" {
				http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return auth[len("Bearer "):]
	}
	return r.Header.Get("X-API-Token")
}
