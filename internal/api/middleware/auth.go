package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/response"
)

// APIKey protects a handler with a static Bearer key. An empty key leaves the handler open.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				response.RespondUnauthorized(w, "Missing Authorization header")

				return
			}

			token, ok := bearerToken(r)
			if !ok {
				response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")

				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
