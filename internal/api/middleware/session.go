package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// Session resolves the optional session token into a user id in the request context.
// Requests without a valid token continue as anonymous. An empty secret disables sessions.
func Session(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := sessionToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)

				return
			}

			claims := &jwt.RegisteredClaims{}
			if _, err := parser.ParseWithClaims(tokenString, claims, keyFunc); err != nil || claims.Subject == "" {
				logger.DebugContext(r.Context(), "ignoring invalid session token", "error", err)
				next.ServeHTTP(w, r)

				return
			}

			ctx := context.WithValue(r.Context(), observability.UserIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the session user id, or nil for anonymous requests.
func UserID(ctx context.Context) *string {
	id, ok := ctx.Value(observability.UserIDKey).(string)
	if !ok || id == "" {
		return nil
	}

	return &id
}

func sessionToken(r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		return token
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}

	return ""
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}

	return token, true
}
