package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/response"
)

// Recover attaches a per-request Sentry hub tagged with the request id, and turns panics
// into a 500 with the generic message after reporting them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}

			if id := RequestIDFrom(r.Context()); id != "" {
				hub.Scope().SetTag("request_id", id)
			}

			hub.Scope().SetRequest(r)
			r = r.WithContext(sentry.SetHubOnContext(r.Context(), hub))

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				if rec == http.ErrAbortHandler { //nolint:errorlint,err113 // sentinel panic value
					panic(rec)
				}

				hub.RecoverWithContext(r.Context(), rec)
				logger.ErrorContext(r.Context(), "panic recovered", "panic", fmt.Sprint(rec))
				response.RespondInternalServerError(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
