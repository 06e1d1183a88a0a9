package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 5 * time.Second

// SentryConfig holds the configuration for Sentry initialization.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes the global Sentry client and returns a flush function.
// An empty DSN leaves Sentry disabled and returns a no-op.
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  ServiceName,
	})
	if err != nil {
		return func() {}, fmt.Errorf("init sentry: %w", err)
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// CaptureError reports an unexpected error to Sentry using the request hub when present.
// It is a no-op when Sentry is not initialized.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)

		return
	}

	sentry.CaptureException(err)
}
