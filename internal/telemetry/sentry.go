package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry configures the global hub. An empty DSN leaves reporting off and
// returns a no-op flush.
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureError(err error, extras map[string]any) {
	captureWithHub(sentry.CurrentHub(), err, extras)
}

// CaptureErrorContext reports through the request-scoped hub when ctx carries one.
func CaptureErrorContext(ctx context.Context, err error, extras map[string]any) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	captureWithHub(hub, err, extras)
}

func captureWithHub(hub *sentry.Hub, err error, extras map[string]any) {
	if err == nil || hub == nil || hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		hub.CaptureException(err)
	})
}
