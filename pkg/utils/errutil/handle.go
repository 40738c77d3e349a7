package errutil

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Handle logs err and reports it to Sentry. A hub attached to ctx is used when present,
// otherwise the global one, which is a no-op unless sentry.Init was called with a DSN.
func Handle(ctx context.Context, err error, msg string) {
	if err == nil {
		return
	}

	ctxlog.From(ctx).Error(msg, "error", err)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		if values := goerr.Values(err); len(values) > 0 {
			scope.SetContext("goerr", sentry.Context(values))
		}
	})
	if evID := hub.CaptureException(err); evID != nil {
		ctxlog.From(ctx).Info("error reported to sentry", "event_id", *evID)
	}
}
