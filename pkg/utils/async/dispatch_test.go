package async_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/WaffleHacks/autodeploy/pkg/utils/async"
)

// withSentryHub attaches a hub whose events are handed to the returned channel instead of sent
func withSentryHub(t *testing.T, ctx context.Context) (context.Context, <-chan *sentry.Event) {
	t.Helper()
	events := make(chan *sentry.Event, 1)
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			events <- event
			return nil
		},
	})
	gt.NoError(t, err).Required()
	return sentry.SetHubOnContext(ctx, sentry.NewHub(client, sentry.NewScope())), events
}

func waitEvent(t *testing.T, events <-chan *sentry.Event) *sentry.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event was reported within timeout")
		return nil
	}
}

func attr(record slog.Record, key string) (slog.Value, bool) {
	var found slog.Value
	var ok bool
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			found, ok = a.Value, true
			return false
		}
		return true
	})
	return found, ok
}

func TestDispatch_RunsHandler(t *testing.T) {
	done := make(chan struct{})
	async.Dispatch(context.Background(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run within timeout")
	}
}

func TestDispatch_ReportsReturnedError(t *testing.T) {
	ctx, capture := ctxlog.NewCapture(context.Background())
	ctx, events := withSentryHub(t, ctx)

	async.Dispatch(ctx, func(ctx context.Context) error {
		return goerr.New("slack is unreachable", goerr.V("status", 503))
	})

	event := waitEvent(t, events)
	gt.Equal(t, event.Tags["message"], "error in async handler")
	gt.Value(t, event.Contexts["goerr"]["status"]).Equal(any(503))

	// the error is logged before it is reported
	gt.A(t, capture.Messages()).Has("error in async handler")
}

func TestDispatch_ReportsPanic(t *testing.T) {
	ctx, capture := ctxlog.NewCapture(context.Background())
	ctx, events := withSentryHub(t, ctx)

	async.Dispatch(ctx, func(ctx context.Context) error {
		panic("notifier exploded")
	})

	event := waitEvent(t, events)
	gt.Equal(t, event.Tags["message"], "async handler panicked")
	gt.Value(t, event.Contexts["goerr"]["recover"]).Equal(any("notifier exploded"))

	var stack string
	for _, record := range capture.Records() {
		if record.Message != "panic in async handler" {
			continue
		}
		v, ok := attr(record, "stack")
		gt.True(t, ok)
		stack = v.String()
	}
	gt.String(t, stack).Contains("dispatch_test.go")
}

func TestDispatch_HandlerContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent, _ = withSentryHub(t, parent)
	hub := sentry.GetHubFromContext(parent)

	type result struct {
		hub      *sentry.Hub
		canceled bool
	}
	results := make(chan result, 1)

	async.Dispatch(parent, func(ctx context.Context) error {
		cancel()
		results <- result{
			hub:      sentry.GetHubFromContext(ctx),
			canceled: errors.Is(ctx.Err(), context.Canceled),
		}
		return nil
	})

	select {
	case r := <-results:
		gt.True(t, r.hub == hub)
		gt.False(t, r.canceled)
	case <-time.After(time.Second):
		t.Fatal("handler did not run within timeout")
	}
}
