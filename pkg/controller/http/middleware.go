package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/ctxlog"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/utils/errutil"
)

// LoggingMiddleware returns a middleware that logs HTTP requests and hands a request scoped logger to handlers
func LoggingMiddleware(ctx context.Context) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := ctxlog.From(ctx).With("request_id", middleware.GetReqID(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctxlog.With(r.Context(), logger)))
		})
	}
}

// statusOf maps an error to the response status of the webhook endpoint
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingSignature),
		errors.Is(err, model.ErrBodyParsing),
		errors.Is(err, model.ErrInvalidRepository):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrUndeployable):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err, reports server errors and writes the response
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		errutil.Handle(ctx, err, "Failed to handle webhook")
	} else {
		ctxlog.From(ctx).Warn("Rejected webhook", "status", status, "error", err)
	}
	writeError(ctx, w, err, status)
}

// writeError writes an error response
func writeError(ctx context.Context, w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		ctxlog.From(ctx).Error("Failed to encode error response", "error", err)
	}
}
