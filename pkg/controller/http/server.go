package http

import (
	"context"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
)

const (
	defaultAddr       = "127.0.0.1:8080"
	readHeaderTimeout = 15 * time.Second
)

type config struct {
	addr          string
	webhookSecret string
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the listen address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the secret deliveries are signed with
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// Server serves the webhook receiver, job status and health endpoints
type Server struct {
	*http.Server
}

// NewServer creates a Server. ctx supplies the base logger for every request.
func NewServer(
	ctx context.Context,
	webhookUC interfaces.WebhookUseCase,
	opts ...Option,
) (*Server, error) {
	cfg := &config{addr: defaultAddr}
	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)
	// panics are reported first, then re-raised for Recoverer to answer with 500
	router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)

	routes(router, cfg, webhookUC)

	return &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

func routes(r chi.Router, cfg *config, webhookUC interfaces.WebhookUseCase) {
	r.Get("/health", handleHealth)
	r.Post("/", NewWebhookHandler(cfg.webhookSecret, webhookUC).Handle)
	r.Get("/jobs/{id}", NewJobHandler(webhookUC).Get)
}
