package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m-mizutani/gitrelay/pkg/domain/interfaces"
)

// config holds internal HTTP server configuration
type config struct {
	addr          string
	webhookSecret string
	processor     interfaces.WebhookEventProcessor
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the webhook secret
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// WithWebhookProcessor enables the GitHub webhook endpoint
func WithWebhookProcessor(p interfaces.WebhookEventProcessor) Option {
	return func(c *config) {
		c.processor = p
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	notifyUC interfaces.NotifyUseCase,
	registry interfaces.JobRegistry,
	opts ...Option,
) (*Server, error) {
	// Default configuration
	cfg := &config{
		addr: "localhost:8080",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	// Health check
	router.Get("/health", handleHealth)

	// Commit notification, compatible with the notifyCommit endpoint of the git plugin
	notifyHandler := NewNotifyHandler(notifyUC, registry)
	router.Get("/git/notifyCommit", notifyHandler.Handle)
	router.Post("/git/notifyCommit", notifyHandler.Handle)

	// Webhook endpoint
	if cfg.processor != nil {
		webhookHandler := NewWebhookHandler(cfg.webhookSecret, cfg.processor)
		router.Post("/hooks/github", webhookHandler.Handle)
	}

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
