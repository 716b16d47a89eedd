package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Davincible/assistant-bridge/internal/config"
)

// Middleware represents a middleware function
type Middleware func(http.Handler) http.Handler

// Chain represents a middleware chain
type Chain struct {
	middlewares []Middleware
}

// New creates a new middleware chain
func New(middlewares ...Middleware) Chain {
	return Chain{middlewares: middlewares}
}

// Then adds more middleware to the chain
func (c Chain) Then(middlewares ...Middleware) Chain {
	return Chain{middlewares: append(c.middlewares[:len(c.middlewares):len(c.middlewares)], middlewares...)}
}

// Handler applies all middleware in the chain to the given handler
func (c Chain) Handler(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}

	return handler
}

// MiddlewareSet contains all configured middleware for easy composition
type MiddlewareSet struct {
	Metrics Middleware
	Logging Middleware
	Auth    Middleware
}

func NewMiddlewareSet(config *config.Manager, logger *slog.Logger) MiddlewareSet {
	return MiddlewareSet{
		Metrics: NewMetricsMiddleware(logger),
		Logging: NewLoggingMiddleware(logger),
		Auth:    NewAuthMiddleware(config, logger),
	}
}

// DefaultChain is used for the chat endpoints.
func (ms MiddlewareSet) DefaultChain() Chain {
	return New(
		ms.Metrics,
		ms.Logging,
		ms.Auth,
	)
}

// HealthChain skips authentication.
func (ms MiddlewareSet) HealthChain() Chain {
	return New(
		ms.Metrics,
		ms.Logging,
	)
}

// PublicChain is used for the scrape endpoint: no auth, no request logging.
func (ms MiddlewareSet) PublicChain() Chain {
	return New()
}
