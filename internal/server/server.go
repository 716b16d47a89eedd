package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Davincible/assistant-bridge/internal/config"
	"github.com/Davincible/assistant-bridge/internal/handlers"
	"github.com/Davincible/assistant-bridge/internal/middleware"
	"github.com/Davincible/assistant-bridge/internal/providers"
)

type Server struct {
	config   *config.Manager
	registry *providers.Registry
	logger   *slog.Logger
	server   *http.Server
}

func New(configManager *config.Manager, logger *slog.Logger) *Server {
	return &Server{
		config:   configManager,
		registry: BuildRegistry(configManager.Get(), logger),
		logger:   logger,
	}
}

// BuildRegistry creates the backend clients from cfg. A family without an
// API key stays registered but answers with a configuration error.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) *providers.Registry {
	timeout := cfg.Transport.RequestTimeout.Std()

	opts := providers.Options{
		VendorPrefix: cfg.Router.VendorPrefix,
		Retry: providers.RetryPolicy{
			Backoff: cfg.Transport.RetryBackoff.Std(),
			Logger:  logger,
		},
	}

	if p := cfg.OpenAI(); p != nil {
		opts.OpenAIURL = p.APIBase
		if client := providers.NewOpenAIClient(p.APIBase, p.APIKey, timeout); client != nil {
			opts.OpenAI = client
		}
	}
	if opts.OpenAI == nil {
		logger.Warn("OpenAI-compatible backend not configured", "env", config.EnvOpenAIKey)
	}

	if p := cfg.Anthropic(); p != nil {
		if client := providers.NewAnthropicClient(p.APIBase, p.APIKey, timeout); client != nil {
			opts.Anthropic = client
		}
	}
	if opts.Anthropic == nil {
		logger.Warn("Anthropic backend not configured", "env", config.EnvAnthropicKey)
	}

	return providers.Initialize(opts)
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting server",
		"address", addr,
		"vendor_prefix", cfg.Router.VendorPrefix,
		"families", s.registry.List(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-quit:
	}

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler returns the routed and middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(s.config, s.registry, s.logger)
	healthHandler := handlers.NewHealthHandler(s.registry, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	mux.Handle("GET /health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("GET /metrics", middlewareSet.PublicChain().Handler(promhttp.Handler()))
	mux.Handle("POST /chat", middlewareSet.DefaultChain().Handler(chatHandler))
	mux.Handle("POST /v1/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))

	return mux
}
