package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Davincible/assistant-bridge/internal/providers"
)

// FamiliesHeader lists the backend families the service dispatches to.
const FamiliesHeader = "X-Bridge-Families"

// HealthHandler answers liveness probes, including the CLI's readiness wait.
type HealthHandler struct {
	registry *providers.Registry
	logger   *slog.Logger
}

func NewHealthHandler(registry *providers.Registry, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.registry != nil {
		families := h.registry.List()
		names := make([]string, len(families))
		for i, f := range families {
			names[i] = string(f)
		}
		w.Header().Set(FamiliesHeader, strings.Join(names, ","))
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("Failed to write health check response", "error", err)
	}
}
