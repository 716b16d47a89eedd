package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Davincible/assistant-bridge/internal/metrics"
)

type MetricsMiddleware struct {
	logger *slog.Logger
}

// NewMetricsMiddleware counts requests by matched route pattern and status.
func NewMetricsMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	mm := &MetricsMiddleware{
		logger: logger,
	}
	return mm.middleware
}

func (mm *MetricsMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		metrics.RequestsTotal.WithLabelValues(routeLabel(r), strconv.Itoa(wrapped.status)).Inc()
	})
}

// routeLabel keeps label cardinality bounded: unmatched paths share one label.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
