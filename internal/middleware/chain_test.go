package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/assistant-bridge/internal/config"
	"github.com/Davincible/assistant-bridge/internal/metrics"
)

func tag(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string

	base := New(tag("a", &order), tag("b", &order))
	extended := base.Then(tag("c", &order))
	other := base.Then(tag("d", &order))

	extended.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)

	order = nil
	other.Handler(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "d"}, order, "Then does not alias the parent chain")
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "HTTP Request")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "length=15")
	assert.Contains(t, out, "path=/chat")
}

func TestLoggingMiddleware_WarnsOnServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusBadGateway, "upstream_retried_error", "down")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))

	assert.True(t, strings.Contains(buf.String(), "level=WARN"))
}

func TestMetricsMiddleware_CountsByPattern(t *testing.T) {
	mgr := config.NewManager(t.TempDir())
	set := NewMiddlewareSet(mgr, testLogger())

	mux := http.NewServeMux()
	mux.Handle("POST /metrics-test/{id}", set.HealthChain().Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	counter := metrics.RequestsTotal.WithLabelValues("POST /metrics-test/{id}", "202")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics-test/"+id, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	assert.InDelta(t, before+2, testutil.ToFloat64(counter), 1e-9)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, http.StatusServiceUnavailable, "configuration_error", "anthropic client not initialized")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":{"type":"configuration_error","message":"anthropic client not initialized"}}`, rec.Body.String())
}
