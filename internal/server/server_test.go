package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/assistant-bridge/internal/chat"
	"github.com/Davincible/assistant-bridge/internal/config"
	"github.com/Davincible/assistant-bridge/internal/handlers"
	"github.com/Davincible/assistant-bridge/internal/providers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(cfg))

	srv := httptest.NewServer(New(mgr, testLogger()).Handler())
	t.Cleanup(srv.Close)

	return srv
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &config.Config{APIKey: "bridge-key"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.Equal(t, "anthropic,openai", resp.Header.Get(handlers.FamiliesHeader))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "assistant_bridge_requests_total")
}

func TestServer_ChatRequiresAuth(t *testing.T) {
	srv := newTestServer(t, &config.Config{APIKey: "bridge-key"})

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_ChatEndToEnd(t *testing.T) {
	var anthropicCalls atomic.Int32
	anthropic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))

		if anthropicCalls.Add(1) == 1 {
			w.WriteHeader(529)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Be brief.", req["system"])

		_, _ = io.WriteString(w, `{"id":"msg_e2e","model":"claude-3-haiku","content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":1}}`)
	}))
	defer anthropic.Close()

	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-oai", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":"chatcmpl-e2e","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`)
	}))
	defer openai.Close()

	srv := newTestServer(t, &config.Config{
		Providers: []config.Provider{
			{Name: "openai", APIBase: openai.URL + "/v1", APIKey: "sk-oai"},
			{Name: "anthropic", APIBase: anthropic.URL, APIKey: "sk-ant"},
		},
		Transport: config.TransportConfig{
			RetryBackoff:   config.Duration(time.Millisecond),
			RequestTimeout: config.Duration(5 * time.Second),
		},
	})

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(
		`{"model":"claude-3-haiku","messages":[{"role":"system","content":"Be brief."},{"role":"user","content":"ping"}]}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{
		"id":"msg_e2e","object":"chat.completion","model":"claude-3-haiku",
		"choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"end_turn"}],
		"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}
	}`, string(body))
	assert.Equal(t, int32(2), anthropicCalls.Load(), "one retry after the overloaded response")

	resp, err = http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(
		`{"model":"gpt-4o","messages":[{"role":"user","content":"ping"}]}`))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "chatcmpl-e2e")
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.Provider{{Name: "openrouter", APIBase: "https://openrouter.ai/api/v1", APIKey: "k"}}

	registry := BuildRegistry(cfg, testLogger())

	openai, ok := registry.Get(providers.FamilyOpenAI)
	require.True(t, ok)
	assert.Equal(t, "openrouter", openai.Name())

	_, err := registry.Resolve("claude-3")
	require.NoError(t, err, "the family stays registered")

	req, err := chat.DecodeRequest([]byte(`{"model":"claude-3","messages":[{"role":"user","content":"x"}]}`))
	require.NoError(t, err)

	_, _, err = registry.Complete(t.Context(), req)
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.KindConfiguration, perr.Kind)
}
