package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"

	"github.com/Davincible/assistant-bridge/internal/chat"
	"github.com/Davincible/assistant-bridge/internal/config"
	"github.com/Davincible/assistant-bridge/internal/middleware"
	"github.com/Davincible/assistant-bridge/internal/providers"
)

// MaxRequestBytes bounds the inbound request body.
const MaxRequestBytes = 8 << 20

type ChatHandler struct {
	config   *config.Manager
	registry *providers.Registry
	logger   *slog.Logger

	// countTokens estimates prompt tokens for logging only.
	countTokens func(text string) int
}

func NewChatHandler(config *config.Manager, registry *providers.Registry, logger *slog.Logger) *ChatHandler {
	h := &ChatHandler{
		config:   config,
		registry: registry,
		logger:   logger,
	}
	h.countTokens = h.countInputTokens

	return h
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Get()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		h.httpError(w, http.StatusBadRequest, providers.KindValidation, "failed to read request body: %v", err)
		return
	}

	req, err := chat.DecodeRequest(body)
	if err != nil {
		h.httpError(w, http.StatusBadRequest, providers.KindValidation, "%v", err)
		return
	}

	if err := req.Validate(); err != nil {
		h.httpError(w, http.StatusBadRequest, providers.KindValidation, "%v", err)
		return
	}

	req.ApplyDefaults(cfg.Temperature(), cfg.Defaults.MaxTokens)

	// Tokenizing is skipped when the estimate would not be logged.
	var inputTokens int
	if h.logger.Enabled(r.Context(), slog.LevelInfo) {
		inputTokens = h.countTokens(promptText(req))
	}
	logFields := []any{
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"input_tokens", inputTokens,
	}
	if userID, ok := middleware.UserID(r.Context()); ok {
		logFields = append(logFields, "user_id", userID)
	}

	provider, respBody, err := h.registry.Complete(r.Context(), req)
	if provider != nil {
		logFields = append(logFields, "provider", provider.Name(), "family", provider.Family())
	}

	if err != nil {
		h.writeProviderError(w, err, logFields)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(respBody); err != nil {
		h.logger.Error("Failed to write response", "error", err)
		return
	}

	h.logResponseTokens(respBody, logFields)
}

func (h *ChatHandler) writeProviderError(w http.ResponseWriter, err error, logFields []any) {
	var perr *providers.Error
	if !errors.As(err, &perr) {
		perr = &providers.Error{Kind: providers.KindUnclassified, Message: err.Error(), Cause: err}
	}

	status := perr.HTTPStatus()
	logFields = append(logFields, "status", status, "kind", perr.Kind, "error", perr.Message)

	switch {
	case perr.Kind == providers.KindCanceled:
		h.logger.Info("Request canceled by caller", logFields...)
	case status >= http.StatusInternalServerError:
		h.logger.Error("Upstream error response", logFields...)
	default:
		h.logger.Warn("Upstream error response", logFields...)
	}

	middleware.WriteError(w, status, string(perr.Kind), errorMessage(perr))
}

// errorMessage prefixes backend-originated messages with the family so the
// caller can tell which service rejected the request.
func errorMessage(perr *providers.Error) string {
	if perr.Family == "" || perr.Kind == providers.KindConfiguration {
		return perr.Message
	}
	return fmt.Sprintf("%s: %s", perr.Family, perr.Message)
}

func (h *ChatHandler) logResponseTokens(respBody []byte, logFields []any) {
	usage := gjson.GetBytes(respBody, "usage")
	if usage.Exists() {
		logFields = append(logFields,
			"prompt_tokens", usage.Get("prompt_tokens").Int(),
			"completion_tokens", usage.Get("completion_tokens").Int(),
		)
	}
	if reason := gjson.GetBytes(respBody, "choices.0.finish_reason"); reason.Exists() {
		logFields = append(logFields, "finish_reason", reason.String())
	}

	h.logger.Info("Successful response", logFields...)
}

func (h *ChatHandler) httpError(w http.ResponseWriter, code int, kind providers.ErrorKind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	h.logger.Error("HTTP Error", "code", code, "message", msg)
	middleware.WriteError(w, code, string(kind), msg)
}

// promptText gathers the text a tokenizer would see for the request.
func promptText(req *chat.Request) string {
	var sb strings.Builder
	for _, msg := range req.Messages {
		sb.WriteString(msg.Content.FlattenText())
		for _, call := range msg.ToolCalls {
			sb.WriteString(call.Function.Name)
			sb.WriteString(call.Function.Arguments)
		}
		sb.WriteByte('\n')
	}
	for _, tool := range req.Tools {
		sb.WriteString(tool.Name)
		sb.WriteString(tool.Description)
		sb.Write(tool.Parameters)
	}
	return sb.String()
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func (h *ChatHandler) countInputTokens(text string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encodingErr != nil {
		h.logger.Debug("Failed to get tiktoken encoding", "error", encodingErr)
		return 0
	}
	return len(encoding.Encode(text, nil, nil))
}
