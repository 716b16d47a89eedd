package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

// ChatCompletionRequest is the outbound body for the default family.
// Messages and tools serialize as their inbound bytes.
type ChatCompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Tools       []chat.Tool    `json:"tools,omitempty"`
	ToolChoice  string         `json:"tool_choice,omitempty"`
}

// OpenAIProvider passes uniform requests through to a chat-completions
// backend; its response already has the uniform shape.
type OpenAIProvider struct {
	name   string
	api    ChatCompletionsAPI
	retry  RetryPolicy
	logger *slog.Logger
}

// NewOpenAIProvider wires the provider to its backend capability. name labels
// the concrete backend (openai, openrouter, ...) in logs.
func NewOpenAIProvider(name string, api ChatCompletionsAPI, retry RetryPolicy, logger *slog.Logger) *OpenAIProvider {
	if name == "" {
		name = "openai"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIProvider{
		name:   name,
		api:    api,
		retry:  retry,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Family() Family {
	return FamilyOpenAI
}

// BuildRequest adds the "auto" tool selection hint when tools are present.
func (p *OpenAIProvider) BuildRequest(req *chat.Request) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.GetTemperature(),
		MaxTokens:   req.GetMaxTokens(),
	}

	if len(req.Tools) > 0 {
		out.Tools = req.Tools
		out.ToolChoice = ToolChoiceAuto
	}

	return out
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *chat.Request) (json.RawMessage, error) {
	if p.api == nil {
		return nil, notConfiguredError(FamilyOpenAI)
	}

	native := p.BuildRequest(req)

	body, err := Retry(ctx, FamilyOpenAI, p.retry, func(ctx context.Context) (json.RawMessage, error) {
		start := time.Now()
		body, err := p.api.CreateChatCompletion(ctx, native)
		observeAttempt(FamilyOpenAI, req.Model, start, err)
		return body, err
	})
	if err != nil {
		return nil, err
	}

	// The body is passed through untouched; usage is only read for metrics.
	if usage := gjson.GetBytes(body, "usage"); usage.IsObject() {
		recordUsage(FamilyOpenAI, req.Model,
			int(usage.Get("prompt_tokens").Int()),
			int(usage.Get("completion_tokens").Int()),
		)
	}

	return body, nil
}
