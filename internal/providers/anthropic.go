package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Davincible/assistant-bridge/internal/chat"
	"github.com/Davincible/assistant-bridge/internal/metrics"
)

// AnthropicProvider serves uniform requests against the Messages API and
// normalizes the answer back to the uniform shape.
type AnthropicProvider struct {
	name   string
	api    MessagesAPI
	retry  RetryPolicy
	logger *slog.Logger
}

// NewAnthropicProvider wires the provider to its backend capability. A nil
// api leaves the family unconfigured.
func NewAnthropicProvider(api MessagesAPI, retry RetryPolicy, logger *slog.Logger) *AnthropicProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &AnthropicProvider{
		name:   "anthropic",
		api:    api,
		retry:  retry,
		logger: logger,
	}
}

func (p *AnthropicProvider) Name() string {
	return p.name
}

func (p *AnthropicProvider) Family() Family {
	return FamilyAnthropic
}

// BuildRequest converts a uniform request into the native request body.
func (p *AnthropicProvider) BuildRequest(req *chat.Request) *MessagesRequest {
	conv := NormalizeConversation(req.Messages)
	if len(conv.RecoveredCalls) > 0 {
		p.logger.Debug("Replaced unparsable tool arguments with empty object",
			"tool_call_ids", conv.RecoveredCalls,
		)
	}

	return &MessagesRequest{
		Model:       req.Model,
		Messages:    MergeAlternation(conv.Messages),
		MaxTokens:   req.GetMaxTokens(),
		Temperature: req.GetTemperature(),
		System:      conv.System,
		Tools:       ConvertTools(req.Tools),
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *chat.Request) (json.RawMessage, error) {
	if p.api == nil {
		return nil, notConfiguredError(FamilyAnthropic)
	}

	native := p.BuildRequest(req)

	resp, err := Retry(ctx, FamilyAnthropic, p.retry, func(ctx context.Context) (*MessagesResponse, error) {
		start := time.Now()
		resp, err := p.api.CreateMessage(ctx, native)
		observeAttempt(FamilyAnthropic, req.Model, start, err)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	if resp.Usage != nil {
		recordUsage(FamilyAnthropic, req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	body, err := json.Marshal(NormalizeResponse(resp))
	if err != nil {
		return nil, &Error{
			Kind:    KindUnclassified,
			Family:  FamilyAnthropic,
			Message: fmt.Sprintf("marshal normalized response: %v", err),
			Cause:   err,
		}
	}

	return body, nil
}

// observeAttempt records the latency and outcome of one backend attempt.
func observeAttempt(family Family, model string, start time.Time, err error) {
	model = metrics.ModelLabel(model)
	metrics.BackendLatency.WithLabelValues(string(family), model).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(KindUnclassified)
		var perr *Error
		if errors.As(err, &perr) {
			outcome = string(perr.Kind)
		}
	}

	metrics.BackendRequestsTotal.WithLabelValues(string(family), model, outcome).Inc()
}

// recordUsage adds backend-reported token counts; non-positive counts are
// skipped.
func recordUsage(family Family, model string, input, output int) {
	model = metrics.ModelLabel(model)
	if input > 0 {
		metrics.TokensTotal.WithLabelValues(string(family), model, "input").Add(float64(input))
	}
	if output > 0 {
		metrics.TokensTotal.WithLabelValues(string(family), model, "output").Add(float64(output))
	}
}
