package providers

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

// NormalizeResponse rebuilds the uniform response from a native Messages
// response. Text blocks are concatenated in order regardless of where tool
// use blocks sit between them.
func NormalizeResponse(resp *MessagesResponse) *chat.Response {
	var (
		text      strings.Builder
		sawText   bool
		toolCalls []chat.ToolCall
	)

	for _, block := range resp.Content {
		switch block.Type {
		case ContentTypeText:
			sawText = true
			text.WriteString(block.Text)
		case ContentTypeToolUse:
			toolCalls = append(toolCalls, chat.ToolCall{
				ID:   block.ID,
				Type: chat.ToolTypeFunction,
				Function: chat.FunctionCall{
					Name:      block.Name,
					Arguments: serializeInput(block.Input),
				},
			})
		}
	}

	message := chat.ResponseMessage{
		Role:      RoleAssistant,
		ToolCalls: toolCalls,
	}
	if sawText {
		content := text.String()
		message.Content = &content
	}

	finishReason := chat.FinishReasonStop
	if resp.StopReason != nil && *resp.StopReason != "" {
		finishReason = *resp.StopReason
	}

	var usage chat.Usage
	if resp.Usage != nil {
		usage = chat.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}

	return &chat.Response{
		ID:     resp.ID,
		Object: chat.ObjectCompletion,
		Model:  resp.Model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      message,
			FinishReason: finishReason,
		}},
		Usage: usage,
	}
}

// serializeInput renders a tool_use input as compact JSON, "{}" when absent.
func serializeInput(input json.RawMessage) string {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}

	return buf.String()
}
