// Package chat holds the uniform, OpenAI chat-completions shaped request and
// response types accepted and returned by the bridge regardless of which
// backend family serves a call.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4096

	FinishReasonStop = "stop"
	ObjectCompletion = "chat.completion"
	ToolTypeFunction = "function"
)

// Request is the inbound conversation request.
type Request struct {
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Model       string    `json:"model"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// ApplyDefaults fills temperature and max_tokens when the caller left them out.
func (r *Request) ApplyDefaults(temperature float64, maxTokens int) {
	if r.Temperature == nil {
		r.Temperature = &temperature
	}
	if r.MaxTokens == nil {
		r.MaxTokens = &maxTokens
	}
}

// GetTemperature returns the temperature or the package default.
func (r *Request) GetTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// GetMaxTokens returns max_tokens or the package default.
func (r *Request) GetMaxTokens() int {
	if r.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *r.MaxTokens
}

// Message is one conversation turn. Raw keeps the exact inbound bytes so the
// default backend family receives the message unmodified.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type messageAlias Message

func (m *Message) UnmarshalJSON(data []byte) error {
	var alias messageAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	*m = Message(alias)
	m.Raw = append(json.RawMessage(nil), data...)

	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}

	return json.Marshal(messageAlias(m))
}

// ToolCall is an assistant-issued function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UnmarshalJSON accepts arguments either as the usual serialized string or
// as an inline JSON value, which is kept as its JSON text.
func (f *FunctionCall) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	f.Name = wire.Name
	f.Arguments = ""

	args := bytes.TrimSpace(wire.Arguments)
	switch {
	case len(args) == 0 || bytes.Equal(args, []byte("null")):
	case args[0] == '"':
		if err := json.Unmarshal(args, &f.Arguments); err != nil {
			return fmt.Errorf("arguments: %w", err)
		}
	default:
		f.Arguments = string(args)
	}

	return nil
}

// Tool is a generic tool declaration. Both the nested OpenAI shape
// {type, function:{name, description, parameters}} and the flat shape
// {name, description, parameters} are accepted.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage

	Raw json.RawMessage
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolWire struct {
	Type     string        `json:"type,omitempty"`
	Function *toolFunction `json:"function,omitempty"`
	toolFunction
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	var wire toolWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	fn := wire.toolFunction
	if wire.Function != nil {
		fn = *wire.Function
	}

	t.Name = fn.Name
	t.Description = fn.Description
	t.Parameters = fn.Parameters
	t.Raw = append(json.RawMessage(nil), data...)

	return nil
}

// MarshalJSON emits the inbound bytes when present, otherwise the nested
// OpenAI function shape.
func (t Tool) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}

	return json.Marshal(struct {
		Type     string       `json:"type"`
		Function toolFunction `json:"function"`
	}{
		Type: ToolTypeFunction,
		Function: toolFunction{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		},
	})
}

// Response is the uniform chat completion response.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage always serializes content, as null when absent.
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrEmptyMessages is returned by Validate when no messages were supplied.
var ErrEmptyMessages = fmt.Errorf("messages must not be empty")

// Validate performs the minimal inbound shape checks.
func (r *Request) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return fmt.Errorf("messages[%d]: unsupported role %q", i, msg.Role)
		}
	}

	return nil
}

// DecodeRequest strictly decodes a request body, rejecting trailing data.
func DecodeRequest(body []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode request: unexpected trailing data")
	}

	return &req, nil
}
