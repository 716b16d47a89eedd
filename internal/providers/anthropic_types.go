package providers

import (
	"encoding/json"
	"fmt"
)

// MessagesRequest is the native request body of the Messages API.
type MessagesRequest struct {
	Model       string           `json:"model"`
	Messages    []BackendMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system,omitempty"`
	Tools       []AnthropicTool  `json:"tools,omitempty"`
}

// AnthropicTool is the flat native tool declaration.
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// BackendMessage is one user or assistant turn of the native conversation.
type BackendMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a bare string or an ordered block list.
type MessageContent struct {
	text   *string
	blocks []ContentBlock
}

// TextContent builds bare string content.
func TextContent(s string) MessageContent {
	return MessageContent{text: &s}
}

// BlockContent builds block-list content. A nil list still marshals as [].
func BlockContent(blocks ...ContentBlock) MessageContent {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return MessageContent{blocks: blocks}
}

// IsText reports whether the content is a bare string.
func (c MessageContent) IsText() bool {
	return c.text != nil
}

// Blocks returns the block list, wrapping bare text as a single Text block.
func (c MessageContent) Blocks() []ContentBlock {
	if c.text != nil {
		return []ContentBlock{TextBlock(*c.text)}
	}
	return c.blocks
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.text != nil {
		return json.Marshal(*c.text)
	}
	if c.blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.blocks)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	*c = BlockContent(blocks...)

	return nil
}

// ContentBlock is a tagged unit of native message content. Blocks built by
// RawBlock, and decoded blocks of unknown type, are carried verbatim in Raw.
type ContentBlock struct {
	Type      string
	Text      string
	ID        string
	Name      string
	Input     map[string]any
	ToolUseID string
	Content   json.RawMessage
	Raw       json.RawMessage
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: ContentTypeToolUse, ID: id, Name: name, Input: input}
}

func ToolResultBlock(toolUseID string, content json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentTypeToolResult, ToolUseID: toolUseID, Content: content}
}

// RawBlock carries an opaque JSON block.
func RawBlock(raw json.RawMessage) ContentBlock {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &head)

	return ContentBlock{Type: head.Type, Raw: raw}
}

// MarshalJSON emits Raw verbatim whenever it is set, whatever the block type.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}

	switch b.Type {
	case ContentTypeText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case ContentTypeToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	case ContentTypeToolResult:
		content := b.Content
		if len(content) == 0 {
			content = json.RawMessage(`""`)
		}
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
		}{b.Type, b.ToolUseID, content})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{b.Type})
	}
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type      string          `json:"type"`
		Text      string          `json:"text"`
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Input     map[string]any  `json:"input"`
		ToolUseID string          `json:"tool_use_id"`
		Content   json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("content block: %w", err)
	}

	switch wire.Type {
	case ContentTypeText:
		*b = TextBlock(wire.Text)
	case ContentTypeToolUse:
		*b = ToolUseBlock(wire.ID, wire.Name, wire.Input)
	case ContentTypeToolResult:
		*b = ToolResultBlock(wire.ToolUseID, wire.Content)
	default:
		*b = RawBlock(append(json.RawMessage(nil), data...))
	}

	return nil
}

// MessagesResponse is the native non-streaming response body.
type MessagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	Content    []ResponseBlock `json:"content"`
	StopReason *string         `json:"stop_reason,omitempty"`
	Usage      *AnthropicUsage `json:"usage,omitempty"`
}

// ResponseBlock is a content block as returned by the backend.
type ResponseBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
