package providers

import (
	"encoding/json"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// ConvertTools maps generic tool declarations to the native flat shape, one
// to one and in order. Schemas are passed through untouched.
func ConvertTools(tools []chat.Tool) []AnthropicTool {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]AnthropicTool, 0, len(tools))
	for _, tool := range tools {
		schema := tool.Parameters
		if len(schema) == 0 || string(schema) == "null" {
			schema = emptyObjectSchema
		}

		converted = append(converted, AnthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	return converted
}

// Conversation is the output of NormalizeConversation.
type Conversation struct {
	// System is the directive of the last system message, "" if none.
	System string
	// Messages is the raw role-tagged sequence, not yet alternation-safe.
	Messages []BackendMessage
	// RecoveredCalls lists tool call ids whose arguments did not parse and
	// were replaced with an empty object.
	RecoveredCalls []string
}

// NormalizeConversation maps a generic message sequence onto native turns in
// a single left-to-right pass.
//
// A later system message replaces an earlier one rather than being appended,
// and an assistant turn with neither text nor tool calls is dropped. Both
// behaviours are kept on purpose; confirm intent before changing them.
func NormalizeConversation(messages []chat.Message) Conversation {
	var conv Conversation

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			conv.System = msg.Content.FlattenText()

		case chat.RoleUser:
			conv.Messages = append(conv.Messages, BackendMessage{
				Role:    RoleUser,
				Content: BlockContent(userBlocks(msg.Content)...),
			})

		case chat.RoleAssistant:
			var blocks []ContentBlock
			if text := msg.Content.FlattenText(); text != "" {
				blocks = append(blocks, TextBlock(text))
			}

			for _, call := range msg.ToolCalls {
				input, ok := parseToolArguments(call.Function.Arguments)
				if !ok {
					conv.RecoveredCalls = append(conv.RecoveredCalls, call.ID)
				}
				blocks = append(blocks, ToolUseBlock(call.ID, call.Function.Name, input))
			}

			if len(blocks) == 0 {
				continue
			}
			conv.Messages = append(conv.Messages, BackendMessage{
				Role:    RoleAssistant,
				Content: BlockContent(blocks...),
			})

		case chat.RoleTool:
			conv.Messages = append(conv.Messages, BackendMessage{
				Role:    RoleUser,
				Content: BlockContent(ToolResultBlock(msg.ToolCallID, toolPayload(msg.Content))),
			})
		}
	}

	return conv
}

// userBlocks returns a single Text block for non-empty text, no blocks for
// empty or absent content, and one block per part for structured content.
func userBlocks(content chat.Content) []ContentBlock {
	switch {
	case content.IsText():
		if content.String() == "" {
			return nil
		}
		return []ContentBlock{TextBlock(content.String())}
	case content.IsParts():
		parts := content.PartList()
		blocks := make([]ContentBlock, 0, len(parts))
		for _, part := range parts {
			if part.Type == ContentTypeText {
				blocks = append(blocks, TextBlock(part.Text))
				continue
			}
			blocks = append(blocks, RawBlock(part.Raw))
		}
		return blocks
	default:
		return nil
	}
}

func toolPayload(content chat.Content) json.RawMessage {
	if content.IsAbsent() {
		return json.RawMessage(`""`)
	}
	return content.JSON()
}

// parseToolArguments decodes serialized tool arguments. Anything that is not
// a JSON object yields an empty mapping and ok=false.
func parseToolArguments(arguments string) (map[string]any, bool) {
	if arguments == "" {
		return map[string]any{}, true
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return map[string]any{}, false
	}
	if input == nil {
		return map[string]any{}, true
	}

	return input, true
}

// MergeAlternation merges adjacent same-role turns so the sequence strictly
// alternates, then opens with a placeholder user turn if needed. Block order
// is preserved and the input is not modified.
func MergeAlternation(raw []BackendMessage) []BackendMessage {
	merged := make([]BackendMessage, 0, len(raw))

	for _, msg := range raw {
		if n := len(merged); n > 0 && merged[n-1].Role == msg.Role {
			prev := merged[n-1].Content.Blocks()
			next := msg.Content.Blocks()

			blocks := make([]ContentBlock, 0, len(prev)+len(next))
			blocks = append(blocks, prev...)
			blocks = append(blocks, next...)
			merged[n-1].Content = BlockContent(blocks...)

			continue
		}

		merged = append(merged, msg)
	}

	if len(merged) > 0 && merged[0].Role != RoleUser {
		placeholder := BackendMessage{
			Role:    RoleUser,
			Content: BlockContent(TextBlock(PlaceholderUserText)),
		}
		merged = append([]BackendMessage{placeholder}, merged...)
	}

	return merged
}
