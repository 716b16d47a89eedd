package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

func decodeMessages(t *testing.T, raw string) []chat.Message {
	t.Helper()

	var msgs []chat.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))

	return msgs
}

func roles(msgs []BackendMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

func TestConvertTools(t *testing.T) {
	var tools []chat.Tool
	require.NoError(t, json.Unmarshal([]byte(`[
		{"type":"function","function":{"name":"get_weather","description":"Get current weather","parameters":{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}}},
		{"name":"flat_tool","description":"Flat shape","parameters":{"type":"object","properties":{"q":{"type":"string"}}}},
		{"type":"function","function":{"name":"no_params","description":"No schema"}}
	]`), &tools))

	converted := ConvertTools(tools)
	require.Len(t, converted, 3)

	assert.Equal(t, "get_weather", converted[0].Name)
	assert.Equal(t, "Get current weather", converted[0].Description)
	assert.JSONEq(t, `{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}`, string(converted[0].InputSchema))

	assert.Equal(t, "flat_tool", converted[1].Name)
	assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`, string(converted[1].InputSchema))

	assert.Equal(t, "no_params", converted[2].Name)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(converted[2].InputSchema))
}

func TestConvertTools_PreservesMalformedSchema(t *testing.T) {
	tools := []chat.Tool{
		{Name: "a", Description: "first", Parameters: json.RawMessage(`"not-a-schema"`)},
		{Name: "a", Description: "duplicate", Parameters: json.RawMessage(`[1,2]`)},
	}

	converted := ConvertTools(tools)
	require.Len(t, converted, 2, "duplicates are not removed")
	assert.Equal(t, `"not-a-schema"`, string(converted[0].InputSchema))
	assert.Equal(t, `[1,2]`, string(converted[1].InputSchema))
	assert.Equal(t, "duplicate", converted[1].Description)
}

func TestConvertTools_Empty(t *testing.T) {
	assert.Nil(t, ConvertTools(nil))
}

func TestNormalizeConversation_SystemAndUser(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"system","content":"Be terse."},
		{"role":"user","content":"2+2?"}
	]`)

	conv := NormalizeConversation(msgs)
	merged := MergeAlternation(conv.Messages)

	assert.Equal(t, "Be terse.", conv.System)
	require.Len(t, merged, 1)
	assert.Equal(t, RoleUser, merged[0].Role)
	assert.Equal(t, []ContentBlock{TextBlock("2+2?")}, merged[0].Content.Blocks())
}

func TestNormalizeConversation_LastSystemWins(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"system","content":"first"},
		{"role":"user","content":"hi"},
		{"role":"system","content":"second"}
	]`)

	conv := NormalizeConversation(msgs)

	assert.Equal(t, "second", conv.System)
	require.Len(t, conv.Messages, 1, "system messages are never embedded")
}

func TestNormalizeConversation_EmptyUserContentIsKept(t *testing.T) {
	msgs := decodeMessages(t, `[{"role":"user","content":""}]`)

	conv := NormalizeConversation(msgs)

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Empty(t, conv.Messages[0].Content.Blocks())

	data, err := json.Marshal(conv.Messages[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[]}`, string(data))
}

func TestNormalizeConversation_EmptyAssistantIsDropped(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":"hi"},
		{"role":"assistant","tool_calls":[]},
		{"role":"assistant","content":""}
	]`)

	conv := NormalizeConversation(msgs)

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
}

func TestNormalizeConversation_ToolRoundTrip(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":"hi"},
		{"role":"assistant","tool_calls":[{"id":"t1","type":"function","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]},
		{"role":"tool","tool_call_id":"t1","content":"result"}
	]`)

	merged := MergeAlternation(NormalizeConversation(msgs).Messages)

	require.Len(t, merged, 3)
	assert.Equal(t, []string{RoleUser, RoleAssistant, RoleUser}, roles(merged))

	toolUse := merged[1].Content.Blocks()
	require.Len(t, toolUse, 1)
	assert.Equal(t, ContentTypeToolUse, toolUse[0].Type)
	assert.Equal(t, "t1", toolUse[0].ID)
	assert.Equal(t, "lookup", toolUse[0].Name)
	assert.Equal(t, map[string]any{"q": "x"}, toolUse[0].Input)

	toolResult := merged[2].Content.Blocks()
	require.Len(t, toolResult, 1)
	assert.Equal(t, ContentTypeToolResult, toolResult[0].Type)
	assert.Equal(t, "t1", toolResult[0].ToolUseID, "tool result references the emitted tool use id")
	assert.JSONEq(t, `"result"`, string(toolResult[0].Content))
}

func TestNormalizeConversation_AssistantTextThenToolCalls(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":"weather?"},
		{"role":"assistant","content":"Checking.","tool_calls":[
			{"id":"a","type":"function","function":{"name":"f","arguments":"{}"}},
			{"id":"b","type":"function","function":{"name":"g","arguments":"{\"n\":1}"}}
		]}
	]`)

	conv := NormalizeConversation(msgs)
	require.Len(t, conv.Messages, 2)

	blocks := conv.Messages[1].Content.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, TextBlock("Checking."), blocks[0])
	assert.Equal(t, "a", blocks[1].ID)
	assert.Equal(t, "b", blocks[2].ID, "parallel call order is preserved")
	assert.Equal(t, map[string]any{"n": float64(1)}, blocks[2].Input)
}

func TestNormalizeConversation_InvalidArguments(t *testing.T) {
	tests := []struct {
		name      string
		arguments string
		recovered bool
	}{
		{name: "not json", arguments: "{not json", recovered: true},
		{name: "array", arguments: "[1,2]", recovered: true},
		{name: "empty string", arguments: "", recovered: false},
		{name: "null", arguments: "null", recovered: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []chat.Message{{
				Role: chat.RoleAssistant,
				ToolCalls: []chat.ToolCall{{
					ID:       "c1",
					Type:     chat.ToolTypeFunction,
					Function: chat.FunctionCall{Name: "f", Arguments: tt.arguments},
				}},
			}}

			conv := NormalizeConversation(msgs)

			require.Len(t, conv.Messages, 1)
			blocks := conv.Messages[0].Content.Blocks()
			require.Len(t, blocks, 1)
			assert.Equal(t, map[string]any{}, blocks[0].Input)

			if tt.recovered {
				assert.Equal(t, []string{"c1"}, conv.RecoveredCalls)
			} else {
				assert.Empty(t, conv.RecoveredCalls)
			}
		})
	}
}

func TestNormalizeConversation_StructuredUserContent(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":[
			{"type":"text","text":"look at this"},
			{"type":"image","source":{"type":"url","url":"https://example.com/a.png"}}
		]}
	]`)

	conv := NormalizeConversation(msgs)
	require.Len(t, conv.Messages, 1)

	blocks := conv.Messages[0].Content.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, TextBlock("look at this"), blocks[0])
	assert.Equal(t, "image", blocks[1].Type)

	data, err := json.Marshal(blocks[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"image","source":{"type":"url","url":"https://example.com/a.png"}}`, string(data))
}

func TestNormalizeConversation_StructuredToolPayload(t *testing.T) {
	msgs := decodeMessages(t, `[{"role":"tool","tool_call_id":"t9","content":[{"type":"text","text":"42"}]}]`)

	conv := NormalizeConversation(msgs)
	require.Len(t, conv.Messages, 1)

	data, err := json.Marshal(conv.Messages[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"tool_result","tool_use_id":"t9","content":[{"type":"text","text":"42"}]}]}`, string(data))
}

func TestMergeAlternation_ParallelToolResults(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":"do both"},
		{"role":"assistant","tool_calls":[
			{"id":"t1","type":"function","function":{"name":"a","arguments":"{}"}},
			{"id":"t2","type":"function","function":{"name":"b","arguments":"{}"}}
		]},
		{"role":"tool","tool_call_id":"t1","content":"one"},
		{"role":"tool","tool_call_id":"t2","content":"two"}
	]`)

	merged := MergeAlternation(NormalizeConversation(msgs).Messages)

	require.Len(t, merged, 3)
	results := merged[2].Content.Blocks()
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.Equal(t, "t2", results[1].ToolUseID)
}

func TestMergeAlternation_PrependsPlaceholder(t *testing.T) {
	raw := []BackendMessage{
		{Role: RoleAssistant, Content: BlockContent(TextBlock("I start"))},
		{Role: RoleUser, Content: BlockContent(TextBlock("ok"))},
	}

	merged := MergeAlternation(raw)

	require.Len(t, merged, 3)
	assert.Equal(t, RoleUser, merged[0].Role)
	assert.Equal(t, []ContentBlock{TextBlock(PlaceholderUserText)}, merged[0].Content.Blocks())
	assert.Equal(t, []string{RoleUser, RoleAssistant, RoleUser}, roles(merged))
}

func TestMergeAlternation_CoercesBareText(t *testing.T) {
	raw := []BackendMessage{
		{Role: RoleUser, Content: TextContent("first")},
		{Role: RoleUser, Content: BlockContent(TextBlock("second"))},
		{Role: RoleUser, Content: TextContent("third")},
	}

	merged := MergeAlternation(raw)

	require.Len(t, merged, 1)
	assert.False(t, merged[0].Content.IsText())
	assert.Equal(t, []ContentBlock{
		TextBlock("first"),
		TextBlock("second"),
		TextBlock("third"),
	}, merged[0].Content.Blocks())
}

func TestMergeAlternation_DoesNotMutateInput(t *testing.T) {
	raw := []BackendMessage{
		{Role: RoleUser, Content: BlockContent(TextBlock("a"))},
		{Role: RoleUser, Content: BlockContent(TextBlock("b"))},
	}

	_ = MergeAlternation(raw)

	assert.Equal(t, []ContentBlock{TextBlock("a")}, raw[0].Content.Blocks())
	assert.Equal(t, []ContentBlock{TextBlock("b")}, raw[1].Content.Blocks())
}

func TestMergeAlternation_Properties(t *testing.T) {
	sequences := [][]string{
		{},
		{RoleUser},
		{RoleAssistant},
		{RoleAssistant, RoleAssistant, RoleUser},
		{RoleUser, RoleUser, RoleAssistant, RoleAssistant, RoleUser},
		{RoleUser, RoleAssistant, RoleUser, RoleAssistant},
		{RoleAssistant, RoleUser, RoleUser, RoleAssistant, RoleUser, RoleUser},
	}

	for _, seq := range sequences {
		raw := make([]BackendMessage, 0, len(seq))
		for i, role := range seq {
			raw = append(raw, BackendMessage{Role: role, Content: BlockContent(TextBlock(string(rune('a' + i))))})
		}

		merged := MergeAlternation(raw)

		for i := 1; i < len(merged); i++ {
			assert.NotEqual(t, merged[i-1].Role, merged[i].Role, "sequence %v: consecutive roles at %d", seq, i)
		}
		if len(merged) > 0 {
			assert.Equal(t, RoleUser, merged[0].Role, "sequence %v: must open with user", seq)
		}

		again := MergeAlternation(merged)
		assert.Equal(t, merged, again, "sequence %v: merging is idempotent", seq)
	}
}

func TestMergeAlternation_Empty(t *testing.T) {
	assert.Empty(t, MergeAlternation(nil))
}

func TestNormalizeConversation_UserBlocksPassVerbatim(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"result"}]},
		{"role":"user","content":[{"type":"tool_use","id":"t2","name":"f","input":{"q":"x"}}]},
		{"role":"user","content":{"type":"text","text":"hello"}}
	]`)

	merged := MergeAlternation(NormalizeConversation(msgs).Messages)

	out, err := json.Marshal(merged)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"role":"user","content":[
		{"type":"tool_result","tool_use_id":"t1","content":"result"},
		{"type":"tool_use","id":"t2","name":"f","input":{"q":"x"}},
		{"type":"text","text":"hello"}
	]}]`, string(out))
}

func TestContentBlock_RawWinsOverType(t *testing.T) {
	raw := json.RawMessage(`{"type":"text","text":"kept","cache_control":{"type":"ephemeral"}}`)

	out, err := json.Marshal(RawBlock(raw))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestNormalizeConversation_ObjectArguments(t *testing.T) {
	msgs := decodeMessages(t, `[
		{"role":"user","content":"hi"},
		{"role":"assistant","tool_calls":[{"id":"t1","type":"function","function":{"name":"lookup","arguments":{"q":"x"}}}]}
	]`)

	conv := NormalizeConversation(msgs)

	require.Len(t, conv.Messages, 2)
	blocks := conv.Messages[1].Content.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, map[string]any{"q": "x"}, blocks[0].Input)
	assert.Empty(t, conv.RecoveredCalls)
}
