package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

// Family identifies a backend chat-completion protocol.
type Family string

const (
	// FamilyOpenAI covers OpenAI and every chat-completions compatible proxy.
	FamilyOpenAI Family = "openai"
	// FamilyAnthropic is the block-structured Messages protocol.
	FamilyAnthropic Family = "anthropic"

	// DefaultVendorPrefix routes model identifiers to FamilyAnthropic.
	DefaultVendorPrefix = "claude"
)

const (
	RoleAssistant = chat.RoleAssistant
	RoleUser      = chat.RoleUser

	ContentTypeText       = "text"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"

	// PlaceholderUserText opens a conversation whose first surviving turn
	// is not from the user.
	PlaceholderUserText = "Hello"

	ToolChoiceAuto = "auto"
)

// Provider serves a uniform chat request against one backend family and
// returns the uniform JSON response body.
type Provider interface {
	Name() string
	Family() Family
	Complete(ctx context.Context, req *chat.Request) (json.RawMessage, error)
}

// Router classifies model identifiers into backend families.
type Router struct {
	vendorPrefix string
}

func NewRouter(vendorPrefix string) Router {
	if vendorPrefix == "" {
		vendorPrefix = DefaultVendorPrefix
	}
	return Router{vendorPrefix: vendorPrefix}
}

// Route is total: identifiers with the vendor prefix go to FamilyAnthropic,
// everything else to FamilyOpenAI.
func (r Router) Route(model string) Family {
	prefix := r.vendorPrefix
	if prefix == "" {
		prefix = DefaultVendorPrefix
	}

	if strings.HasPrefix(model, prefix) {
		return FamilyAnthropic
	}

	return FamilyOpenAI
}
