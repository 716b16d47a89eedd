package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

// Registry maps backend families to providers and dispatches requests.
type Registry struct {
	router    Router
	providers map[Family]Provider
}

func NewRegistry(router Router) *Registry {
	return &Registry{
		router:    router,
		providers: make(map[Family]Provider),
	}
}

// Register adds a provider under its family, replacing any previous one.
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Family()] = provider
}

// Get retrieves the provider for a family.
func (r *Registry) Get(family Family) (Provider, bool) {
	provider, exists := r.providers[family]
	return provider, exists
}

// Resolve routes a model identifier to its provider.
func (r *Registry) Resolve(model string) (Provider, error) {
	family := r.router.Route(model)

	provider, ok := r.Get(family)
	if !ok {
		return nil, &Error{
			Kind:    KindConfiguration,
			Family:  family,
			Message: fmt.Sprintf("no provider registered for family %s", family),
			Cause:   ErrNotConfigured,
		}
	}

	return provider, nil
}

// Complete resolves the provider for req.Model and serves the request.
func (r *Registry) Complete(ctx context.Context, req *chat.Request) (Provider, json.RawMessage, error) {
	provider, err := r.Resolve(req.Model)
	if err != nil {
		return nil, nil, err
	}

	body, err := provider.Complete(ctx, req)

	return provider, body, err
}

// List returns the registered families in sorted order.
func (r *Registry) List() []Family {
	families := make([]Family, 0, len(r.providers))
	for family := range r.providers {
		families = append(families, family)
	}
	slices.Sort(families)
	return families
}

// NameForBaseURL labels a chat-completions compatible base URL by its
// well-known host, falling back to "openai".
func NameForBaseURL(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil || u.Hostname() == "" {
		return "openai"
	}

	domain := strings.ToLower(u.Hostname())

	domainProviderMap := map[string]string{
		"openrouter.ai":            "openrouter",
		"api.openrouter.ai":        "openrouter",
		"api.openai.com":           "openai",
		"openai.com":               "openai",
		"integrate.api.nvidia.com": "nvidia",
		"api.nvidia.com":           "nvidia",
		"api.groq.com":             "groq",
		"api.deepseek.com":         "deepseek",
	}

	if name, exists := domainProviderMap[domain]; exists {
		return name
	}

	return domain
}

// Options configures Initialize.
type Options struct {
	VendorPrefix string
	Retry        RetryPolicy

	OpenAI    ChatCompletionsAPI
	OpenAIURL string
	Anthropic MessagesAPI
}

// Initialize builds a registry with both families registered. Families
// whose capability is nil are registered unconfigured and fail with
// KindConfiguration when called.
func Initialize(opts Options) *Registry {
	registry := NewRegistry(NewRouter(opts.VendorPrefix))

	logger := opts.Retry.logger()
	registry.Register(NewOpenAIProvider(NameForBaseURL(opts.OpenAIURL), opts.OpenAI, opts.Retry, logger))
	registry.Register(NewAnthropicProvider(opts.Anthropic, opts.Retry, logger))

	return registry
}
