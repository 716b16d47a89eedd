package providers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/tidwall/gjson"
)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	AnthropicVersion        = "2023-06-01"

	messagesPath        = "/v1/messages"
	chatCompletionsPath = "/chat/completions"

	defaultHTTPTimeout = 120 * time.Second
	maxErrorBodyBytes  = 4096
)

// MessagesAPI is the secondary family's backend capability.
type MessagesAPI interface {
	CreateMessage(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error)
}

// ChatCompletionsAPI is the default family's backend capability. The
// response body is returned verbatim.
type ChatCompletionsAPI interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (json.RawMessage, error)
}

// httpBackend posts JSON to a single endpoint and classifies failures.
type httpBackend struct {
	family  Family
	client  *http.Client
	url     string
	headers map[string]string
}

func newHTTPBackend(family Family, url string, timeout time.Duration, headers map[string]string) *httpBackend {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &httpBackend{
		family:  family,
		client:  &http.Client{Timeout: timeout},
		url:     url,
		headers: headers,
	}
}

func (b *httpBackend) post(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", b.family, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", b.family, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	for key, value := range b.headers {
		req.Header.Set(key, value)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", b.family, err)
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompress %s response: %w", b.family, err)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", b.family, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ClassifyStatus(b.family, resp.StatusCode, extractErrorMessage(data))
	}

	return data, nil
}

// decompressReader unwraps gzip and brotli encoded bodies. Encoding is
// requested explicitly, so the transport does not do this for us.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// extractErrorMessage pulls a human readable message out of a backend error
// body, falling back to the truncated body itself.
func extractErrorMessage(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "detail", "error"} {
			if res := gjson.GetBytes(body, path); res.Exists() && res.Type == gjson.String && res.String() != "" {
				return res.String()
			}
		}
	}

	return strings.TrimSpace(string(body))
}

// AnthropicClient calls the Messages API over HTTP.
type AnthropicClient struct {
	backend *httpBackend
}

// NewAnthropicClient returns nil when apiKey is empty so that callers treat
// the family as not configured.
func NewAnthropicClient(baseURL, apiKey string, timeout time.Duration) *AnthropicClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}

	return &AnthropicClient{
		backend: newHTTPBackend(FamilyAnthropic, strings.TrimRight(baseURL, "/")+messagesPath, timeout, map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": AnthropicVersion,
		}),
	}
}

func (c *AnthropicClient) CreateMessage(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	data, err := c.backend.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}

	return &resp, nil
}

// OpenAIClient calls a chat-completions endpoint over HTTP.
type OpenAIClient struct {
	backend *httpBackend
}

// NewOpenAIClient returns nil when apiKey is empty.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	return &OpenAIClient{
		backend: newHTTPBackend(FamilyOpenAI, strings.TrimRight(baseURL, "/")+chatCompletionsPath, timeout, map[string]string{
			"Authorization": "Bearer " + apiKey,
		}),
	}
}

func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (json.RawMessage, error) {
	data, err := c.backend.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("decode openai response: invalid JSON body")
	}

	return json.RawMessage(data), nil
}
