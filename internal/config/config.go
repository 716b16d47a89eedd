package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Davincible/assistant-bridge/internal/chat"
)

const (
	DefaultPort           = 6970
	DefaultHost           = "127.0.0.1"
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"

	DefaultVendorPrefix   = "claude"
	DefaultModel          = "gpt-4o"
	DefaultRetryBackoff   = time.Second
	DefaultRequestTimeout = 120 * time.Second

	// AnthropicProvider is the provider name served by the Messages API.
	// Every other provider name is chat-completions compatible.
	AnthropicProvider = "anthropic"
	OpenAIProvider    = "openai"
)

// Environment variables that override file values.
const (
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvSecretKey        = "SECRET_KEY"
	EnvBridgeAPIKey     = "BRIDGE_API_KEY"
)

// DefaultProviderURLs fills api_base_url for well-known providers.
var DefaultProviderURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"anthropic":  "https://api.anthropic.com",
	"nvidia":     "https://integrate.api.nvidia.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com",
}

type Provider struct {
	Name    string `json:"name" yaml:"name"`
	APIBase string `json:"api_base_url,omitempty" yaml:"url,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// IsAnthropic reports whether the provider speaks the Messages API.
func (p Provider) IsAnthropic() bool {
	return strings.EqualFold(p.Name, AnthropicProvider)
}

type RouterConfig struct {
	// VendorPrefix selects the Anthropic family for model identifiers
	// starting with it.
	VendorPrefix string `json:"vendor_prefix,omitempty" yaml:"vendor_prefix,omitempty"`
	// Default is the model used by the CLI when none is given.
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

type GenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type TransportConfig struct {
	RetryBackoff   Duration `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

type Config struct {
	Host      string           `json:"HOST,omitempty" yaml:"host,omitempty"`
	Port      int              `json:"PORT,omitempty" yaml:"port,omitempty"`
	APIKey    string           `json:"APIKEY,omitempty" yaml:"api_key,omitempty"`
	SecretKey string           `json:"SECRET_KEY,omitempty" yaml:"secret_key,omitempty"`
	Providers []Provider       `json:"Providers" yaml:"providers"`
	Router    RouterConfig     `json:"Router" yaml:"router"`
	Defaults  GenerationConfig `json:"Defaults" yaml:"defaults"`
	Transport TransportConfig  `json:"Transport" yaml:"transport"`
}

// Default returns a configuration with every default applied and no
// providers.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Router.VendorPrefix == "" {
		c.Router.VendorPrefix = DefaultVendorPrefix
	}
	if c.Router.Default == "" {
		c.Router.Default = DefaultModel
	}
	if c.Defaults.Temperature == nil {
		temperature := chat.DefaultTemperature
		c.Defaults.Temperature = &temperature
	}
	if c.Defaults.MaxTokens == 0 {
		c.Defaults.MaxTokens = chat.DefaultMaxTokens
	}
	if c.Transport.RetryBackoff == 0 {
		c.Transport.RetryBackoff = Duration(DefaultRetryBackoff)
	}
	if c.Transport.RequestTimeout == 0 {
		c.Transport.RequestTimeout = Duration(DefaultRequestTimeout)
	}

	for i := range c.Providers {
		if c.Providers[i].APIBase == "" {
			c.Providers[i].APIBase = DefaultProviderURLs[strings.ToLower(c.Providers[i].Name)]
		}
	}
}

// applyEnv overlays credentials and base URLs from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvBridgeAPIKey); v != "" {
		c.APIKey = v
	}
	if v := getenv(EnvSecretKey); v != "" {
		c.SecretKey = v
	}

	if key, base := getenv(EnvOpenAIKey), getenv(EnvOpenAIBaseURL); key != "" || base != "" {
		p := c.ensureProvider(false, OpenAIProvider)
		if key != "" {
			p.APIKey = key
		}
		if base != "" {
			p.APIBase = base
		}
	}

	if key, base := getenv(EnvAnthropicKey), getenv(EnvAnthropicBaseURL); key != "" || base != "" {
		p := c.ensureProvider(true, AnthropicProvider)
		if key != "" {
			p.APIKey = key
		}
		if base != "" {
			p.APIBase = base
		}
	}
}

func (c *Config) ensureProvider(anthropic bool, name string) *Provider {
	if p := c.provider(anthropic); p != nil {
		return p
	}

	c.Providers = append(c.Providers, Provider{Name: name, APIBase: DefaultProviderURLs[name]})
	return &c.Providers[len(c.Providers)-1]
}

func (c *Config) provider(anthropic bool) *Provider {
	for i := range c.Providers {
		if c.Providers[i].IsAnthropic() == anthropic {
			return &c.Providers[i]
		}
	}
	return nil
}

// OpenAI returns the first chat-completions compatible provider, or nil.
func (c *Config) OpenAI() *Provider {
	return c.provider(false)
}

// Anthropic returns the Messages API provider, or nil.
func (c *Config) Anthropic() *Provider {
	return c.provider(true)
}

// Temperature returns the configured default temperature.
func (c *Config) Temperature() float64 {
	if c.Defaults.Temperature == nil {
		return chat.DefaultTemperature
	}
	return *c.Defaults.Temperature
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Router.VendorPrefix == "" {
		errs = append(errs, errors.New("router vendor prefix is required"))
	}
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}

	seen := map[bool]string{}
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("provider %d: name is required", i))
			continue
		}
		if p.APIBase == "" {
			errs = append(errs, fmt.Errorf("provider %s: API base URL is required", p.Name))
		}
		if p.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider %s: API key is required", p.Name))
		}
		if prev, dup := seen[p.IsAnthropic()]; dup {
			errs = append(errs, fmt.Errorf("provider %s: same backend family as %s, only the first is used", p.Name, prev))
		} else {
			seen[p.IsAnthropic()] = p.Name
		}
	}

	if t := c.Temperature(); t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("default temperature %v out of range [0, 2]", t))
	}
	if c.Defaults.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("default max_tokens %d must be positive", c.Defaults.MaxTokens))
	}
	if c.Transport.RetryBackoff < 0 {
		errs = append(errs, errors.New("retry backoff must not be negative"))
	}

	return errors.Join(errs...)
}

type Manager struct {
	baseDir     string
	getenv      func(string) string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir: baseDir,
		getenv:  os.Getenv,
	}
}

func (m *Manager) yamlPath() string {
	return filepath.Join(m.baseDir, DefaultYAMLFilename)
}

func (m *Manager) jsonPath() string {
	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

// Load reads config.yaml, falling back to config.json, then applies
// defaults and environment overrides.
func (m *Manager) Load() (*Config, error) {
	var cfg Config

	switch {
	case m.HasYAML():
		data, err := os.ReadFile(m.yamlPath())
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	default:
		data, err := os.ReadFile(m.jsonPath())
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnv(m.getenv)
	cfg.applyDefaults()

	m.configValue.Store(&cfg)
	return &cfg, nil
}

// LoadOrDefault behaves like Load but, when no file exists, starts from the
// defaults so that environment variables alone can configure the service.
func (m *Manager) LoadOrDefault() (*Config, error) {
	if m.Exists() {
		return m.Load()
	}

	cfg := &Config{}
	cfg.applyEnv(m.getenv)
	cfg.applyDefaults()

	m.configValue.Store(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes the configuration as JSON.
func (m *Manager) Save(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := m.write(m.jsonPath(), data); err != nil {
		return err
	}

	m.store(cfg)
	return nil
}

// SaveAsYAML writes the configuration as YAML, which takes precedence over
// JSON on the next Load.
func (m *Manager) SaveAsYAML(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml config: %w", err)
	}

	if err := m.write(m.yamlPath(), data); err != nil {
		return err
	}

	m.store(cfg)
	return nil
}

// store caches a defaulted copy; the caller's value is written to disk as is.
func (m *Manager) store(cfg *Config) {
	stored := *cfg
	stored.Providers = append([]Provider(nil), cfg.Providers...)
	stored.applyDefaults()

	m.configValue.Store(&stored)
}

func (m *Manager) write(path string, data []byte) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// CreateExampleYAML writes a commented starter config.yaml.
func (m *Manager) CreateExampleYAML() error {
	return m.write(m.yamlPath(), []byte(exampleYAML))
}

const exampleYAML = `# assistant-bridge configuration
host: 127.0.0.1
port: 6970

# Static key accepted as "Authorization: Bearer <key>" or "X-API-Key".
api_key: your-bridge-api-key-here
# HS256 secret for bearer JWTs carrying a user_id claim.
secret_key: ""

providers:
  - name: openai
    url: https://api.openai.com/v1
    api_key: your-openai-api-key-here
  - name: anthropic
    url: https://api.anthropic.com
    api_key: your-anthropic-api-key-here

router:
  vendor_prefix: claude
  default: gpt-4o

defaults:
  temperature: 0.3
  max_tokens: 4096

transport:
  retry_backoff: 1s
  request_timeout: 2m
`

// GetPath returns the file Load reads: config.yaml when present, otherwise
// config.json.
func (m *Manager) GetPath() string {
	if m.HasYAML() {
		return m.yamlPath()
	}
	return m.jsonPath()
}

func (m *Manager) Exists() bool {
	return m.HasYAML() || m.HasJSON()
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath())
	return err == nil
}

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath())
	return err == nil
}

// Duration is a time.Duration written as a Go duration string ("1s") in
// both JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}
