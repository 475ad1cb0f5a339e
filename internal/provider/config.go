// Package provider implements fix-generation oracles on top of hosted LLM
// APIs (Anthropic and OpenAI), plus client-side rate limiting and a named
// registry.
package provider

import (
	"fmt"
	"os"
	"time"
)

// Provider names accepted in Config.Name.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
)

// Config selects and configures one oracle.
type Config struct {
	Name      string        `koanf:"name" yaml:"name" validate:"required,oneof=anthropic openai"`
	Model     string        `koanf:"model" yaml:"model"`
	APIKey    string        `koanf:"api_key" yaml:"api_key,omitempty"`
	APIKeyEnv string        `koanf:"api_key_env" yaml:"api_key_env,omitempty"`
	BaseURL   string        `koanf:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	MaxTokens int           `koanf:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`

	// RequestsPerMinute throttles oracle calls client-side. 0 disables.
	RequestsPerMinute float64 `koanf:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
	Burst             int     `koanf:"burst" yaml:"burst" validate:"gte=0"`
}

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultMaxTokens      = 4096
	DefaultTimeout        = 120 * time.Second
)

// DefaultConfig returns an Anthropic oracle reading ANTHROPIC_API_KEY.
func DefaultConfig() Config {
	return Config{
		Name:              NameAnthropic,
		Model:             DefaultAnthropicModel,
		APIKeyEnv:         "ANTHROPIC_API_KEY",
		MaxTokens:         DefaultMaxTokens,
		Timeout:           DefaultTimeout,
		RequestsPerMinute: 30,
		Burst:             1,
	}
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		switch c.Name {
		case NameOpenAI:
			c.Model = DefaultOpenAIModel
		default:
			c.Model = DefaultAnthropicModel
		}
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.APIKeyEnv == "" {
		switch c.Name {
		case NameOpenAI:
			c.APIKeyEnv = "OPENAI_API_KEY"
		default:
			c.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
	}
}

// ResolveAPIKey returns APIKey, falling back to the APIKeyEnv variable.
func (c Config) ResolveAPIKey() (string, error) {
	if c.APIKey != "" {
		return os.ExpandEnv(c.APIKey), nil
	}
	if c.APIKeyEnv != "" {
		if v := os.Getenv(c.APIKeyEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no API key for provider %s: set api_key or %s", c.Name, c.APIKeyEnv)
}
