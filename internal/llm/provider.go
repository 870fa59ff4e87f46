package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is one chat exchange entry sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tune a single backend request.
type GenerateOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Provider abstracts a text-generation backend. Implementations return the
// backend's plain-text completion and surface transport or auth failures as
// errors; callers decide how to degrade.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
	Name() string
	Model() string
}

// Config controls provider construction.
type Config struct {
	Mode string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	RequestTimeout time.Duration
}

// NewProvider builds a provider from the configured mode. Mode "auto" picks
// the first backend with credentials and falls back to the deterministic
// mock provider so the service always starts.
func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return newOpenAIProvider(cfg)
		}
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			return newAnthropicProvider(cfg)
		}
		return NewMockProvider(), nil
	case "openai":
		return newOpenAIProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider mode %q", cfg.Mode)
	}
}

func newOpenAIProvider(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is required for openai mode")
	}
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.OpenAIModel,
		BaseURL:        cfg.OpenAIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
	}), nil
}

func newAnthropicProvider(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is required for anthropic mode")
	}
	return NewAnthropicProvider(AnthropicConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	}), nil
}
