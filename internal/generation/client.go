// Package generation turns a chat turn into a prompt, sends it to a hosted
// text-generation API and falls back to a static apology on failure.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by NewClient.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Default model per provider.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

var (
	ErrNotConfigured   = errors.New("generation provider not configured")
	ErrUnknownProvider = errors.New("unknown generation provider")
)

// Client sends a single prompt to a text-generation backend.
type Client interface {
	Provider() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ClientConfig selects and configures a Client.
type ClientConfig struct {
	Provider     string
	Model        string
	GoogleAPIKey string
	OpenAIAPIKey string
}

// NewClient builds the client for cfg.Provider. A provider without an API key
// yields a client whose every call fails with ErrNotConfigured, so chat still
// answers with the apology text.
func NewClient(cfg ClientConfig) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}

	switch provider {
	case ProviderGemini:
		if cfg.GoogleAPIKey == "" {
			return unavailableClient{provider: provider}, nil
		}
		return NewGeminiClient(cfg.GoogleAPIKey, cfg.Model), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return unavailableClient{provider: provider}, nil
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model, ""), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// IsConfigured reports whether c can reach a real backend.
func IsConfigured(c Client) bool {
	_, unavailable := c.(unavailableClient)
	return c != nil && !unavailable
}

type unavailableClient struct {
	provider string
}

func (c unavailableClient) Provider() string { return c.provider }

func (c unavailableClient) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%s: %w", c.provider, ErrNotConfigured)
}
