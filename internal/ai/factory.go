package ai

import (
	"fmt"
	"strings"
)

// FactoryConfig controls provider construction.
type FactoryConfig struct {
	Mode    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewProvider builds a Provider by mode. "auto" prefers the real provider
// when an API key is configured and falls back to the mock otherwise, so the
// service always boots in development.
func NewProvider(cfg FactoryConfig) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIProvider(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		}
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider mode %q", cfg.Mode)
	}
}
