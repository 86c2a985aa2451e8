// Package llm is the provider-agnostic language model capability used by the
// classifier, the data agent's query selector and the narrative builder. Two
// providers may be configured; the failover client switches to the fallback
// when the primary rate-limits.
package llm

import (
	"context"
	"fmt"

	"insight-engine/internal/common/config"
)

// Request is one completion call. When JSONOnly is set, providers that
// support constrained output request a JSON response; the caller still
// validates the result against its schema.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
	JSONOnly    bool
}

// Provider is a single model endpoint.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider builds a provider from config.
func NewProvider(ctx context.Context, cfg config.LLMProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.Model, cfg.APIKey), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
