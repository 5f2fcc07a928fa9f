package reason

import (
	"context"
	"fmt"

	"github.com/quizchain/quizchain/config"
)

// Provider is one LLM backend: prompt in, completion out. Calls may
// fail or be rate-limited; the chain treats every failure the same way
// and escalates to the next candidate.
type Provider interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// NewProvider creates a provider from its configuration.
func NewProvider(name string, cfg config.LLMProvider, opts Options) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, opts), nil
	case "gemini":
		return NewGeminiProvider(cfg, opts)
	default:
		return nil, fmt.Errorf("unsupported LLM provider type %q for %q", cfg.Type, name)
	}
}

// Options are generation parameters shared across providers.
type Options struct {
	MaxTokens   int
	Temperature float64
}
