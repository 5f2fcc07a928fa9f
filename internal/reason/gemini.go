package reason

import (
	"context"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/quizchain/quizchain/config"
)

// GeminiProvider talks to Google Gemini via the official SDK.
type GeminiProvider struct {
	client *genai.Client
	opts   Options
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(cfg config.LLMProvider, opts Options) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, opts: opts}, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, model, prompt string) (string, error) {
	m := p.client.GenerativeModel(model)
	m.SetTemperature(float32(p.opts.Temperature))
	if p.opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(p.opts.MaxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	text := firstText(resp)
	if text == "" {
		return "", fmt.Errorf("empty candidate")
	}
	return text, nil
}

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// Close releases the underlying SDK client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
