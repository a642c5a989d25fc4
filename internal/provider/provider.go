package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/whatsmap/pkg/config"
)

// NewModel builds the chat model for a configured provider.
func NewModel(ctx context.Context, name string, cfg config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("provider %s not supported", name)
	}
}
