package enrichment

import (
	"context"
	"fmt"

	"github.com/kozaktomas/companion/internal/ai"
	"github.com/kozaktomas/companion/internal/config"
)

// NewProvider builds the provider selected by cfg.EnrichmentProvider.
// It returns nil, nil when no provider is configured.
func NewProvider(ctx context.Context, cfg *config.Config) (ai.Provider, error) {
	switch cfg.EnrichmentProvider() {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		return ai.NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "llamacpp":
		p, err := ai.NewLlamaCppProvider(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model)
		if err != nil {
			return nil, fmt.Errorf("creating llama.cpp provider: %w", err)
		}
		return p, nil
	case "ollama":
		return ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, nil
	}
}
