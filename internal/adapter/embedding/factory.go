package embedding

import (
	"fmt"

	"pathembed/config"
	"pathembed/internal/port"
)

// New creates the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	case "gemini":
		key, err := cfg.ResolveAPIKey()
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return NewGeminiEmbedder(key, cfg.Model, GeminiOptions{
			BaseURL:   cfg.BaseURL,
			TaskType:  cfg.TaskType,
			Dimension: cfg.Dimension,
			Timeout:   cfg.RequestTimeout,
		})
	case "openai":
		key, err := cfg.ResolveAPIKey()
		if err != nil {
			// local OpenAI-compatible servers such as Ollama accept any key
			if cfg.BaseURL == "" {
				return nil, fmt.Errorf("openai: %w", err)
			}
			key = "unused"
		}
		return NewOpenAIEmbedder(key, cfg.Model, OpenAIOptions{
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.RequestTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
