package embedding

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create an Encoder.
type FactoryConfig struct {
	// Provider is the encoder provider name ("local" or "openai").
	Provider string
	// Dimension is the vector dimension the encoder must produce.
	Dimension int
	// Timeout is the timeout for embedding API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
}

// NewEncoder creates an Encoder based on the factory configuration.
//
// The "local" provider needs no network access and is deterministic, which
// makes it the default for development and for lazy ranking embeds where
// API latency would blow the request budget.
func NewEncoder(cfg FactoryConfig) (Encoder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalEncoder(cfg.Dimension), nil
	case "openai":
		openAICfg := cfg.OpenAI
		if openAICfg.Dimension <= 0 {
			openAICfg.Dimension = cfg.Dimension
		}
		if openAICfg.APIKey == "" {
			return nil, fmt.Errorf("embedding: openai provider requires an API key")
		}
		return NewOpenAIEncoder(openAICfg, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
