package ai

import (
	"errors"
	"time"

	"github.com/hrygo/tensai/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Small     EmbeddingConfig
	Large     EmbeddingConfig
	Embedding EmbeddingClientConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents one embedding model.
type EmbeddingConfig struct {
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string
}

// EmbeddingClientConfig controls batching and retries of the embedding client.
type EmbeddingClientConfig struct {
	BatchSize     int           // default: 100
	RetryAttempts int           // retries after the first attempt, default: 3
	Backoff       time.Duration // wait before retry n is n*Backoff
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Model       string // gpt-4-turbo-preview
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 1024
	Temperature float32 // default: 0.7
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Small = EmbeddingConfig{
		Model:      p.AIEmbeddingSmallModel,
		Dimensions: SmallDimensions,
		APIKey:     p.AIOpenAIAPIKey,
		BaseURL:    p.AIOpenAIBaseURL,
	}
	cfg.Large = EmbeddingConfig{
		Model:      p.AIEmbeddingLargeModel,
		Dimensions: LargeDimensions,
		APIKey:     p.AIOpenAIAPIKey,
		BaseURL:    p.AIOpenAIBaseURL,
	}
	cfg.Embedding = EmbeddingClientConfig{
		BatchSize:     p.AIEmbeddingBatchSize,
		RetryAttempts: p.AIEmbeddingRetries,
		Backoff:       500 * time.Millisecond,
	}

	cfg.LLM = LLMConfig{
		Model:       p.AILLMModel,
		APIKey:      p.AIOpenAIAPIKey,
		BaseURL:     p.AIOpenAIBaseURL,
		MaxTokens:   1024,
		Temperature: p.AILLMTemperature,
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Small.Model == "" || c.Large.Model == "" {
		return errors.New("embedding models are required")
	}

	if c.Small.APIKey == "" || c.Large.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}

	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}
