// Package embedders turns text into vectors for persona matching and
// package advisory lookups. Implementations are safe for concurrent use
// and batch where the upstream API allows it.
package embedders

import (
	"context"
	"fmt"
)

// Embedder computes one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
	Close() error
}

// Supported embedder types.
const (
	TypeOpenAI = "openai"
	TypeOllama = "ollama"
)

// Config selects and tunes an embedder.
type Config struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	// Timeout bounds one embedding call, in seconds.
	Timeout   int `yaml:"timeout,omitempty"`
	BatchSize int `yaml:"batch_size,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = TypeOpenAI
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for the openai embedder")
		}
		return nil
	case TypeOllama:
		return nil
	case "":
		return fmt.Errorf("embedder type is required")
	default:
		return fmt.Errorf("unsupported embedder type: %s", c.Type)
	}
}

// New creates an embedder from configuration.
func New(cfg Config) (Embedder, error) {
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAIEmbedder(cfg)
	case TypeOllama:
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
}
