// Package config loads, validates and watches the gateway configuration.
//
// Configuration comes from an optional YAML file, overridden by CODEGATE_*
// environment variables. ${ENV_VAR} references inside the file are expanded
// before unmarshaling, and unknown file keys are rejected so typos surface
// at startup instead of silently disabling a section.
package config

import (
	"fmt"

	"github.com/kadirpekel/codegate/pkg/embedders"
	"github.com/kadirpekel/codegate/pkg/observability"
	"github.com/kadirpekel/codegate/pkg/vector"
)

// Config is the root gateway configuration.
type Config struct {
	// Server configures the listener shared by the gateway and the API.
	Server ServerConfig `yaml:"server,omitempty"`

	// Upstreams configures the base URLs behind the fixed provider routes.
	Upstreams UpstreamsConfig `yaml:"upstreams,omitempty"`

	// Logger configures process-wide logging.
	Logger LoggerConfig `yaml:"logger,omitempty"`

	// Database configures the SQL store backing workspaces, providers,
	// mux rules, personas and conversation history.
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Embedder configures the embedding backend. When the section is
	// absent the advisory oracle and persona routing stay disabled.
	Embedder embedders.Config `yaml:"embedder,omitempty"`

	// Vector configures the vector store used by the advisory oracle.
	Vector vector.Config `yaml:"vector,omitempty"`

	// Secrets configures the redaction signature catalog.
	Secrets SecretsConfig `yaml:"secrets,omitempty"`

	// Oracle configures the package advisory dataset.
	Oracle OracleConfig `yaml:"oracle,omitempty"`

	// Muxing configures routing rule evaluation.
	Muxing MuxingConfig `yaml:"muxing,omitempty"`

	// Prompts configures the client system-prompt catalog.
	Prompts PromptsConfig `yaml:"prompts,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty"`
}

// SecretsConfig configures secret redaction signatures.
type SecretsConfig struct {
	// SignaturesFile points at an external signature catalog. When empty
	// the embedded catalog is used.
	SignaturesFile string `yaml:"signatures_file,omitempty"`

	// Watch reloads the catalog when the file changes.
	Watch bool `yaml:"watch,omitempty"`
}

// OracleConfig configures the package advisory oracle.
type OracleConfig struct {
	// PackagesFile is a YAML advisory dataset seeded into the vector
	// store at startup. Empty leaves the oracle unseeded.
	PackagesFile string `yaml:"packages_file,omitempty"`
}

// MuxingConfig configures routing rule evaluation.
type MuxingConfig struct {
	// PersonaDistanceThreshold is the maximum cosine distance at which a
	// request still matches a persona description. Distances range from
	// 0 (identical) to 2 (opposite).
	PersonaDistanceThreshold float64 `yaml:"persona_distance_threshold,omitempty"`
}

// DefaultPersonaDistanceThreshold matches a persona when the request
// embeds reasonably close to its description without being strict
// enough to reject paraphrases.
const DefaultPersonaDistanceThreshold = 0.75

// PromptsConfig configures client system prompts.
type PromptsConfig struct {
	// File points at an external prompt catalog. When empty the embedded
	// catalog is used.
	File string `yaml:"file,omitempty"`
}

func (c *MuxingConfig) SetDefaults() {
	if c.PersonaDistanceThreshold == 0 {
		c.PersonaDistanceThreshold = DefaultPersonaDistanceThreshold
	}
}

func (c *MuxingConfig) Validate() error {
	if c.PersonaDistanceThreshold < 0 || c.PersonaDistanceThreshold > 2 {
		return fmt.Errorf("persona_distance_threshold must be between 0 and 2, got %v", c.PersonaDistanceThreshold)
	}
	return nil
}

// EmbeddingEnabled reports whether an embedder section was configured.
func (c *Config) EmbeddingEnabled() bool {
	return c.Embedder != (embedders.Config{})
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Upstreams.SetDefaults()
	c.Logger.SetDefaults()
	c.Database.SetDefaults()
	c.Vector.SetDefaults()
	c.Muxing.SetDefaults()

	if c.EmbeddingEnabled() {
		c.Embedder.SetDefaults()
	}
	if c.Observability != nil {
		c.Observability.SetDefaults()
	}
}

// Validate checks every section and returns the first failure.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := c.Upstreams.Validate(); err != nil {
		return fmt.Errorf("upstreams validation failed: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger validation failed: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if c.EmbeddingEnabled() {
		if err := c.Embedder.Validate(); err != nil {
			return fmt.Errorf("embedder validation failed: %w", err)
		}
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector validation failed: %w", err)
	}
	if err := c.Muxing.Validate(); err != nil {
		return fmt.Errorf("muxing validation failed: %w", err)
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability validation failed: %w", err)
		}
	}
	return nil
}

// Default returns a configuration that runs without a config file:
// sqlite in the working directory, the embedded signature and prompt
// catalogs, and no embedding features.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
