// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import "fmt"

// StoreType identifies a vector store implementation.
type StoreType string

const (
	// StoreChromem uses chromem-go for embedded vector storage.
	// Zero-config, no external dependencies.
	StoreChromem StoreType = "chromem"

	// StoreQdrant uses a Qdrant server.
	StoreQdrant StoreType = "qdrant"
)

// Config selects and tunes the vector store.
type Config struct {
	// Type identifies which store to create.
	Type StoreType `yaml:"type"`

	// Chromem configuration (used when Type == "chromem").
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`

	// Qdrant configuration (used when Type == "qdrant").
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = StoreChromem
	}
	if c.Type == StoreChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case StoreChromem:
		return nil
	case StoreQdrant:
		if c.Qdrant == nil {
			return fmt.Errorf("qdrant configuration is required")
		}
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		return nil
	case "":
		return fmt.Errorf("store type is required")
	default:
		return fmt.Errorf("unknown store type: %q", c.Type)
	}
}

// New creates a vector store from configuration. A nil config yields a
// NilStore.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		return NilStore{}, nil
	}

	switch cfg.Type {
	case StoreChromem, "":
		chromemCfg := ChromemConfig{}
		if cfg.Chromem != nil {
			chromemCfg = *cfg.Chromem
		}
		return NewChromemStore(chromemCfg)

	case StoreQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant configuration is required")
		}
		return NewQdrantStore(*cfg.Qdrant)

	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
