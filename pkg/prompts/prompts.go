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

// Package prompts holds the system-prompt catalog the gateway injects:
// a default chat prompt, per-client overrides and the redaction preambles.
// The built-in catalog is embedded; deployments can replace it with a file.
package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var builtinCatalog []byte

// Catalog is the parsed prompt set.
type Catalog struct {
	DefaultChat     string            `yaml:"default_chat"`
	ClientPrompts   map[string]string `yaml:"client_prompts"`
	SecretsRedacted string            `yaml:"secrets_redacted"`
	PIIRedacted     string            `yaml:"pii_redacted"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(builtinCatalog)
}

// FromFile loads a replacement catalog from disk.
func FromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	if c.DefaultChat == "" {
		return nil, fmt.Errorf("prompt catalog: default_chat is required")
	}
	return &c, nil
}

// ForClient returns the prompt for a client type, falling back to the
// default chat prompt.
func (c *Catalog) ForClient(client string) string {
	if p, ok := c.ClientPrompts[client]; ok && p != "" {
		return p
	}
	return c.DefaultChat
}
