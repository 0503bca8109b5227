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

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kadirpekel/codegate/pkg/models"
)

// UpstreamsConfig holds the base URLs behind the fixed provider routes.
// Each gateway prefix (/openai, /anthropic, ...) forwards to the matching
// upstream; mux routes carry their own endpoint and ignore this section.
type UpstreamsConfig struct {
	// OpenAI base URL, without the /v1 suffix.
	// Default: https://api.openai.com
	OpenAI string `yaml:"openai,omitempty"`

	// Anthropic base URL.
	// Default: https://api.anthropic.com
	Anthropic string `yaml:"anthropic,omitempty"`

	// Ollama base URL.
	// Default: http://localhost:11434
	Ollama string `yaml:"ollama,omitempty"`

	// VLLM base URL, without the /v1 suffix.
	// Default: http://localhost:8000
	VLLM string `yaml:"vllm,omitempty"`

	// LlamaCPP base URL.
	// Default: http://localhost:8080
	LlamaCPP string `yaml:"llamacpp,omitempty"`

	// OpenRouter base URL.
	// Default: https://openrouter.ai/api
	OpenRouter string `yaml:"openrouter,omitempty"`
}

// SetDefaults applies default values to UpstreamsConfig.
func (c *UpstreamsConfig) SetDefaults() {
	if c.OpenAI == "" {
		c.OpenAI = "https://api.openai.com"
	}
	if c.Anthropic == "" {
		c.Anthropic = "https://api.anthropic.com"
	}
	if c.Ollama == "" {
		c.Ollama = "http://localhost:11434"
	}
	if c.VLLM == "" {
		c.VLLM = "http://localhost:8000"
	}
	if c.LlamaCPP == "" {
		c.LlamaCPP = "http://localhost:8080"
	}
	if c.OpenRouter == "" {
		c.OpenRouter = "https://openrouter.ai/api"
	}
}

// Validate checks that every upstream is an absolute URL.
func (c *UpstreamsConfig) Validate() error {
	for name, endpoint := range map[string]string{
		"openai":     c.OpenAI,
		"anthropic":  c.Anthropic,
		"ollama":     c.Ollama,
		"vllm":       c.VLLM,
		"llamacpp":   c.LlamaCPP,
		"openrouter": c.OpenRouter,
	} {
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s upstream must be an absolute URL, got %q", name, endpoint)
		}
	}
	return nil
}

// ForType returns the configured endpoint for a provider type, trimmed of
// any trailing slash. Unknown types fall back to the OpenAI upstream.
func (c *UpstreamsConfig) ForType(pt models.ProviderType) string {
	var endpoint string
	switch pt {
	case models.ProviderAnthropic:
		endpoint = c.Anthropic
	case models.ProviderOllama:
		endpoint = c.Ollama
	case models.ProviderVLLM:
		endpoint = c.VLLM
	case models.ProviderLlamaCPP:
		endpoint = c.LlamaCPP
	case models.ProviderOpenRouter:
		endpoint = c.OpenRouter
	default:
		endpoint = c.OpenAI
	}
	return strings.TrimRight(endpoint, "/")
}
