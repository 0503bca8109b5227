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

// Package models holds the domain rows shared by the pipeline, the muxing
// router, persistence and the control-plane API.
package models

import "time"

// Workspace is a named policy container. Exactly one workspace is active
// process-wide; archived workspaces keep their rows with DeletedAt set.
type Workspace struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	CustomInstructions string     `json:"custom_instructions,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// Archived reports whether the workspace has been soft-deleted.
func (w *Workspace) Archived() bool { return w.DeletedAt != nil }

// ProviderType identifies the wire protocol an upstream speaks.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOllama     ProviderType = "ollama"
	ProviderVLLM       ProviderType = "vllm"
	ProviderLlamaCPP   ProviderType = "llamacpp"
	ProviderOpenRouter ProviderType = "openrouter"
)

// Valid reports whether the provider type is one the gateway can dispatch.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama,
		ProviderVLLM, ProviderLlamaCPP, ProviderOpenRouter:
		return true
	}
	return false
}

// AuthType describes how the gateway authenticates against an upstream.
type AuthType string

const (
	AuthNone        AuthType = "none"
	AuthAPIKey      AuthType = "api_key"
	AuthPassthrough AuthType = "passthrough"
)

// ProviderEndpoint is a named upstream the router can dispatch to.
type ProviderEndpoint struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	ProviderType ProviderType `json:"provider_type"`
	Endpoint     string       `json:"endpoint"`
	AuthType     AuthType     `json:"auth_type"`
}

// ProviderAuthMaterial holds the credential for a provider endpoint,
// stored separately from the endpoint row.
type ProviderAuthMaterial struct {
	ProviderID string   `json:"provider_endpoint_id"`
	AuthType   AuthType `json:"auth_type"`
	AuthBlob   string   `json:"auth_blob,omitempty"`
}

// ProviderModel is one model name served by a provider endpoint. The
// (provider, name) pair is unique.
type ProviderModel struct {
	ProviderID string `json:"provider_endpoint_id"`
	Name       string `json:"name"`
}

// MatcherType selects the matching strategy of a mux rule.
type MatcherType string

const (
	// MatcherCatchAll matches every request.
	MatcherCatchAll MatcherType = "catch_all"

	// MatcherFilename glob-matches filenames found in the request against
	// the rule's blob, regardless of request type.
	MatcherFilename MatcherType = "filename_match"

	// MatcherFIMFilename is like MatcherFilename but only for
	// fill-in-the-middle requests.
	MatcherFIMFilename MatcherType = "fim_filename"

	// MatcherChatFilename is like MatcherFilename but only for chat
	// requests.
	MatcherChatFilename MatcherType = "chat_filename"

	// MatcherPersonaDescription matches when the user messages embed close
	// to the persona named in the blob.
	MatcherPersonaDescription MatcherType = "persona_description"

	// MatcherSysPersonaDescription matches against the system messages
	// instead of the user messages.
	MatcherSysPersonaDescription MatcherType = "sys_persona_description"
)

// MuxRule routes matching requests of a workspace to a provider model.
// Lower priority numbers win first.
type MuxRule struct {
	ID                string      `json:"id"`
	WorkspaceID       string      `json:"workspace_id"`
	ProviderID        string      `json:"provider_endpoint_id"`
	ProviderModelName string      `json:"provider_model_name"`
	MatcherType       MatcherType `json:"matcher_type"`
	MatcherBlob       string      `json:"matcher_blob,omitempty"`
	Priority          int         `json:"priority"`
}

// ModelRoute is the resolved destination a winning matcher returns.
type ModelRoute struct {
	Endpoint ProviderEndpoint      `json:"endpoint"`
	Model    string                `json:"model"`
	Auth     *ProviderAuthMaterial `json:"-"`
}

// AlertCategory is the severity of an alert.
type AlertCategory string

const (
	AlertInfo     AlertCategory = "info"
	AlertCritical AlertCategory = "critical"
)

// Alert is one policy event raised while processing a prompt. Critical
// alerts are additionally published to the notification broadcaster.
type Alert struct {
	ID              string        `json:"id"`
	PromptID        string        `json:"prompt_id"`
	TriggerType     string        `json:"trigger_type"`
	TriggerCategory AlertCategory `json:"trigger_category"`
	TriggerString   string        `json:"trigger_string,omitempty"`
	CodeSnippet     string        `json:"code_snippet,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// PromptType distinguishes conversational requests from autocomplete.
type PromptType string

const (
	PromptChat PromptType = "chat"
	PromptFIM  PromptType = "fim"
)

// Prompt is the persisted record of one incoming request. RequestText is
// captured after redaction so the row never holds cleartext secrets.
type Prompt struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Timestamp   time.Time  `json:"timestamp"`
	Provider    string     `json:"provider,omitempty"`
	RequestText string     `json:"request_text"`
	Type        PromptType `json:"type"`
	ClientType  string     `json:"client_type,omitempty"`
}

// Output is the persisted record of one response stream.
type Output struct {
	ID           string    `json:"id"`
	PromptID     string    `json:"prompt_id"`
	Timestamp    time.Time `json:"timestamp"`
	OutputText   string    `json:"output_text"`
	InputTokens  *int      `json:"input_tokens,omitempty"`
	OutputTokens *int      `json:"output_tokens,omitempty"`
}

// Persona is a named description whose embedding drives similarity
// matchers.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
}

// PackageStatus classifies a package returned by the package oracle.
type PackageStatus string

const (
	PackageMalicious  PackageStatus = "malicious"
	PackageArchived   PackageStatus = "archived"
	PackageDeprecated PackageStatus = "deprecated"
)

// PackageInfo is one flagged package returned by the package oracle.
type PackageInfo struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Status      PackageStatus `json:"status"`
	Description string        `json:"description,omitempty"`
}
