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

package mux

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/observability"
)

// WorkspaceHeader names the per-request workspace override.
const WorkspaceHeader = "X-CodeGate-Workspace"

// Router resolves a destination for muxed requests by walking the
// matchers of the chosen workspace in priority order.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route picks the destination for a request. A non-empty override names
// the workspace to route in, falling back to the active workspace when
// the registry does not know it. The first matcher that fires wins;
// matcher failures are logged and skipped so one broken rule cannot take
// routing down. No winner yields models.ErrNoMuxRuleMatched.
func (r *Router) Route(ctx context.Context, in MatchInput, override string) (models.ModelRoute, error) {
	workspace := r.registry.Active()
	if override != "" && r.registry.Has(override) {
		workspace = override
	}

	for _, matcher := range r.registry.GetRules(workspace) {
		ok, err := matcher.Match(ctx, in)
		if err != nil {
			slog.Error("mux matcher failed, skipping rule",
				"workspace", workspace, "url_path", in.URLPath, "error", err)
			continue
		}
		if ok {
			observability.GetGlobalMetrics().RecordMuxMatch(ctx, string(matcher.Kind()))
			return matcher.Destination(), nil
		}
	}
	return models.ModelRoute{}, models.ErrNoMuxRuleMatched
}

// BaseURL derives the request base URL for a provider endpoint. OpenAI
// and vLLM servers version their API under /v1 and OpenRouter under
// /api/v1, while Ollama and Anthropic take the endpoint as stored;
// llama.cpp endpoints are local paths and pass through untouched.
func BaseURL(providerType models.ProviderType, endpoint string) string {
	if providerType == models.ProviderLlamaCPP {
		return endpoint
	}
	base := strings.TrimRight(endpoint, "/")
	switch providerType {
	case models.ProviderOpenAI, models.ProviderVLLM:
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
	case models.ProviderOpenRouter:
		if !strings.HasSuffix(base, "/api/v1") {
			base += "/api/v1"
		}
	}
	return base
}
