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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/codegate/pkg/models"
)

// RuleSource lists every live workspace's persisted rules keyed by
// workspace name, in priority order.
type RuleSource interface {
	All(ctx context.Context) (map[string][]models.MuxRule, error)
}

// RouteSource resolves the provider endpoint and credential a rule
// points at.
type RouteSource interface {
	Get(ctx context.Context, id string) (*models.ProviderEndpoint, error)
	AuthMaterial(ctx context.Context, providerID string) (*models.ProviderAuthMaterial, error)
}

// ActiveSource reports which workspace is active.
type ActiveSource interface {
	Active(ctx context.Context) (*models.Workspace, error)
}

// Syncer rebuilds the in-memory registry from persisted rules. It runs
// at startup and again after every provider or rule mutation, so the
// registry never serves stale destinations.
type Syncer struct {
	registry   *Registry
	builder    Builder
	rules      RuleSource
	providers  RouteSource
	workspaces ActiveSource
}

// NewSyncer wires a syncer over the registry and its storage sources.
func NewSyncer(registry *Registry, builder Builder, rules RuleSource, providers RouteSource, workspaces ActiveSource) *Syncer {
	return &Syncer{
		registry:   registry,
		builder:    builder,
		rules:      rules,
		providers:  providers,
		workspaces: workspaces,
	}
}

// Refresh recompiles every workspace's rules and swaps the whole
// registry in one step. Rules that no longer resolve are skipped with a
// warning instead of taking the remaining rules down with them; storage
// failures abort the refresh and leave the previous registry in place.
func (s *Syncer) Refresh(ctx context.Context) error {
	all, err := s.rules.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mux rules: %w", err)
	}
	active, err := s.workspaces.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve active workspace: %w", err)
	}

	routes := make(map[string]models.ModelRoute)
	compiled := make(map[string][]Matcher, len(all))
	for workspace, rules := range all {
		matchers := make([]Matcher, 0, len(rules))
		for _, rule := range rules {
			route, err := s.route(ctx, rule, routes)
			if err != nil {
				slog.Warn("skipping mux rule",
					"workspace", workspace, "rule", rule.ID, "error", err)
				continue
			}
			matcher, err := s.builder.Build(rule, route)
			if err != nil {
				slog.Warn("skipping mux rule",
					"workspace", workspace, "rule", rule.ID, "error", err)
				continue
			}
			matchers = append(matchers, matcher)
		}
		compiled[workspace] = matchers
	}

	s.registry.Replace(active.Name, compiled)
	return nil
}

// route resolves a rule's destination, caching per provider so a
// refresh hits storage once per endpoint rather than once per rule.
func (s *Syncer) route(ctx context.Context, rule models.MuxRule, cache map[string]models.ModelRoute) (models.ModelRoute, error) {
	if cached, ok := cache[rule.ProviderID]; ok {
		cached.Model = rule.ProviderModelName
		return cached, nil
	}

	endpoint, err := s.providers.Get(ctx, rule.ProviderID)
	if err != nil {
		return models.ModelRoute{}, fmt.Errorf("provider %s: %w", rule.ProviderID, err)
	}
	auth, err := s.providers.AuthMaterial(ctx, rule.ProviderID)
	if err != nil {
		return models.ModelRoute{}, fmt.Errorf("provider %s auth: %w", rule.ProviderID, err)
	}

	route := models.ModelRoute{Endpoint: *endpoint, Auth: auth}
	cache[rule.ProviderID] = route
	route.Model = rule.ProviderModelName
	return route, nil
}
