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
	"errors"
	"testing"

	"github.com/kadirpekel/codegate/pkg/models"
)

type fakeRuleSource struct {
	rules map[string][]models.MuxRule
	err   error
}

func (f *fakeRuleSource) All(ctx context.Context) (map[string][]models.MuxRule, error) {
	return f.rules, f.err
}

type fakeRouteSource struct {
	endpoints map[string]*models.ProviderEndpoint
	auth      map[string]*models.ProviderAuthMaterial
	getCalls  int
}

func (f *fakeRouteSource) Get(ctx context.Context, id string) (*models.ProviderEndpoint, error) {
	f.getCalls++
	ep, ok := f.endpoints[id]
	if !ok {
		return nil, models.ErrProviderNotFound
	}
	return ep, nil
}

func (f *fakeRouteSource) AuthMaterial(ctx context.Context, providerID string) (*models.ProviderAuthMaterial, error) {
	return f.auth[providerID], nil
}

type fakeActiveSource struct {
	workspace *models.Workspace
	err       error
}

func (f *fakeActiveSource) Active(ctx context.Context) (*models.Workspace, error) {
	return f.workspace, f.err
}

func TestSyncerRefreshCompilesRules(t *testing.T) {
	registry := NewRegistry()
	providers := &fakeRouteSource{
		endpoints: map[string]*models.ProviderEndpoint{
			"p1": {ID: "p1", Name: "openai", ProviderType: models.ProviderOpenAI, Endpoint: "https://api.openai.com"},
		},
		auth: map[string]*models.ProviderAuthMaterial{
			"p1": {ProviderID: "p1", AuthType: models.AuthAPIKey, AuthBlob: "sk-test"},
		},
	}
	rules := &fakeRuleSource{rules: map[string][]models.MuxRule{
		"default": {
			{ID: "r1", ProviderID: "p1", ProviderModelName: "gpt-4o", MatcherType: models.MatcherFilename, MatcherBlob: "*.py"},
			{ID: "r2", ProviderID: "p1", ProviderModelName: "gpt-4o-mini", MatcherType: models.MatcherCatchAll},
		},
		"coding": {
			{ID: "r3", ProviderID: "p1", ProviderModelName: "gpt-4o", MatcherType: models.MatcherCatchAll},
		},
	}}
	syncer := NewSyncer(registry, Builder{}, rules, providers, &fakeActiveSource{workspace: &models.Workspace{Name: "default"}})

	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if registry.Active() != "default" {
		t.Errorf("Active() = %q, want default", registry.Active())
	}
	matchers := registry.GetRules("default")
	if len(matchers) != 2 {
		t.Fatalf("default workspace compiled %d matchers, want 2", len(matchers))
	}
	route := matchers[1].Destination()
	if route.Model != "gpt-4o-mini" {
		t.Errorf("catch-all destination model = %q, want gpt-4o-mini", route.Model)
	}
	if route.Endpoint.Name != "openai" {
		t.Errorf("destination endpoint = %q, want openai", route.Endpoint.Name)
	}
	if route.Auth == nil || route.Auth.AuthBlob != "sk-test" {
		t.Errorf("destination auth = %+v, want stored credential", route.Auth)
	}
	if len(registry.GetRules("coding")) != 1 {
		t.Errorf("coding workspace compiled %d matchers, want 1", len(registry.GetRules("coding")))
	}
	// Three rules share one provider; the lookup is cached per refresh.
	if providers.getCalls != 1 {
		t.Errorf("provider lookups = %d, want 1", providers.getCalls)
	}
}

func TestSyncerRefreshSkipsBrokenRules(t *testing.T) {
	registry := NewRegistry()
	providers := &fakeRouteSource{
		endpoints: map[string]*models.ProviderEndpoint{
			"p1": {ID: "p1", Name: "ollama", ProviderType: models.ProviderOllama, Endpoint: "http://localhost:11434"},
		},
	}
	rules := &fakeRuleSource{rules: map[string][]models.MuxRule{
		"default": {
			{ID: "r1", ProviderID: "gone", ProviderModelName: "x", MatcherType: models.MatcherCatchAll},
			{ID: "r2", ProviderID: "p1", ProviderModelName: "llama3", MatcherType: models.MatcherType("bogus")},
			{ID: "r3", ProviderID: "p1", ProviderModelName: "llama3", MatcherType: models.MatcherCatchAll},
		},
	}}
	syncer := NewSyncer(registry, Builder{}, rules, providers, &fakeActiveSource{workspace: &models.Workspace{Name: "default"}})

	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	matchers := registry.GetRules("default")
	if len(matchers) != 1 {
		t.Fatalf("compiled %d matchers, want only the resolvable one", len(matchers))
	}
	if matchers[0].Destination().Model != "llama3" {
		t.Errorf("surviving rule routes to %q, want llama3", matchers[0].Destination().Model)
	}
}

func TestSyncerRefreshReplacesStaleEntries(t *testing.T) {
	registry := NewRegistry()
	registry.SetActive("old")
	registry.SetRules("old", []Matcher{&stubMatcher{match: true}})

	rules := &fakeRuleSource{rules: map[string][]models.MuxRule{}}
	syncer := NewSyncer(registry, Builder{}, rules, &fakeRouteSource{}, &fakeActiveSource{workspace: &models.Workspace{Name: "default"}})

	if err := syncer.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if registry.Active() != "default" {
		t.Errorf("Active() = %q, want default", registry.Active())
	}
	if registry.Has("old") {
		t.Error("registry still serves the dropped workspace")
	}
}

func TestSyncerRefreshStorageFailureKeepsRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.SetActive("default")
	registry.SetRules("default", []Matcher{&stubMatcher{match: true}})

	syncer := NewSyncer(registry, Builder{},
		&fakeRuleSource{err: errors.New("db down")},
		&fakeRouteSource{},
		&fakeActiveSource{workspace: &models.Workspace{Name: "default"}})

	if err := syncer.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() = nil error, want storage failure")
	}
	if len(registry.GetRules("default")) != 1 {
		t.Error("failed refresh must leave the previous rules in place")
	}
}
