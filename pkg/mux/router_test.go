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

type stubMatcher struct {
	match bool
	err   error
	route models.ModelRoute
	calls int
}

func (m *stubMatcher) Match(ctx context.Context, in MatchInput) (bool, error) {
	m.calls++
	return m.match, m.err
}

func (m *stubMatcher) Destination() models.ModelRoute { return m.route }
func (m *stubMatcher) Kind() models.MatcherType       { return models.MatcherCatchAll }

func TestRouterFirstMatchWins(t *testing.T) {
	reg := NewRegistry()
	reg.SetActive("default")
	reg.SetRules("default", []Matcher{
		buildMatcher(t, Builder{}, models.MuxRule{MatcherType: models.MatcherFilename, MatcherBlob: "*.py"}, "python-model"),
		buildMatcher(t, Builder{}, models.MuxRule{MatcherType: models.MatcherCatchAll}, "default-model"),
	})
	router := NewRouter(reg)

	py := MatchInput{Body: chatBody("review this:\n```python app.py\nprint('hi')\n```")}
	route, err := router.Route(context.Background(), py, "")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if route.Model != "python-model" {
		t.Errorf("python request routed to %q, want python-model", route.Model)
	}

	plain := MatchInput{Body: chatBody("explain goroutines")}
	route, err = router.Route(context.Background(), plain, "")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if route.Model != "default-model" {
		t.Errorf("plain request routed to %q, want default-model", route.Model)
	}
}

func TestRouterNoMatch(t *testing.T) {
	reg := NewRegistry()
	reg.SetActive("default")
	reg.SetRules("default", []Matcher{&stubMatcher{match: false}})
	router := NewRouter(reg)

	_, err := router.Route(context.Background(), MatchInput{Body: chatBody("hi")}, "")
	if !errors.Is(err, models.ErrNoMuxRuleMatched) {
		t.Fatalf("Route() error = %v, want ErrNoMuxRuleMatched", err)
	}
}

func TestRouterEmptyWorkspace(t *testing.T) {
	router := NewRouter(NewRegistry())
	_, err := router.Route(context.Background(), MatchInput{Body: chatBody("hi")}, "")
	if !errors.Is(err, models.ErrNoMuxRuleMatched) {
		t.Fatalf("Route() error = %v, want ErrNoMuxRuleMatched", err)
	}
}

func TestRouterWorkspaceOverride(t *testing.T) {
	reg := NewRegistry()
	reg.SetActive("default")
	reg.SetRules("default", []Matcher{catchAll(t, "default-model")})
	reg.SetRules("research", []Matcher{catchAll(t, "research-model")})
	router := NewRouter(reg)
	in := MatchInput{Body: chatBody("hi")}

	route, err := router.Route(context.Background(), in, "research")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if route.Model != "research-model" {
		t.Errorf("override routed to %q, want research-model", route.Model)
	}

	// An override the registry does not know falls back to the active
	// workspace instead of failing the request.
	route, err = router.Route(context.Background(), in, "ghost")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if route.Model != "default-model" {
		t.Errorf("unknown override routed to %q, want default-model", route.Model)
	}
}

func TestRouterSkipsFailingMatcher(t *testing.T) {
	broken := &stubMatcher{err: errors.New("embedder down")}
	fallback := &stubMatcher{match: true, route: testRoute("fallback-model")}

	reg := NewRegistry()
	reg.SetActive("default")
	reg.SetRules("default", []Matcher{broken, fallback})
	router := NewRouter(reg)

	route, err := router.Route(context.Background(), MatchInput{Body: chatBody("hi")}, "")
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if route.Model != "fallback-model" {
		t.Errorf("Route() = %q, want fallback-model", route.Model)
	}
	if broken.calls != 1 {
		t.Errorf("broken matcher called %d times, want 1", broken.calls)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		provider models.ProviderType
		endpoint string
		want     string
	}{
		{"openai adds v1", models.ProviderOpenAI, "https://api.openai.com", "https://api.openai.com/v1"},
		{"openai keeps v1", models.ProviderOpenAI, "https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"openai trims slash", models.ProviderOpenAI, "https://api.openai.com/", "https://api.openai.com/v1"},
		{"vllm adds v1", models.ProviderVLLM, "http://localhost:8000", "http://localhost:8000/v1"},
		{"openrouter adds api v1", models.ProviderOpenRouter, "https://openrouter.ai", "https://openrouter.ai/api/v1"},
		{"openrouter keeps api v1", models.ProviderOpenRouter, "https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1"},
		{"ollama as stored", models.ProviderOllama, "http://localhost:11434/", "http://localhost:11434"},
		{"anthropic as stored", models.ProviderAnthropic, "https://api.anthropic.com", "https://api.anthropic.com"},
		{"llamacpp untouched", models.ProviderLlamaCPP, "./models/", "./models/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseURL(tt.provider, tt.endpoint); got != tt.want {
				t.Errorf("BaseURL(%s, %q) = %q, want %q", tt.provider, tt.endpoint, got, tt.want)
			}
		})
	}
}
