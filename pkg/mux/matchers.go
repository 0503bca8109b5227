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
	"path"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/codegate/pkg/models"
)

// DefaultPersonaThreshold is the cosine-distance ceiling under which a
// persona matcher fires.
const DefaultPersonaThreshold = 0.75

// PersonaScorer measures how far texts embed from a stored persona's
// description. Implementations resolve the persona by name and own the
// embedding call.
type PersonaScorer interface {
	Distances(ctx context.Context, persona string, texts []string) ([]float64, error)
}

// Builder compiles persisted mux rules into matchers. The zero value
// builds every matcher type except the persona ones.
type Builder struct {
	Personas PersonaScorer
	// Threshold overrides DefaultPersonaThreshold when positive.
	Threshold float64
}

// Build compiles one rule and its resolved destination into a matcher.
func (b Builder) Build(rule models.MuxRule, route models.ModelRoute) (Matcher, error) {
	switch rule.MatcherType {
	case models.MatcherCatchAll:
		return &catchAllMatcher{route: route}, nil
	case models.MatcherFilename:
		return &filenameMatcher{route: route, pattern: rule.MatcherBlob}, nil
	case models.MatcherFIMFilename:
		return &requestTypeMatcher{filenameMatcher{route: route, pattern: rule.MatcherBlob}, true}, nil
	case models.MatcherChatFilename:
		return &requestTypeMatcher{filenameMatcher{route: route, pattern: rule.MatcherBlob}, false}, nil
	case models.MatcherPersonaDescription, models.MatcherSysPersonaDescription:
		if b.Personas == nil {
			return nil, fmt.Errorf("rule %s: persona matcher requires a persona scorer", rule.ID)
		}
		threshold := b.Threshold
		if threshold <= 0 {
			threshold = DefaultPersonaThreshold
		}
		return &personaMatcher{
			route:     route,
			persona:   rule.MatcherBlob,
			system:    rule.MatcherType == models.MatcherSysPersonaDescription,
			scorer:    b.Personas,
			threshold: threshold,
		}, nil
	default:
		return nil, fmt.Errorf("rule %s: unknown matcher type %q", rule.ID, rule.MatcherType)
	}
}

type catchAllMatcher struct {
	route models.ModelRoute
}

func (m *catchAllMatcher) Match(ctx context.Context, in MatchInput) (bool, error) { return true, nil }
func (m *catchAllMatcher) Destination() models.ModelRoute                         { return m.route }
func (m *catchAllMatcher) Kind() models.MatcherType                               { return models.MatcherCatchAll }

// filenameMatcher glob-matches the filenames the request exposes. An
// empty pattern matches every request, filenames or not.
type filenameMatcher struct {
	route   models.ModelRoute
	pattern string
}

func (m *filenameMatcher) Match(ctx context.Context, in MatchInput) (bool, error) {
	if m.pattern == "" {
		return true, nil
	}
	for _, name := range in.Filenames() {
		if globMatch(m.pattern, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *filenameMatcher) Destination() models.ModelRoute { return m.route }
func (m *filenameMatcher) Kind() models.MatcherType       { return models.MatcherFilename }

// globMatch applies the pattern to the full name and, for patterns
// without a separator, to the basename, so "*.py" matches "src/app.py".
func globMatch(pattern, name string) bool {
	if ok, err := path.Match(pattern, name); err == nil && ok {
		return true
	}
	if strings.ContainsRune(pattern, '/') {
		return false
	}
	ok, err := path.Match(pattern, filepath.Base(name))
	return err == nil && ok
}

// requestTypeMatcher narrows a filename matcher to one request type.
type requestTypeMatcher struct {
	filenameMatcher
	fim bool
}

func (m *requestTypeMatcher) Match(ctx context.Context, in MatchInput) (bool, error) {
	if in.FIM != m.fim {
		return false, nil
	}
	return m.filenameMatcher.Match(ctx, in)
}

func (m *requestTypeMatcher) Kind() models.MatcherType {
	if m.fim {
		return models.MatcherFIMFilename
	}
	return models.MatcherChatFilename
}

// personaMatcher fires when the request's user (or system) texts embed
// close to the persona's stored description. Later messages carry more
// weight: an early message must be proportionally closer to count.
type personaMatcher struct {
	route     models.ModelRoute
	persona   string
	system    bool
	scorer    PersonaScorer
	threshold float64
}

func (m *personaMatcher) Match(ctx context.Context, in MatchInput) (bool, error) {
	role := "user"
	if m.system {
		role = "system"
	}
	texts := in.Texts(role)
	if len(texts) == 0 {
		return false, nil
	}

	distances, err := m.scorer.Distances(ctx, m.persona, texts)
	if err != nil {
		return false, fmt.Errorf("persona %s: %w", m.persona, err)
	}

	best := -1.0
	for i, d := range distances {
		weight := float64(i+1) / float64(len(distances))
		weighted := d / weight
		if best < 0 || weighted < best {
			best = weighted
		}
	}
	return best >= 0 && best < m.threshold, nil
}

func (m *personaMatcher) Destination() models.ModelRoute { return m.route }

func (m *personaMatcher) Kind() models.MatcherType {
	if m.system {
		return models.MatcherSysPersonaDescription
	}
	return models.MatcherPersonaDescription
}
