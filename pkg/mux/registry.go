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
	"sort"
	"sync"
)

// Registry is the in-memory mirror of the persisted muxing rules, keyed
// by workspace name. It is repopulated from storage at startup and after
// every provider or rule mutation. Reads copy out and writes replace, so
// the lock is never held across matcher evaluation.
type Registry struct {
	mu     sync.RWMutex
	active string
	rules  map[string][]Matcher
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]Matcher)}
}

// GetRules returns the workspace's matchers in priority order. The slice
// is a copy; matchers themselves are immutable.
func (r *Registry) GetRules(workspace string) []Matcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matchers, ok := r.rules[workspace]
	if !ok {
		return nil
	}
	out := make([]Matcher, len(matchers))
	copy(out, matchers)
	return out
}

// SetRules replaces the workspace's matchers atomically.
func (r *Registry) SetRules(workspace string, matchers []Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[workspace] = matchers
}

// DeleteRules removes the workspace's entry. Deleting an absent
// workspace is a no-op.
func (r *Registry) DeleteRules(workspace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, workspace)
}

// SetActive points the registry at the workspace whose rules the router
// evaluates by default.
func (r *Registry) SetActive(workspace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = workspace
}

// Active returns the active workspace name.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Has reports whether the registry carries rules for the workspace.
func (r *Registry) Has(workspace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[workspace]
	return ok
}

// Registries lists the workspaces with registered rules, sorted for
// stable output.
func (r *Registry) Registries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rules))
	for workspace := range r.rules {
		out = append(out, workspace)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the whole registry in one step, so a repopulate from
// storage is atomic with respect to concurrent routing.
func (r *Registry) Replace(active string, rules map[string][]Matcher) {
	if rules == nil {
		rules = make(map[string][]Matcher)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
	r.rules = rules
}
