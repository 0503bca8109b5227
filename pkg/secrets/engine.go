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

// Package secrets matches credential signatures in request text. The
// catalog ships embedded and can be replaced by an external YAML file that
// hot-reloads on change.
package secrets

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignatures []byte

type signatureFile struct {
	Signatures []signatureEntry `yaml:"signatures"`
}

type signatureEntry struct {
	Service string `yaml:"service"`
	Type    string `yaml:"type"`
	Pattern string `yaml:"pattern"`
}

type signature struct {
	service string
	kind    string
	re      *regexp.Regexp
}

// Match is one credential found in a scanned text. Start and End are byte
// offsets so callers can splice replacements without re-searching.
type Match struct {
	Service string
	Type    string
	Value   string
	Start   int
	End     int
}

// Engine scans text against the signature catalog. Reload swaps the
// catalog atomically, so scans running during a reload see a consistent
// set.
type Engine struct {
	mu   sync.RWMutex
	sigs []signature
	path string
}

// NewEngine builds an engine from the embedded default catalog.
func NewEngine() (*Engine, error) {
	sigs, err := parseSignatures(defaultSignatures)
	if err != nil {
		return nil, fmt.Errorf("embedded signature catalog: %w", err)
	}
	return &Engine{sigs: sigs}, nil
}

// NewEngineFromFile builds an engine from an external catalog file. The
// path is remembered for Reload and Watch.
func NewEngineFromFile(path string) (*Engine, error) {
	e := &Engine{path: path}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

func parseSignatures(data []byte) ([]signature, error) {
	var file signatureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse signature file: %w", err)
	}
	if len(file.Signatures) == 0 {
		return nil, fmt.Errorf("signature file contains no signatures")
	}

	sigs := make([]signature, 0, len(file.Signatures))
	for _, entry := range file.Signatures {
		re, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %s/%s: %w", entry.Service, entry.Type, err)
		}
		sigs = append(sigs, signature{service: entry.Service, kind: entry.Type, re: re})
	}
	return sigs, nil
}

// Scan returns every signature match in text, sorted by position, with
// overlapping matches collapsed to the earliest one.
func (e *Engine) Scan(text string) []Match {
	e.mu.RLock()
	sigs := e.sigs
	e.mu.RUnlock()

	var matches []Match
	for _, sig := range sigs {
		for _, loc := range sig.re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Service: sig.service,
				Type:    sig.kind,
				Value:   text[loc[0]:loc[1]],
				Start:   loc[0],
				End:     loc[1],
			})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})

	// Two signatures can claim overlapping spans; the one starting first
	// (longest on ties) wins so replacements never splice mid-match.
	out := matches[:1]
	for _, m := range matches[1:] {
		if m.Start < out[len(out)-1].End {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Count returns the number of loaded signatures.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sigs)
}

// Reload re-reads the external catalog file. The previous catalog stays
// in place when the new one fails to load.
func (e *Engine) Reload() error {
	if e.path == "" {
		return fmt.Errorf("engine has no signature file to reload")
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read signature file %s: %w", e.path, err)
	}
	sigs, err := parseSignatures(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sigs = sigs
	e.mu.Unlock()
	return nil
}
