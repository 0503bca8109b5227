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

// Package mux routes incoming requests to provider models through
// per-workspace rules.
//
// A request arriving on the muxing endpoint is summarized into a
// MatchInput: the raw JSON body, the URL path, the fill-in-the-middle
// classification and the detected client. The registry holds each
// workspace's compiled matchers; the router walks the active workspace's
// matchers in priority order and the first match supplies the
// destination endpoint, model and credential. Typed decoding of the body
// happens only after the route, and with it the provider type, is known.
package mux

import (
	"context"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
)

// Matcher decides whether a mux rule applies to a request and carries the
// rule's destination. Implementations are immutable after construction
// and safe for concurrent use; Match may do embedding I/O.
type Matcher interface {
	Match(ctx context.Context, in MatchInput) (bool, error)
	Destination() models.ModelRoute
	Kind() models.MatcherType
}

// MatchInput is the router's view of one incoming request.
type MatchInput struct {
	// Body is the request body parsed as a generic JSON object. The
	// provider-specific shape is not known yet at match time.
	Body    map[string]any
	URLPath string
	FIM     bool
	Client  clients.ClientType
}

// Texts returns the message texts for a role, in request order. An empty
// role selects every message. Top-level system prompts (the Anthropic
// shape) surface as role "system".
func (in MatchInput) Texts(role string) []string {
	var out []string
	if role == "" || role == "system" {
		out = append(out, bodyTexts(in.Body["system"])...)
	}
	if msgs, ok := in.Body["messages"].([]any); ok {
		for _, raw := range msgs {
			msg, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if role != "" {
				r, _ := msg["role"].(string)
				if r != role && !(role == "system" && r == "developer") {
					continue
				}
			}
			out = append(out, bodyTexts(msg["content"])...)
		}
	}
	if role == "" || role == "user" {
		out = append(out, bodyTexts(in.Body["prompt"])...)
	}
	return out
}

// FirstText returns the first message's text, or the prompt for legacy
// completion bodies.
func (in MatchInput) FirstText() string {
	if msgs, ok := in.Body["messages"].([]any); ok && len(msgs) > 0 {
		if msg, ok := msgs[0].(map[string]any); ok {
			if texts := bodyTexts(msg["content"]); len(texts) > 0 {
				return texts[0]
			}
		}
	}
	if texts := bodyTexts(in.Body["prompt"]); len(texts) > 0 {
		return texts[0]
	}
	return ""
}

// Filenames returns the filenames the client's conventions expose across
// the request's texts.
func (in MatchInput) Filenames() []string {
	var names []string
	seen := map[string]bool{}
	for _, text := range in.Texts("") {
		for _, name := range clients.ExtractFilenames(in.Client, text) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// bodyTexts flattens the string-or-parts content shapes every supported
// protocol uses: a plain string, a list of strings, or a list of typed
// parts carrying a "text" field.
func bodyTexts(content any) []string {
	switch v := content.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			switch part := item.(type) {
			case string:
				if part != "" {
					out = append(out, part)
				}
			case map[string]any:
				if text, ok := part["text"].(string); ok && text != "" {
					out = append(out, text)
				}
			}
		}
		return out
	}
	return nil
}
