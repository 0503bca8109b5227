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

import "strings"

// fimMarkers are the infill tags autocomplete clients embed when they
// tunnel fill-in-the-middle requests over a chat body.
var fimMarkers = []string{"<COMPLETION>", "</COMPLETION>", "<QUERY>", "</QUERY>"}

// chatAgents are conversational assistants whose prompts sometimes look
// like completion calls; their requests are never fill-in-the-middle.
var chatAgents = []string{"cline", "kodu", "open interpreter"}

// IsFIM classifies a request as fill-in-the-middle from its URL path and
// parsed body: completion-style endpoints count, chat completions do not,
// and a chat body carrying all four infill markers counts regardless of
// path.
func IsFIM(urlPath string, body map[string]any) bool {
	in := MatchInput{Body: body, URLPath: urlPath}

	fingerprint := strings.ToLower(strings.Join(in.Texts(""), "\n"))
	for _, agent := range chatAgents {
		if strings.Contains(fingerprint, agent) {
			return false
		}
	}

	path := strings.TrimSuffix(urlPath, "/")
	if strings.HasSuffix(path, "/completions") && !strings.HasSuffix(path, "/chat/completions") {
		return true
	}
	if strings.HasSuffix(path, "/api/generate") {
		return true
	}

	first := in.FirstText()
	for _, marker := range fimMarkers {
		if !strings.Contains(first, marker) {
			return false
		}
	}
	return true
}
