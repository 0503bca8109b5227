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

import "testing"

func chatBody(texts ...string) map[string]any {
	msgs := make([]any, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, map[string]any{"role": "user", "content": text})
	}
	return map[string]any{"model": "gpt-4", "messages": msgs}
}

func TestIsFIM(t *testing.T) {
	infill := "<COMPLETION></COMPLETION><QUERY>def fib(</QUERY>"

	tests := []struct {
		name string
		path string
		body map[string]any
		want bool
	}{
		{
			name: "legacy completions path",
			path: "/openai/v1/completions",
			body: map[string]any{"model": "gpt-4", "prompt": "def fib("},
			want: true,
		},
		{
			name: "chat completions path is chat",
			path: "/openai/v1/chat/completions",
			body: chatBody("hello"),
			want: false,
		},
		{
			name: "ollama generate path",
			path: "/ollama/api/generate",
			body: map[string]any{"model": "codellama", "prompt": "func main("},
			want: true,
		},
		{
			name: "trailing slash normalized",
			path: "/openai/v1/completions/",
			body: map[string]any{"prompt": "x := "},
			want: true,
		},
		{
			name: "infill markers over chat body",
			path: "/v1/mux/chat/completions",
			body: chatBody(infill),
			want: true,
		},
		{
			name: "partial markers are chat",
			path: "/v1/mux/chat/completions",
			body: chatBody("<COMPLETION> only"),
			want: false,
		},
		{
			name: "cline is never fim",
			path: "/openai/v1/completions",
			body: chatBody("You are Cline, a coding agent.", "do the task"),
			want: false,
		},
		{
			name: "kodu is never fim",
			path: "/ollama/api/generate",
			body: map[string]any{"prompt": "Kodu wants you to complete this"},
			want: false,
		},
		{
			name: "open interpreter is never fim",
			path: "/openai/v1/completions",
			body: chatBody("Open Interpreter session"),
			want: false,
		},
		{
			name: "plain chat",
			path: "/v1/mux/chat/completions",
			body: chatBody("explain goroutines"),
			want: false,
		},
		{
			name: "empty body on chat path",
			path: "/anthropic/v1/messages",
			body: map[string]any{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFIM(tt.path, tt.body); got != tt.want {
				t.Errorf("IsFIM(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
