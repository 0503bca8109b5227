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

package clients

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Snippet is one fenced code block lifted out of a message.
type Snippet struct {
	Language string
	Filename string
	Code     string
}

// Fenced block: info line carries an optional language token and, in the
// Continue/Copilot convention, the filename after it.
var fenceRe = regexp.MustCompile("(?ms)^```([A-Za-z0-9_+#.-]*)[ \t]*([^`\n]*)\n(.*?)^```")

// Cline and Kodu attach files as tags rather than fences.
var fileTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<file_content path="([^"]+)"`),
	regexp.MustCompile(`<file path="([^"]+)"`),
}

var extLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".sql":  "sql",
}

// ExtractSnippets returns every fenced code block in text, in order.
// The filename comes from the info line when present, or from a bare
// filename on the line above the fence (the Aider convention).
func ExtractSnippets(text string) []Snippet {
	var snippets []Snippet
	for _, loc := range fenceRe.FindAllStringSubmatchIndex(text, -1) {
		lang := text[loc[2]:loc[3]]
		info := strings.TrimSpace(text[loc[4]:loc[5]])
		code := text[loc[6]:loc[7]]

		var filename string
		if strings.Contains(lang, ".") {
			// ```foo.ts puts the filename where the language goes.
			filename, lang = lang, ""
		}
		if filename == "" {
			for _, tok := range strings.Fields(info) {
				if pathLike(tok) {
					filename = tok
					break
				}
			}
		}
		if filename == "" {
			if prev := precedingLine(text, loc[0]); pathLike(prev) {
				filename = prev
			}
		}
		if lang == "" && filename != "" {
			lang = extLanguages[strings.ToLower(filepath.Ext(filename))]
		}

		if strings.TrimSpace(code) == "" && filename == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			Language: strings.ToLower(lang),
			Filename: filename,
			Code:     code,
		})
	}
	return snippets
}

// ExtractFilenames returns every filename the client's conventions expose
// in text, deduplicated in order of appearance.
func ExtractFilenames(client ClientType, text string) []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, s := range ExtractSnippets(text) {
		add(s.Filename)
	}
	if client == ClientCline || client == ClientKodu || client == ClientGeneric {
		for _, re := range fileTagPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				add(m[1])
			}
		}
	}
	return names
}

func pathLike(tok string) bool {
	if tok == "" || strings.ContainsAny(tok, "=<>\"'` \t") {
		return false
	}
	if strings.ContainsAny(tok, "/\\") {
		return true
	}
	ext := filepath.Ext(tok)
	if len(ext) < 2 || len(ext) > 9 || ext == tok {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func precedingLine(text string, offset int) string {
	if offset == 0 {
		return ""
	}
	end := offset - 1 // the newline before the fence
	start := strings.LastIndexByte(text[:end], '\n') + 1
	return strings.TrimSuffix(strings.TrimSpace(text[start:end]), ":")
}
