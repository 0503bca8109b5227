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

package pipeline

import (
	"regexp"
	"strings"
)

// maxPackageCandidates bounds the oracle query size for pathological
// inputs like a pasted lockfile.
const maxPackageCandidates = 50

// Import and install syntaxes the extractor recognizes. Each pattern's
// first group is the package name.
var packagePatterns = []*regexp.Regexp{
	// Python
	regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_][\w.]*)`),
	regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z_][\w.]*)\s+import`),
	// JavaScript / TypeScript
	regexp.MustCompile(`(?m)\bfrom\s+['"](@?[\w./-]+)['"]`),
	regexp.MustCompile(`(?m)\brequire\(\s*['"](@?[\w./-]+)['"]\s*\)`),
	// Go
	regexp.MustCompile(`(?m)^\s*import\s+"([\w./-]+)"`),
	regexp.MustCompile(`(?m)^\s*(?:_\s+)?"([\w.-]+(?:/[\w.-]+)+)"`),
	// Installer commands
	regexp.MustCompile(`(?m)\bpip3?\s+install\s+([\w.-]+)`),
	regexp.MustCompile(`(?m)\bnpm\s+(?:install|i|add)\s+(?:-[-\w]+\s+)*(@?[\w./-]+)`),
	regexp.MustCompile(`(?m)\byarn\s+add\s+(@?[\w./-]+)`),
	regexp.MustCompile(`(?m)\bgo\s+get\s+([\w./-]+)`),
	regexp.MustCompile(`(?m)\bcargo\s+add\s+([\w-]+)`),
	regexp.MustCompile(`(?m)\bgem\s+install\s+([\w-]+)`),
	// Requirements / lockfile lines
	regexp.MustCompile(`(?m)^\s*([A-Za-z][\w.-]*)\s*[=~!<>]=`),
}

// extractPackages returns the distinct package names referenced by text,
// in order of first appearance.
func extractPackages(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, re := range packagePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := normalizePackage(m[1])
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
			if len(names) >= maxPackageCandidates {
				return names
			}
		}
	}
	return names
}

// normalizePackage reduces an import path to the name an advisory index
// keys on: the top-level module for dotted Python imports, the package
// root for scoped or pathed JavaScript imports. Relative imports are not
// packages at all.
func normalizePackage(name string) string {
	if name == "" || strings.HasPrefix(name, ".") {
		return ""
	}
	if strings.HasPrefix(name, "@") {
		// Scoped npm package: keep @scope/name, drop deeper paths.
		parts := strings.SplitN(name, "/", 3)
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	if i := strings.IndexByte(name, '/'); i > 0 {
		// Domain-qualified Go paths keep the whole module path; a plain
		// JavaScript subpath import reduces to its package root.
		if strings.Contains(name[:i], ".") {
			return name
		}
		name = name[:i]
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		// Dotted Python import: os.path -> os.
		name = name[:i]
	}
	if len(name) < 2 {
		return ""
	}
	return name
}
