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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const codeCommentStepName = "codegate-code-comment"

// CodeCommentStep watches the response stream for fenced code blocks and,
// right after a block closes, injects a markdown warning for any imports
// the advisory oracle flags. Blocks are only judged once complete;
// nothing is held back, so the annotation trails the code it refers to.
type CodeCommentStep struct {
	oracle PackageOracle

	text   strings.Builder
	fences int
	warned map[string]bool
}

func NewCodeCommentStep(oracle PackageOracle) *CodeCommentStep {
	return &CodeCommentStep{oracle: oracle, warned: make(map[string]bool)}
}

func (s *CodeCommentStep) Name() string { return codeCommentStepName }

func (s *CodeCommentStep) Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error) {
	forward := []*protocol.OpenAIStreamChunk{chunk}
	delta := chunkText(chunk)
	if delta == "" {
		return forward, nil
	}
	s.text.WriteString(delta)

	blocks, fences := completedBlocks(s.text.String(), s.fences)
	s.fences = fences

	var flagged []models.PackageInfo
	for _, code := range blocks {
		names := s.fresh(extractPackages(code))
		if len(names) == 0 {
			continue
		}
		found, err := s.oracle.Search(ctx, names)
		if err != nil {
			slog.Warn("package oracle lookup failed", "session_id", pctx.SessionID, "error", err)
			continue
		}
		flagged = append(flagged, found...)
	}
	if len(flagged) == 0 {
		return forward, nil
	}

	pctx.BadPackagesFound = true
	for _, pkg := range flagged {
		pctx.AddAlert(codeCommentStepName, models.AlertCritical,
			fmt.Sprintf("%s package %s is %s", pkg.Type, pkg.Name, pkg.Status), "")
	}
	return append(forward, noticeChunk(chunk, packageWarning(flagged))), nil
}

// fresh filters out packages this stream already warned about, so a model
// that repeats a block does not stack identical warnings.
func (s *CodeCommentStep) fresh(names []string) []string {
	var out []string
	for _, name := range names {
		key := strings.ToLower(name)
		if s.warned[key] {
			continue
		}
		s.warned[key] = true
		out = append(out, name)
	}
	return out
}

// completedBlocks returns the contents of fenced blocks that closed since
// the previous call, given how many fence markers were consumed then. A
// trailing unclosed block stays pending until its closing fence streams.
func completedBlocks(text string, consumed int) (blocks []string, fences int) {
	var openAt int
	open := false
	for i := 0; i+3 <= len(text); {
		if text[i:i+3] != "```" {
			i++
			continue
		}
		fences++
		if open && fences > consumed && openAt <= i {
			blocks = append(blocks, text[openAt:i])
		}
		open = !open
		if open {
			// Content starts after the info line.
			openAt = i + 3
			if nl := strings.IndexByte(text[openAt:], '\n'); nl >= 0 {
				openAt += nl + 1
			} else {
				openAt = len(text)
			}
		}
		i += 3
	}
	return blocks, fences
}

func packageWarning(flagged []models.PackageInfo) string {
	var b strings.Builder
	b.WriteString("\n\n**Warning:** CodeGate detected one or more problematic packages in this code:\n")
	for _, pkg := range flagged {
		fmt.Fprintf(&b, "- `%s` (%s) is **%s**", pkg.Name, pkg.Type, pkg.Status)
		if pkg.Description != "" {
			b.WriteString(": ")
			b.WriteString(pkg.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
