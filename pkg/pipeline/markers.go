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

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// uuidLen is the text length of the placeholder ids issued by the
// session store.
const uuidLen = 36

// marker is one placeholder syntax. Unredaction steps use it to restore
// complete placeholders and to recognize a chunk tail that may still grow
// into one.
type marker struct {
	open  string
	close string
	re    *regexp.Regexp
}

var (
	secretMarker = marker{open: "REDACTED<", close: ">", re: regexp.MustCompile(`REDACTED<([0-9a-fA-F-]{36})>`)}
	piiMarker    = marker{open: "#", close: "#", re: regexp.MustCompile(`#([0-9a-fA-F-]{36})#`)}
)

func (m marker) wrap(id string) string { return m.open + id + m.close }

// restore replaces every complete placeholder via resolve. Unknown ids
// are removed outright so stale placeholders never reach the client.
func (m marker) restore(text string, resolve func(id string) (string, bool)) string {
	return m.re.ReplaceAllStringFunc(text, func(match string) string {
		id := match[len(m.open) : len(match)-len(m.close)]
		original, ok := resolve(id)
		if !ok {
			return ""
		}
		return original
	})
}

// splitPartial splits off the longest text suffix that could still grow
// into a complete placeholder once more chunks arrive. A tail like a lone
// "#" or "REDACTED<52d7" is held back; anything the syntax already rules
// out flushes through.
func (m marker) splitPartial(text string) (head, pending string) {
	max := len(m.open) + uuidLen
	if len(text) < max {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		tail := text[len(text)-n:]
		if m.couldGrow(tail) {
			return text[:len(text)-n], tail
		}
	}
	return text, ""
}

// couldGrow reports whether tail is a viable placeholder start: a prefix
// of the opener, or the opener followed only by id characters.
func (m marker) couldGrow(tail string) bool {
	if len(tail) <= len(m.open) {
		return strings.HasPrefix(m.open, tail)
	}
	if !strings.HasPrefix(tail, m.open) {
		return false
	}
	payload := tail[len(m.open):]
	if len(payload) > uuidLen {
		return false
	}
	for i := 0; i < len(payload); i++ {
		if !isUUIDChar(payload[i]) {
			return false
		}
	}
	return true
}

// stripTruncated drops a trailing truncated placeholder from a final
// flush, where holding is no longer possible. Only an unambiguous start,
// the full opener plus at least one id character, is dropped; shorter
// tails are ordinary text.
func (m marker) stripTruncated(text string) (string, bool) {
	idx := strings.LastIndex(text, m.open)
	if idx < 0 || len(text)-idx <= len(m.open) {
		return text, false
	}
	if !m.couldGrow(text[idx:]) {
		return text, false
	}
	return text[:idx], true
}

func isUUIDChar(c byte) bool {
	return c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// chunkFinished reports whether any choice carries a finish reason,
// marking the stream's final content-bearing frame.
func chunkFinished(chunk *protocol.OpenAIStreamChunk) bool {
	for i := range chunk.Choices {
		if chunk.Choices[i].FinishReason != nil {
			return true
		}
	}
	return false
}

// noticeChunk clones ref's stream envelope to carry an injected markdown
// notice ahead of it.
func noticeChunk(ref *protocol.OpenAIStreamChunk, text string) *protocol.OpenAIStreamChunk {
	return &protocol.OpenAIStreamChunk{
		ID:      ref.ID,
		Object:  ref.Object,
		Created: ref.Created,
		Model:   ref.Model,
		Choices: []protocol.OpenAIStreamChoice{{
			Delta: protocol.OpenAIDelta{Content: &text},
		}},
	}
}
