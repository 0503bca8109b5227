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

// Package clients identifies which coding assistant sent a request and
// knows each assistant's message conventions: task envelopes, code-snippet
// framing and filename placement. Detection drives per-client system
// prompts, snippet extraction and the muxing matchers.
package clients

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// ClientType tags the coding assistant behind a request.
type ClientType string

const (
	ClientGeneric         ClientType = "generic"
	ClientCline           ClientType = "cline"
	ClientKodu            ClientType = "kodu"
	ClientOpenInterpreter ClientType = "open_interpreter"
	ClientAider           ClientType = "aider"
	ClientContinue        ClientType = "continue"
	ClientCopilot         ClientType = "copilot"
)

// Detect identifies the client from the User-Agent header and, failing
// that, from the fingerprint its system or first message carries. Unknown
// clients are generic.
func Detect(userAgent string, req protocol.Request) ClientType {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "aider"):
		return ClientAider
	case strings.Contains(ua, "continue"):
		return ClientContinue
	case strings.Contains(ua, "copilot"):
		return ClientCopilot
	}
	if req == nil {
		return ClientGeneric
	}

	var texts []string
	texts = append(texts, req.GetSystemPrompt()...)
	if first := req.FirstMessage(); first != nil {
		texts = append(texts, protocol.MessageText(first))
	}
	fingerprint := strings.ToLower(strings.Join(texts, "\n"))
	switch {
	case strings.Contains(fingerprint, "cline"):
		return ClientCline
	case strings.Contains(fingerprint, "kodu"):
		return ClientKodu
	case strings.Contains(fingerprint, "open interpreter"):
		return ClientOpenInterpreter
	}
	return ClientGeneric
}

// Cline and Kodu wrap the user's actual request in XML-ish envelopes. The
// task text is what CLI parsing and persona matching should see.
var envelopePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<task>\s*(.*?)\s*</task>`),
	regexp.MustCompile(`(?s)<feedback>\s*(.*?)\s*</feedback>`),
	regexp.MustCompile(`(?s)<answer>\s*(.*?)\s*</answer>`),
}

// StripEnvelope unwraps the client's task envelope from a user message.
// Text without an envelope, or from clients that do not use one, is
// returned unchanged.
func StripEnvelope(client ClientType, text string) string {
	if client != ClientCline && client != ClientKodu {
		return text
	}
	for _, re := range envelopePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return text
}
