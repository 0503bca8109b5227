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

// Package translate converts requests, responses and streams between the
// wire protocols the gateway speaks. The gateway's canonical form is the
// OpenAI chat shape (legacy completions for fill-in-the-middle): incoming
// native requests normalize into it, pipelines run on it, and the result
// denormalizes back to whatever the client or the routed provider speaks.
//
// Every conversion is a pure function over the typed structs in
// pkg/protocol. A variant the target protocol cannot express is a hard
// error, never a silent drop.
package translate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUnsupported marks a request variant the target protocol cannot carry.
var ErrUnsupported = errors.New("unsupported protocol variant")

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// streamBuffer bounds converted events held between converter goroutine
// and consumer, mirroring the decoder channels.
const streamBuffer = 100

// OpenAI finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
)

// Anthropic stop reasons.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
	StopRefusal      = "refusal"
)

// FinishReasonFromAnthropic maps an Anthropic stop_reason to an OpenAI
// finish_reason. Unknown and absent reasons map to "stop".
func FinishReasonFromAnthropic(stopReason *string) string {
	if stopReason == nil {
		return FinishStop
	}
	switch *stopReason {
	case StopMaxTokens:
		return FinishLength
	case StopToolUse:
		return FinishToolCalls
	case StopRefusal:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// StopReasonFromOpenAI maps an OpenAI finish_reason to an Anthropic
// stop_reason. Unknown reasons map to "end_turn".
func StopReasonFromOpenAI(finishReason string) string {
	switch finishReason {
	case FinishLength:
		return StopMaxTokens
	case FinishToolCalls:
		return StopToolUse
	case FinishContentFilter:
		return StopRefusal
	default:
		return StopEndTurn
	}
}

// FinishReasonFromOllama maps an Ollama done_reason to an OpenAI
// finish_reason. sawToolCalls forces tool_calls: Ollama reports plain
// "stop" even when the final message carried tool calls.
func FinishReasonFromOllama(doneReason string, sawToolCalls bool) string {
	if sawToolCalls {
		return FinishToolCalls
	}
	switch doneReason {
	case "length", "limit":
		return FinishLength
	default:
		return FinishStop
	}
}

// DoneReasonFromOpenAI maps an OpenAI finish_reason to an Ollama
// done_reason.
func DoneReasonFromOpenAI(finishReason string) string {
	if finishReason == FinishLength {
		return "length"
	}
	return "stop"
}

func newChatID() string { return "chatcmpl-" + uuid.NewString() }

func newMessageID() string { return "msg_" + uuid.NewString() }

func newToolCallID() string { return "call_" + uuid.NewString() }

func ptr[T any](v T) *T { return &v }
