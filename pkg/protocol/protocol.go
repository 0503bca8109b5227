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

// Package protocol defines the typed request, response and streaming event
// structures for every wire protocol the gateway speaks (OpenAI chat and
// legacy completions, Anthropic messages, Ollama chat and generate), plus
// the SSE and NDJSON codecs that move them on and off the wire.
//
// Pipelines never touch raw JSON. Each request type implements the Request
// capability set so redaction, prompt injection and routing can walk any
// protocol's messages through one interface.
package protocol

// Content is one addressable piece of message content. Tool calls, images
// and other non-text pieces report no text so redaction walks skip them.
type Content interface {
	// GetText returns the text payload and whether this piece carries text.
	GetText() (string, bool)
	// SetText replaces the text payload. No-op on non-text pieces.
	SetText(text string)
}

// Message is a single conversation turn in any protocol.
type Message interface {
	GetRole() string
	// Contents returns mutable views over the message's content pieces.
	Contents() []Content
}

// IndexedMessage pairs a message with its position in the request.
type IndexedMessage struct {
	Message Message
	Index   int
}

// MessageFilter selects messages by role. A nil filter selects all.
type MessageFilter func(role string) bool

// Role constants shared across protocols.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FilterUser selects user messages.
func FilterUser(role string) bool { return role == RoleUser }

// FilterSystem selects system and developer messages.
func FilterSystem(role string) bool { return role == RoleSystem || role == RoleDeveloper }

// Request is the capability set every provider-native request implements.
// The gateway's pipelines and matchers depend only on this interface.
type Request interface {
	GetStream() bool
	SetStream(stream bool)
	GetModel() string
	SetModel(model string)

	// GetMessages returns the messages passing the filter, in order.
	GetMessages(filter MessageFilter) []Message
	// FirstMessage returns the first message, or nil when there is none.
	FirstMessage() Message
	// LastUserMessage returns the last user message and its index, or
	// (nil, -1) when the request has no user message.
	LastUserMessage() (Message, int)
	// LastUserBlock returns the trailing run of consecutive user messages
	// in request order.
	LastUserBlock() []IndexedMessage

	// GetSystemPrompt returns every system prompt text present.
	GetSystemPrompt() []string
	// SetSystemPrompt replaces the request's system prompt, creating one
	// in the protocol's native shape when absent.
	SetSystemPrompt(text string)
	// AddSystemPrompt appends to the existing system prompt using sep,
	// or sets it when absent.
	AddSystemPrompt(text, sep string)

	// GetPrompt flattens the request into a single prompt string for
	// classification, falling back to def when empty.
	GetPrompt(def string) string
}

// lastUserBlock is the shared trailing-run scan used by every request type.
func lastUserBlock(messages []Message) []IndexedMessage {
	end := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].GetRole() == RoleUser {
			end = i
			break
		}
	}
	if end < 0 {
		return nil
	}
	start := end
	for start > 0 && messages[start-1].GetRole() == RoleUser {
		start--
	}
	block := make([]IndexedMessage, 0, end-start+1)
	for i := start; i <= end; i++ {
		block = append(block, IndexedMessage{Message: messages[i], Index: i})
	}
	return block
}

// MessageText concatenates every text piece of a message.
func MessageText(msg Message) string {
	if msg == nil {
		return ""
	}
	var out string
	for _, c := range msg.Contents() {
		if text, ok := c.GetText(); ok {
			out += text
		}
	}
	return out
}

// SetMessageText replaces the first text piece of a message.
func SetMessageText(msg Message, text string) {
	if msg == nil {
		return
	}
	for _, c := range msg.Contents() {
		if _, ok := c.GetText(); ok {
			c.SetText(text)
			return
		}
	}
}
