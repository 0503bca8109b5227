package protocol

import (
	"encoding/json"
	"strings"
)

// Anthropic streaming event types.
const (
	AnthropicEventMessageStart      = "message_start"
	AnthropicEventMessageDelta      = "message_delta"
	AnthropicEventMessageStop       = "message_stop"
	AnthropicEventContentBlockStart = "content_block_start"
	AnthropicEventContentBlockDelta = "content_block_delta"
	AnthropicEventContentBlockStop  = "content_block_stop"
	AnthropicEventPing              = "ping"
	AnthropicEventError             = "error"
)

// Anthropic content_block_delta kinds.
const (
	AnthropicDeltaText      = "text_delta"
	AnthropicDeltaInputJSON = "input_json_delta"
	AnthropicDeltaThinking  = "thinking_delta"
	AnthropicDeltaSignature = "signature_delta"
)

// AnthropicRequest is the /v1/messages request body.
type AnthropicRequest struct {
	Model         string               `json:"model"`
	Messages      []AnthropicMessage   `json:"messages"`
	System        *AnthropicSystem     `json:"system,omitempty"`
	MaxTokens     int                  `json:"max_tokens"`
	Temperature   *float64             `json:"temperature,omitempty"`
	TopP          *float64             `json:"top_p,omitempty"`
	TopK          *int                 `json:"top_k,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StopSequences []string             `json:"stop_sequences,omitempty"`
	Tools         []AnthropicTool      `json:"tools,omitempty"`
	ToolChoice    *AnthropicToolChoice `json:"tool_choice,omitempty"`
	Thinking      *AnthropicThinking   `json:"thinking,omitempty"`
	Metadata      *AnthropicMetadata   `json:"metadata,omitempty"`
}

type AnthropicMessage struct {
	Role    string                  `json:"role"`
	Content AnthropicMessageContent `json:"content"`
}

// AnthropicSystem is the top-level system prompt: a plain string or a list
// of text blocks.
type AnthropicSystem struct {
	Text   *string
	Blocks []AnthropicContent
}

func (s *AnthropicSystem) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*s = AnthropicSystem{}
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		s.Text = &v
		s.Blocks = nil
		return nil
	}
	s.Text = nil
	return json.Unmarshal(data, &s.Blocks)
}

func (s AnthropicSystem) MarshalJSON() ([]byte, error) {
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	if s.Text != nil {
		return json.Marshal(*s.Text)
	}
	return []byte("null"), nil
}

// Flatten joins every system text into one string.
func (s *AnthropicSystem) Flatten() string {
	if s == nil {
		return ""
	}
	if s.Text != nil {
		return *s.Text
	}
	var parts []string
	for i := range s.Blocks {
		if text, ok := s.Blocks[i].GetText(); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// AnthropicMessageContent is either a plain string or a list of content
// blocks, re-emitted in the wire shape it was given.
type AnthropicMessageContent struct {
	Text   *string
	Blocks []AnthropicContent
}

func (c *AnthropicMessageContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*c = AnthropicMessageContent{}
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		c.Text = &v
		c.Blocks = nil
		return nil
	}
	c.Text = nil
	return json.Unmarshal(data, &c.Blocks)
}

func (c AnthropicMessageContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	return []byte("null"), nil
}

func (c *AnthropicMessageContent) GetText() (string, bool) {
	if c.Text != nil {
		return *c.Text, true
	}
	return "", false
}

func (c *AnthropicMessageContent) SetText(text string) {
	if c.Text != nil {
		*c.Text = text
	}
}

// AnthropicContent is one content block. The Type field decides which of
// the optional fields are populated.
type AnthropicContent struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *AnthropicImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// GetText exposes only text blocks. Tool use, tool results, images and
// thinking blocks carry no redactable text.
func (b *AnthropicContent) GetText() (string, bool) {
	if b.Type == "text" {
		return b.Text, true
	}
	return "", false
}

func (b *AnthropicContent) SetText(text string) {
	if b.Type == "text" {
		b.Text = text
	}
}

type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// AnthropicToolChoice selects how the model may use tools:
// auto, any, none, or a specific tool by name.
type AnthropicToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

type AnthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Message and request capability set
// ---------------------------------------------------------------------------

func (m *AnthropicMessage) GetRole() string { return m.Role }

func (m *AnthropicMessage) Contents() []Content {
	if m == nil {
		return nil
	}
	if m.Content.Blocks == nil {
		if m.Content.Text == nil {
			return nil
		}
		return []Content{&m.Content}
	}
	out := make([]Content, 0, len(m.Content.Blocks))
	for i := range m.Content.Blocks {
		out = append(out, &m.Content.Blocks[i])
	}
	return out
}

func (r *AnthropicRequest) GetStream() bool       { return r.Stream }
func (r *AnthropicRequest) SetStream(stream bool) { r.Stream = stream }
func (r *AnthropicRequest) GetModel() string      { return r.Model }
func (r *AnthropicRequest) SetModel(model string) { r.Model = model }

func (r *AnthropicRequest) GetMessages(filter MessageFilter) []Message {
	out := make([]Message, 0, len(r.Messages))
	for i := range r.Messages {
		if filter == nil || filter(r.Messages[i].Role) {
			out = append(out, &r.Messages[i])
		}
	}
	return out
}

func (r *AnthropicRequest) FirstMessage() Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[0]
}

func (r *AnthropicRequest) LastUserMessage() (Message, int) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return &r.Messages[i], i
		}
	}
	return nil, -1
}

func (r *AnthropicRequest) LastUserBlock() []IndexedMessage {
	return lastUserBlock(r.GetMessages(nil))
}

func (r *AnthropicRequest) GetSystemPrompt() []string {
	if r.System == nil {
		return nil
	}
	if r.System.Text != nil {
		return []string{*r.System.Text}
	}
	var out []string
	for i := range r.System.Blocks {
		if text, ok := r.System.Blocks[i].GetText(); ok {
			out = append(out, text)
		}
	}
	return out
}

func (r *AnthropicRequest) SetSystemPrompt(text string) {
	r.System = &AnthropicSystem{Text: &text}
}

func (r *AnthropicRequest) AddSystemPrompt(text, sep string) {
	existing := r.System.Flatten()
	if existing == "" {
		r.SetSystemPrompt(text)
		return
	}
	r.SetSystemPrompt(existing + sep + text)
}

func (r *AnthropicRequest) GetPrompt(def string) string {
	var parts []string
	for i := range r.Messages {
		if text := MessageText(&r.Messages[i]); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, "\n")
}

// ---------------------------------------------------------------------------
// Responses and stream events
// ---------------------------------------------------------------------------

// AnthropicResponse is the non-streaming message object, also embedded in
// message_start events.
type AnthropicResponse struct {
	ID           string             `json:"id,omitempty"`
	Type         string             `json:"type,omitempty"`
	Role         string             `json:"role,omitempty"`
	Model        string             `json:"model,omitempty"`
	Content      []AnthropicContent `json:"content"`
	StopReason   *string            `json:"stop_reason"`
	StopSequence *string            `json:"stop_sequence"`
	Usage        *AnthropicUsage    `json:"usage,omitempty"`
}

type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens,omitempty"`
	OutputTokens             int `json:"output_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicErrorResponse is the {"type":"error","error":{…}} envelope used
// both as an HTTP error body and as the error stream event payload.
type AnthropicErrorResponse struct {
	Type  string         `json:"type"`
	Error AnthropicError `json:"error"`
}

// AnthropicStreamEvent is one SSE frame of a streaming message. The Type
// field matches the frame's event name; the remaining fields are populated
// per event type.
type AnthropicStreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *AnthropicResponse `json:"message,omitempty"`

	// content_block_start / content_block_delta / content_block_stop
	Index        *int              `json:"index,omitempty"`
	ContentBlock *AnthropicContent `json:"content_block,omitempty"`

	// content_block_delta and message_delta
	Delta *AnthropicDelta `json:"delta,omitempty"`

	// message_delta
	Usage *AnthropicUsage `json:"usage,omitempty"`

	// error
	Error *AnthropicError `json:"error,omitempty"`
}

// AnthropicDelta carries either a content-block payload delta or, for
// message_delta events, the closing stop metadata.
type AnthropicDelta struct {
	Type        string  `json:"type,omitempty"`
	Text        string  `json:"text,omitempty"`
	PartialJSON string  `json:"partial_json,omitempty"`
	Thinking    string  `json:"thinking,omitempty"`
	Signature   string  `json:"signature,omitempty"`
	StopReason  *string `json:"stop_reason,omitempty"`
	StopSeq     *string `json:"stop_sequence,omitempty"`
}

func (d *AnthropicDelta) GetText() (string, bool) {
	if d.Type == AnthropicDeltaText {
		return d.Text, true
	}
	return "", false
}

func (d *AnthropicDelta) SetText(text string) {
	if d.Type == AnthropicDeltaText {
		d.Text = text
	}
}

// Terminal reports whether the event ends the stream.
func (e *AnthropicStreamEvent) Terminal() bool {
	return e.Type == AnthropicEventMessageStop || e.Type == AnthropicEventError
}
