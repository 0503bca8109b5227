package protocol

import (
	"encoding/json"
	"strings"
)

// OpenAIChatRequest is the /chat/completions request body. vLLM, llama.cpp
// and OpenRouter accept the same shape.
type OpenAIChatRequest struct {
	Model               string                `json:"model"`
	Messages            []OpenAIMessage       `json:"messages"`
	MaxTokens           *int                  `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                  `json:"max_completion_tokens,omitempty"`
	Temperature         *float64              `json:"temperature,omitempty"`
	TopP                *float64              `json:"top_p,omitempty"`
	N                   *int                  `json:"n,omitempty"`
	Stream              bool                  `json:"stream,omitempty"`
	StreamOptions       *OpenAIStreamOptions  `json:"stream_options,omitempty"`
	Stop                *OpenAIStop           `json:"stop,omitempty"`
	Seed                *int                  `json:"seed,omitempty"`
	PresencePenalty     *float64              `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64              `json:"frequency_penalty,omitempty"`
	LogitBias           map[string]float64    `json:"logit_bias,omitempty"`
	User                string                `json:"user,omitempty"`
	ResponseFormat      *OpenAIResponseFormat `json:"response_format,omitempty"`
	Tools               []OpenAITool          `json:"tools,omitempty"`
	ToolChoice          *OpenAIToolChoice     `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool                 `json:"parallel_tool_calls,omitempty"`
	Functions           []OpenAIFunctionDef   `json:"functions,omitempty"`
	FunctionCall        json.RawMessage       `json:"function_call,omitempty"`
	ReasoningEffort     string                `json:"reasoning_effort,omitempty"`
}

type OpenAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type OpenAIMessage struct {
	Role         string               `json:"role"`
	Content      OpenAIMessageContent `json:"content"`
	Name         string               `json:"name,omitempty"`
	ToolCalls    []OpenAIToolCall     `json:"tool_calls,omitempty"`
	ToolCallID   string               `json:"tool_call_id,omitempty"`
	FunctionCall *OpenAIFunctionCall  `json:"function_call,omitempty"`
}

// OpenAIMessageContent is either a plain string or a list of typed parts.
// The wire shape it was given is the shape it re-emits.
type OpenAIMessageContent struct {
	Text  *string
	Parts []OpenAIContentPart
}

// StringContent builds a string-shaped message content.
func StringContent(text string) OpenAIMessageContent {
	return OpenAIMessageContent{Text: &text}
}

func (c *OpenAIMessageContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*c = OpenAIMessageContent{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Text = &s
		c.Parts = nil
		return nil
	}
	var parts []OpenAIContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	c.Parts = parts
	c.Text = nil
	return nil
}

func (c OpenAIMessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	if c.Text != nil {
		return json.Marshal(*c.Text)
	}
	return []byte("null"), nil
}

func (c *OpenAIMessageContent) GetText() (string, bool) {
	if c.Text != nil {
		return *c.Text, true
	}
	return "", false
}

func (c *OpenAIMessageContent) SetText(text string) {
	if c.Text != nil {
		*c.Text = text
	}
}

type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

func (p *OpenAIContentPart) GetText() (string, bool) {
	if p.Type == "text" {
		return p.Text, true
	}
	return "", false
}

func (p *OpenAIContentPart) SetText(text string) {
	if p.Type == "text" {
		p.Text = text
	}
}

type OpenAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// OpenAIStop accepts the string and list wire shapes for stop sequences
// and re-emits the shape it was given.
type OpenAIStop struct {
	Values []string
	single bool
}

func (s *OpenAIStop) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = OpenAIStop{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		s.Values = []string{v}
		s.single = true
		return nil
	}
	s.single = false
	return json.Unmarshal(data, &s.Values)
}

func (s OpenAIStop) MarshalJSON() ([]byte, error) {
	if s.single && len(s.Values) == 1 {
		return json.Marshal(s.Values[0])
	}
	return json.Marshal(s.Values)
}

type OpenAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *OpenAIJSONSchema `json:"json_schema,omitempty"`
}

type OpenAIJSONSchema struct {
	Name   string                 `json:"name,omitempty"`
	Schema map[string]interface{} `json:"schema,omitempty"`
	Strict *bool                  `json:"strict,omitempty"`
}

type OpenAITool struct {
	Type     string            `json:"type"`
	Function OpenAIFunctionDef `json:"function"`
}

type OpenAIFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Strict      *bool                  `json:"strict,omitempty"`
}

// OpenAIToolChoice is either the string form ("none", "auto", "required")
// or the {"type":"function","function":{"name":…}} object form.
type OpenAIToolChoice struct {
	Value    string
	Function string
}

func (t *OpenAIToolChoice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(data, &t.Value)
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Value = obj.Type
	t.Function = obj.Function.Name
	return nil
}

func (t OpenAIToolChoice) MarshalJSON() ([]byte, error) {
	if t.Function == "" {
		return json.Marshal(t.Value)
	}
	return json.Marshal(map[string]interface{}{
		"type":     "function",
		"function": map[string]string{"name": t.Function},
	})
}

type OpenAIToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function OpenAIFunctionCall `json:"function"`
}

type OpenAIFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ---------------------------------------------------------------------------
// Message capability set
// ---------------------------------------------------------------------------

func (m *OpenAIMessage) GetRole() string { return m.Role }

func (m *OpenAIMessage) Contents() []Content {
	if m == nil {
		return nil
	}
	if m.Content.Parts == nil {
		if m.Content.Text == nil {
			return nil
		}
		return []Content{&m.Content}
	}
	out := make([]Content, 0, len(m.Content.Parts))
	for i := range m.Content.Parts {
		out = append(out, &m.Content.Parts[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Request capability set
// ---------------------------------------------------------------------------

func (r *OpenAIChatRequest) GetStream() bool       { return r.Stream }
func (r *OpenAIChatRequest) SetStream(stream bool) { r.Stream = stream }
func (r *OpenAIChatRequest) GetModel() string      { return r.Model }
func (r *OpenAIChatRequest) SetModel(model string) { r.Model = model }

func (r *OpenAIChatRequest) GetMessages(filter MessageFilter) []Message {
	out := make([]Message, 0, len(r.Messages))
	for i := range r.Messages {
		if filter == nil || filter(r.Messages[i].Role) {
			out = append(out, &r.Messages[i])
		}
	}
	return out
}

func (r *OpenAIChatRequest) FirstMessage() Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[0]
}

func (r *OpenAIChatRequest) LastUserMessage() (Message, int) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return &r.Messages[i], i
		}
	}
	return nil, -1
}

func (r *OpenAIChatRequest) LastUserBlock() []IndexedMessage {
	return lastUserBlock(r.GetMessages(nil))
}

func (r *OpenAIChatRequest) GetSystemPrompt() []string {
	var out []string
	for i := range r.Messages {
		if FilterSystem(r.Messages[i].Role) {
			out = append(out, MessageText(&r.Messages[i]))
		}
	}
	return out
}

// SetSystemPrompt collapses every system and developer message into a
// single leading system message carrying text.
func (r *OpenAIChatRequest) SetSystemPrompt(text string) {
	kept := r.Messages[:0]
	for i := range r.Messages {
		if !FilterSystem(r.Messages[i].Role) {
			kept = append(kept, r.Messages[i])
		}
	}
	sys := OpenAIMessage{Role: RoleSystem, Content: StringContent(text)}
	r.Messages = append([]OpenAIMessage{sys}, kept...)
}

func (r *OpenAIChatRequest) AddSystemPrompt(text, sep string) {
	existing := r.GetSystemPrompt()
	if len(existing) == 0 || strings.Join(existing, "") == "" {
		r.SetSystemPrompt(text)
		return
	}
	r.SetSystemPrompt(strings.Join(existing, sep) + sep + text)
}

func (r *OpenAIChatRequest) GetPrompt(def string) string {
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
// Responses and stream chunks
// ---------------------------------------------------------------------------

type OpenAIChatResponse struct {
	ID                string         `json:"id,omitempty"`
	Object            string         `json:"object,omitempty"`
	Created           int64          `json:"created,omitempty"`
	Model             string         `json:"model,omitempty"`
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
	Choices           []OpenAIChoice `json:"choices"`
	Usage             *OpenAIUsage   `json:"usage,omitempty"`
	Error             *OpenAIError   `json:"error,omitempty"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason *string       `json:"finish_reason"`
}

// OpenAIStreamChunk is one SSE data frame of a streaming chat completion.
type OpenAIStreamChunk struct {
	ID                string               `json:"id,omitempty"`
	Object            string               `json:"object,omitempty"`
	Created           int64                `json:"created,omitempty"`
	Model             string               `json:"model,omitempty"`
	SystemFingerprint string               `json:"system_fingerprint,omitempty"`
	Choices           []OpenAIStreamChoice `json:"choices"`
	Usage             *OpenAIUsage         `json:"usage,omitempty"`
	Error             *OpenAIError         `json:"error,omitempty"`
}

type OpenAIStreamChoice struct {
	Index        int             `json:"index"`
	Delta        OpenAIDelta     `json:"delta"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
	FinishReason *string         `json:"finish_reason"`
}

type OpenAIDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   *string          `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
}

// GetText exposes the delta's text to output pipeline steps. A nil Content
// (role-only or tool-call delta) carries no text.
func (d *OpenAIDelta) GetText() (string, bool) {
	if d.Content != nil {
		return *d.Content, true
	}
	return "", false
}

func (d *OpenAIDelta) SetText(text string) {
	d.Content = &text
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIError struct {
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
	Param   *string         `json:"param,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// OpenAIErrorResponse is the {"error": …} envelope.
type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIModelList struct {
	Object string        `json:"object,omitempty"`
	Data   []OpenAIModel `json:"data"`
}

type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ---------------------------------------------------------------------------
// Legacy completions
// ---------------------------------------------------------------------------

// OpenAICompletionRequest is the legacy /completions body. Autocomplete
// clients still speak it for fill-in-the-middle requests.
type OpenAICompletionRequest struct {
	Model            string       `json:"model"`
	Prompt           OpenAIPrompt `json:"prompt"`
	Suffix           string       `json:"suffix,omitempty"`
	MaxTokens        *int         `json:"max_tokens,omitempty"`
	Temperature      *float64     `json:"temperature,omitempty"`
	TopP             *float64     `json:"top_p,omitempty"`
	N                *int         `json:"n,omitempty"`
	Stream           bool         `json:"stream,omitempty"`
	Logprobs         *int         `json:"logprobs,omitempty"`
	Echo             bool         `json:"echo,omitempty"`
	Stop             *OpenAIStop  `json:"stop,omitempty"`
	Seed             *int         `json:"seed,omitempty"`
	PresencePenalty  *float64     `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64     `json:"frequency_penalty,omitempty"`
	BestOf           *int         `json:"best_of,omitempty"`
	User             string       `json:"user,omitempty"`
}

// OpenAIPrompt is the string-or-list prompt of a legacy completion.
type OpenAIPrompt struct {
	Values []string
	single bool
}

// StringPrompt builds a prompt that marshals back to the plain string shape.
func StringPrompt(text string) OpenAIPrompt {
	return OpenAIPrompt{Values: []string{text}, single: true}
}

func (p *OpenAIPrompt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*p = OpenAIPrompt{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		p.Values = []string{v}
		p.single = true
		return nil
	}
	p.single = false
	return json.Unmarshal(data, &p.Values)
}

func (p OpenAIPrompt) MarshalJSON() ([]byte, error) {
	if p.single && len(p.Values) == 1 {
		return json.Marshal(p.Values[0])
	}
	return json.Marshal(p.Values)
}

func (p *OpenAIPrompt) GetText() (string, bool) {
	if len(p.Values) == 0 {
		return "", true
	}
	if len(p.Values) == 1 {
		return p.Values[0], true
	}
	return strings.Join(p.Values, "\n"), true
}

func (p *OpenAIPrompt) SetText(text string) {
	p.Values = []string{text}
	p.single = true
}

// completionMessage adapts the flat prompt to the Message interface so
// pipelines can treat legacy completions like a one-message conversation.
type completionMessage struct {
	req *OpenAICompletionRequest
}

func (m completionMessage) GetRole() string { return RoleUser }

func (m completionMessage) Contents() []Content {
	return []Content{&m.req.Prompt}
}

func (r *OpenAICompletionRequest) GetStream() bool       { return r.Stream }
func (r *OpenAICompletionRequest) SetStream(stream bool) { r.Stream = stream }
func (r *OpenAICompletionRequest) GetModel() string      { return r.Model }
func (r *OpenAICompletionRequest) SetModel(model string) { r.Model = model }

func (r *OpenAICompletionRequest) GetMessages(filter MessageFilter) []Message {
	if filter != nil && !filter(RoleUser) {
		return nil
	}
	return []Message{completionMessage{req: r}}
}

func (r *OpenAICompletionRequest) FirstMessage() Message {
	return completionMessage{req: r}
}

func (r *OpenAICompletionRequest) LastUserMessage() (Message, int) {
	return completionMessage{req: r}, 0
}

func (r *OpenAICompletionRequest) LastUserBlock() []IndexedMessage {
	return []IndexedMessage{{Message: completionMessage{req: r}, Index: 0}}
}

// Legacy completions carry no system prompt. The setters are no-ops so the
// chat-only steps degrade cleanly when a completion request reaches them.
func (r *OpenAICompletionRequest) GetSystemPrompt() []string   { return nil }
func (r *OpenAICompletionRequest) SetSystemPrompt(string)      {}
func (r *OpenAICompletionRequest) AddSystemPrompt(_, _ string) {}

func (r *OpenAICompletionRequest) GetPrompt(def string) string {
	if text, _ := r.Prompt.GetText(); text != "" {
		return text
	}
	return def
}

// OpenAICompletionChunk is one SSE data frame of a streaming legacy
// completion, and doubles as the non-streaming response body.
type OpenAICompletionChunk struct {
	ID      string                   `json:"id,omitempty"`
	Object  string                   `json:"object,omitempty"`
	Created int64                    `json:"created,omitempty"`
	Model   string                   `json:"model,omitempty"`
	Choices []OpenAICompletionChoice `json:"choices"`
	Usage   *OpenAIUsage             `json:"usage,omitempty"`
	Error   *OpenAIError             `json:"error,omitempty"`
}

type OpenAICompletionChoice struct {
	Index        int             `json:"index"`
	Text         string          `json:"text"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
	FinishReason *string         `json:"finish_reason"`
}

func (c *OpenAICompletionChoice) GetText() (string, bool) { return c.Text, true }
func (c *OpenAICompletionChoice) SetText(text string)     { c.Text = text }
