package protocol

import (
	"encoding/json"
	"strings"
)

// OllamaChatRequest is the /api/chat request body.
type OllamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []OllamaMessage        `json:"messages"`
	Stream    *bool                  `json:"stream,omitempty"`
	Format    json.RawMessage        `json:"format,omitempty"`
	KeepAlive json.RawMessage        `json:"keep_alive,omitempty"`
	Tools     []OllamaTool           `json:"tools,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type OllamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []OllamaToolCall `json:"tool_calls,omitempty"`
}

func (m *OllamaMessage) GetRole() string { return m.Role }

// Contents returns the message itself: Ollama content is a flat string.
func (m *OllamaMessage) Contents() []Content { return []Content{m} }

func (m *OllamaMessage) GetText() (string, bool) { return m.Content, true }
func (m *OllamaMessage) SetText(text string)     { m.Content = text }

type OllamaToolCall struct {
	Function OllamaFunctionCall `json:"function"`
}

// OllamaFunctionCall arguments arrive as a JSON object, unlike OpenAI's
// stringified form.
type OllamaFunctionCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type OllamaTool struct {
	Type     string             `json:"type"`
	Function OllamaToolFunction `json:"function"`
}

type OllamaToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ---------------------------------------------------------------------------
// Chat request capability set
// ---------------------------------------------------------------------------

// GetStream reports the effective streaming mode. Ollama defaults to
// streaming when the field is absent.
func (r *OllamaChatRequest) GetStream() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

func (r *OllamaChatRequest) SetStream(stream bool) { r.Stream = &stream }
func (r *OllamaChatRequest) GetModel() string      { return r.Model }
func (r *OllamaChatRequest) SetModel(model string) { r.Model = model }

func (r *OllamaChatRequest) GetMessages(filter MessageFilter) []Message {
	out := make([]Message, 0, len(r.Messages))
	for i := range r.Messages {
		if filter == nil || filter(r.Messages[i].Role) {
			out = append(out, &r.Messages[i])
		}
	}
	return out
}

func (r *OllamaChatRequest) FirstMessage() Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return &r.Messages[0]
}

func (r *OllamaChatRequest) LastUserMessage() (Message, int) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return &r.Messages[i], i
		}
	}
	return nil, -1
}

func (r *OllamaChatRequest) LastUserBlock() []IndexedMessage {
	return lastUserBlock(r.GetMessages(nil))
}

func (r *OllamaChatRequest) GetSystemPrompt() []string {
	var out []string
	for i := range r.Messages {
		if FilterSystem(r.Messages[i].Role) {
			out = append(out, r.Messages[i].Content)
		}
	}
	return out
}

// SetSystemPrompt collapses every system message into a single leading
// system message carrying text.
func (r *OllamaChatRequest) SetSystemPrompt(text string) {
	kept := r.Messages[:0]
	for i := range r.Messages {
		if !FilterSystem(r.Messages[i].Role) {
			kept = append(kept, r.Messages[i])
		}
	}
	sys := OllamaMessage{Role: RoleSystem, Content: text}
	r.Messages = append([]OllamaMessage{sys}, kept...)
}

func (r *OllamaChatRequest) AddSystemPrompt(text, sep string) {
	existing := r.GetSystemPrompt()
	if len(existing) == 0 || strings.Join(existing, "") == "" {
		r.SetSystemPrompt(text)
		return
	}
	r.SetSystemPrompt(strings.Join(existing, sep) + sep + text)
}

func (r *OllamaChatRequest) GetPrompt(def string) string {
	var parts []string
	for i := range r.Messages {
		if r.Messages[i].Content != "" {
			parts = append(parts, r.Messages[i].Content)
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, "\n")
}

// ---------------------------------------------------------------------------
// Generate (FIM) request
// ---------------------------------------------------------------------------

// OllamaGenerateRequest is the /api/generate body used by autocomplete.
type OllamaGenerateRequest struct {
	Model     string                 `json:"model"`
	Prompt    string                 `json:"prompt"`
	Suffix    string                 `json:"suffix,omitempty"`
	System    string                 `json:"system,omitempty"`
	Template  string                 `json:"template,omitempty"`
	Context   []int                  `json:"context,omitempty"`
	Stream    *bool                  `json:"stream,omitempty"`
	Raw       bool                   `json:"raw,omitempty"`
	Format    json.RawMessage        `json:"format,omitempty"`
	KeepAlive json.RawMessage        `json:"keep_alive,omitempty"`
	Images    []string               `json:"images,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

// generateMessage adapts the flat prompt to the Message interface.
type generateMessage struct {
	req *OllamaGenerateRequest
}

func (m generateMessage) GetRole() string     { return RoleUser }
func (m generateMessage) Contents() []Content { return []Content{m} }

func (m generateMessage) GetText() (string, bool) { return m.req.Prompt, true }
func (m generateMessage) SetText(text string)     { m.req.Prompt = text }

func (r *OllamaGenerateRequest) GetStream() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

func (r *OllamaGenerateRequest) SetStream(stream bool) { r.Stream = &stream }
func (r *OllamaGenerateRequest) GetModel() string      { return r.Model }
func (r *OllamaGenerateRequest) SetModel(model string) { r.Model = model }

func (r *OllamaGenerateRequest) GetMessages(filter MessageFilter) []Message {
	if filter != nil && !filter(RoleUser) {
		return nil
	}
	return []Message{generateMessage{req: r}}
}

func (r *OllamaGenerateRequest) FirstMessage() Message {
	return generateMessage{req: r}
}

func (r *OllamaGenerateRequest) LastUserMessage() (Message, int) {
	return generateMessage{req: r}, 0
}

func (r *OllamaGenerateRequest) LastUserBlock() []IndexedMessage {
	return []IndexedMessage{{Message: generateMessage{req: r}, Index: 0}}
}

func (r *OllamaGenerateRequest) GetSystemPrompt() []string {
	if r.System == "" {
		return nil
	}
	return []string{r.System}
}

func (r *OllamaGenerateRequest) SetSystemPrompt(text string) { r.System = text }

func (r *OllamaGenerateRequest) AddSystemPrompt(text, sep string) {
	if r.System == "" {
		r.System = text
		return
	}
	r.System += sep + text
}

func (r *OllamaGenerateRequest) GetPrompt(def string) string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return def
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// OllamaChatResponse is one NDJSON line of a /api/chat stream; done:true
// marks the final line, which also carries the timing counters.
type OllamaChatResponse struct {
	Model              string        `json:"model,omitempty"`
	CreatedAt          string        `json:"created_at,omitempty"`
	Message            OllamaMessage `json:"message,omitempty"`
	Done               bool          `json:"done"`
	DoneReason         string        `json:"done_reason,omitempty"`
	TotalDuration      int64         `json:"total_duration,omitempty"`
	LoadDuration       int64         `json:"load_duration,omitempty"`
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64         `json:"prompt_eval_duration,omitempty"`
	EvalCount          int           `json:"eval_count,omitempty"`
	EvalDuration       int64         `json:"eval_duration,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// OllamaGenerateResponse is one NDJSON line of a /api/generate stream.
type OllamaGenerateResponse struct {
	Model              string `json:"model,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason,omitempty"`
	Context            []int  `json:"context,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
	Error              string `json:"error,omitempty"`
}

// OllamaErrorResponse is the {"error": "…"} envelope.
type OllamaErrorResponse struct {
	Error string `json:"error"`
}

// OllamaTagsResponse is the /api/tags model listing.
type OllamaTagsResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

type OllamaModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
}
