package translate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// OpenAIToOllamaChat converts a chat completion request into an Ollama
// chat request. Sampling parameters move into the options map; the stream
// flag is always written out because Ollama defaults to streaming when it
// is absent.
func OpenAIToOllamaChat(req *protocol.OpenAIChatRequest) (*protocol.OllamaChatRequest, error) {
	out := &protocol.OllamaChatRequest{Model: req.Model}
	out.SetStream(req.Stream)

	for i := range req.Messages {
		m := &req.Messages[i]
		msg := protocol.OllamaMessage{Role: m.Role}

		if m.Content.Parts == nil {
			if m.Content.Text != nil {
				msg.Content = *m.Content.Text
			}
		} else {
			var text strings.Builder
			for _, part := range m.Content.Parts {
				switch part.Type {
				case "text":
					text.WriteString(part.Text)
				case "image_url":
					if part.ImageURL == nil {
						return nil, unsupported("image_url part without a url")
					}
					data, err := ollamaImageData(part.ImageURL.URL)
					if err != nil {
						return nil, err
					}
					msg.Images = append(msg.Images, data)
				default:
					return nil, unsupported("content part type %q", part.Type)
				}
			}
			msg.Content = text.String()
		}

		calls := m.ToolCalls
		if m.FunctionCall != nil {
			calls = append(calls, protocol.OpenAIToolCall{Function: *m.FunctionCall})
		}
		for _, call := range calls {
			args := map[string]interface{}{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					return nil, unsupported("tool call %q carries malformed arguments", call.Function.Name)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, protocol.OllamaToolCall{
				Function: protocol.OllamaFunctionCall{Name: call.Function.Name, Arguments: args},
			})
		}

		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, protocol.OllamaTool{
			Type: "function",
			Function: protocol.OllamaToolFunction{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_object":
			out.Format = json.RawMessage(`"json"`)
		case "json_schema":
			if req.ResponseFormat.JSONSchema != nil && req.ResponseFormat.JSONSchema.Schema != nil {
				schema, err := json.Marshal(req.ResponseFormat.JSONSchema.Schema)
				if err != nil {
					return nil, err
				}
				out.Format = schema
			}
		}
	}

	out.Options = ollamaOptions(req)
	return out, nil
}

// ollamaImageData extracts the base64 payload of a data URL. Ollama only
// accepts inline images, so remote URLs cannot be expressed.
func ollamaImageData(url string) (string, error) {
	if !strings.HasPrefix(url, "data:") {
		return "", unsupported("ollama requires inline image data, got a remote url")
	}
	_, data, ok := strings.Cut(url, ",")
	if !ok {
		return "", unsupported("malformed data url in image part")
	}
	return data, nil
}

func ollamaOptions(req *protocol.OpenAIChatRequest) map[string]interface{} {
	opts := map[string]interface{}{}
	if req.MaxCompletionTokens != nil {
		opts["num_predict"] = *req.MaxCompletionTokens
	} else if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.Seed != nil {
		opts["seed"] = *req.Seed
	}
	if req.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		opts["presence_penalty"] = *req.PresencePenalty
	}
	// Ollama expects stop as a list even for a single sequence.
	if req.Stop != nil && len(req.Stop.Values) > 0 {
		opts["stop"] = req.Stop.Values
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// OllamaChatToOpenAI converts an Ollama chat request into the canonical
// chat completion shape.
func OllamaChatToOpenAI(req *protocol.OllamaChatRequest) (*protocol.OpenAIChatRequest, error) {
	out := &protocol.OpenAIChatRequest{
		Model:  req.Model,
		Stream: req.GetStream(),
	}

	for i := range req.Messages {
		m := &req.Messages[i]
		if len(m.Images) > 0 {
			// Bare base64 has no media type, so an image_url part cannot
			// be reconstructed from it.
			return nil, unsupported("ollama inline images cannot be converted")
		}
		msg := protocol.OpenAIMessage{Role: m.Role, Content: protocol.StringContent(m.Content)}
		for _, call := range m.ToolCalls {
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				return nil, err
			}
			msg.ToolCalls = append(msg.ToolCalls, protocol.OpenAIToolCall{
				ID:       newToolCallID(),
				Type:     "function",
				Function: protocol.OpenAIFunctionCall{Name: call.Function.Name, Arguments: string(args)},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, protocol.OpenAITool{
			Type: "function",
			Function: protocol.OpenAIFunctionDef{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}

	if len(req.Format) > 0 {
		if string(req.Format) == `"json"` {
			out.ResponseFormat = &protocol.OpenAIResponseFormat{Type: "json_object"}
		} else {
			var schema map[string]interface{}
			if err := json.Unmarshal(req.Format, &schema); err == nil {
				out.ResponseFormat = &protocol.OpenAIResponseFormat{
					Type:       "json_schema",
					JSONSchema: &protocol.OpenAIJSONSchema{Name: "format", Schema: schema},
				}
			}
		}
	}

	applyOllamaOptions(out, req.Options)
	return out, nil
}

func applyOllamaOptions(out *protocol.OpenAIChatRequest, opts map[string]interface{}) {
	if n, ok := intOption(opts, "num_predict"); ok {
		out.MaxTokens = ptr(n)
	}
	if f, ok := floatOption(opts, "temperature"); ok {
		out.Temperature = ptr(f)
	}
	if f, ok := floatOption(opts, "top_p"); ok {
		out.TopP = ptr(f)
	}
	if n, ok := intOption(opts, "seed"); ok {
		out.Seed = ptr(n)
	}
	if f, ok := floatOption(opts, "frequency_penalty"); ok {
		out.FrequencyPenalty = ptr(f)
	}
	if f, ok := floatOption(opts, "presence_penalty"); ok {
		out.PresencePenalty = ptr(f)
	}
	if stops := stringsOption(opts, "stop"); len(stops) > 0 {
		out.Stop = &protocol.OpenAIStop{Values: stops}
	}
}

// Option values arrive as float64 when the request came off the wire and
// as native Go types when built in process; both are accepted.
func floatOption(opts map[string]interface{}, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intOption(opts map[string]interface{}, key string) (int, bool) {
	switch v := opts[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func stringsOption(opts map[string]interface{}, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// CompletionToOllamaGenerate converts a legacy completion request into an
// Ollama generate request, preserving the fill-in-the-middle suffix.
func CompletionToOllamaGenerate(req *protocol.OpenAICompletionRequest) *protocol.OllamaGenerateRequest {
	out := &protocol.OllamaGenerateRequest{
		Model:  req.Model,
		Prompt: req.GetPrompt(""),
		Suffix: req.Suffix,
	}
	out.SetStream(req.Stream)

	opts := map[string]interface{}{}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.Seed != nil {
		opts["seed"] = *req.Seed
	}
	if req.Stop != nil && len(req.Stop.Values) > 0 {
		opts["stop"] = req.Stop.Values
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}

// OllamaGenerateToCompletion converts an Ollama generate request into the
// canonical completion shape.
func OllamaGenerateToCompletion(req *protocol.OllamaGenerateRequest) *protocol.OpenAICompletionRequest {
	out := &protocol.OpenAICompletionRequest{
		Model:  req.Model,
		Prompt: protocol.StringPrompt(req.Prompt),
		Suffix: req.Suffix,
		Stream: req.GetStream(),
	}
	if n, ok := intOption(req.Options, "num_predict"); ok {
		out.MaxTokens = ptr(n)
	}
	if f, ok := floatOption(req.Options, "temperature"); ok {
		out.Temperature = ptr(f)
	}
	if f, ok := floatOption(req.Options, "top_p"); ok {
		out.TopP = ptr(f)
	}
	if n, ok := intOption(req.Options, "seed"); ok {
		out.Seed = ptr(n)
	}
	if stops := stringsOption(req.Options, "stop"); len(stops) > 0 {
		out.Stop = &protocol.OpenAIStop{Values: stops}
	}
	return out
}

// ---------------------------------------------------------------------------
// Non-streaming responses
// ---------------------------------------------------------------------------

// OllamaChatResponseToOpenAI converts a complete Ollama chat response into
// a chat completion response.
func OllamaChatResponseToOpenAI(resp *protocol.OllamaChatResponse) *protocol.OpenAIChatResponse {
	msg := protocol.OpenAIMessage{
		Role:    protocol.RoleAssistant,
		Content: protocol.StringContent(resp.Message.Content),
	}
	for i, call := range resp.Message.ToolCalls {
		args, _ := json.Marshal(call.Function.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, protocol.OpenAIToolCall{
			Index:    ptr(i),
			ID:       newToolCallID(),
			Type:     "function",
			Function: protocol.OpenAIFunctionCall{Name: call.Function.Name, Arguments: string(args)},
		})
	}

	finish := FinishReasonFromOllama(resp.DoneReason, len(resp.Message.ToolCalls) > 0)
	return &protocol.OpenAIChatResponse{
		ID:      newChatID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []protocol.OpenAIChoice{{Index: 0, Message: msg, FinishReason: &finish}},
		Usage: &protocol.OpenAIUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}

// OpenAIResponseToOllamaChat converts a chat completion response into a
// single done Ollama chat line.
func OpenAIResponseToOllamaChat(resp *protocol.OpenAIChatResponse) *protocol.OllamaChatResponse {
	out := &protocol.OllamaChatResponse{
		Model:     resp.Model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   protocol.OllamaMessage{Role: protocol.RoleAssistant},
		Done:      true,
	}
	if len(resp.Choices) > 0 {
		choice := &resp.Choices[0]
		out.Message.Content = protocol.MessageText(&choice.Message)
		for _, call := range choice.Message.ToolCalls {
			args := map[string]interface{}{}
			if call.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
			}
			out.Message.ToolCalls = append(out.Message.ToolCalls, protocol.OllamaToolCall{
				Function: protocol.OllamaFunctionCall{Name: call.Function.Name, Arguments: args},
			})
		}
		if choice.FinishReason != nil {
			out.DoneReason = DoneReasonFromOpenAI(*choice.FinishReason)
		}
	}
	if resp.Usage != nil {
		out.PromptEvalCount = resp.Usage.PromptTokens
		out.EvalCount = resp.Usage.CompletionTokens
	}
	return out
}

// OllamaGenerateResponseToCompletion converts a complete generate response
// into a legacy completion body.
func OllamaGenerateResponseToCompletion(resp *protocol.OllamaGenerateResponse) *protocol.OpenAICompletionChunk {
	finish := FinishReasonFromOllama(resp.DoneReason, false)
	return &protocol.OpenAICompletionChunk{
		ID:      newChatID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []protocol.OpenAICompletionChoice{{Index: 0, Text: resp.Response, FinishReason: &finish}},
		Usage: &protocol.OpenAIUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
}

// CompletionToOllamaGenerateResponse converts a legacy completion body into
// a single done generate line.
func CompletionToOllamaGenerateResponse(resp *protocol.OpenAICompletionChunk) *protocol.OllamaGenerateResponse {
	out := &protocol.OllamaGenerateResponse{
		Model:     resp.Model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Done:      true,
	}
	if len(resp.Choices) > 0 {
		out.Response = resp.Choices[0].Text
		if resp.Choices[0].FinishReason != nil {
			out.DoneReason = DoneReasonFromOpenAI(*resp.Choices[0].FinishReason)
		}
	}
	if resp.Usage != nil {
		out.PromptEvalCount = resp.Usage.PromptTokens
		out.EvalCount = resp.Usage.CompletionTokens
	}
	return out
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// OllamaChatStreamToOpenAI converts an Ollama chat NDJSON stream into chat
// completion chunks. The first emission carries the assistant role; the
// done line becomes the finish chunk with usage from the eval counters.
func OllamaChatStreamToOpenAI(ctx context.Context, in <-chan protocol.StreamItem[protocol.OllamaChatResponse]) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	out := make(chan protocol.StreamItem[protocol.OpenAIStreamChunk], streamBuffer)

	go func() {
		defer close(out)

		var (
			id           = newChatID()
			created      = time.Now().Unix()
			model        string
			sentRole     bool
			sawToolCalls bool
			nextTool     int
		)

		emit := func(chunk *protocol.OpenAIStreamChunk) bool {
			chunk.ID = id
			chunk.Object = "chat.completion.chunk"
			chunk.Created = created
			chunk.Model = model
			return send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Value: chunk})
		}
		role := func() string {
			if sentRole {
				return ""
			}
			sentRole = true
			return protocol.RoleAssistant
		}

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Err: item.Err})
				return
			}
			resp := item.Value

			if resp.Error != "" {
				emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{},
					Error:   &protocol.OpenAIError{Message: resp.Error, Type: "upstream_error"},
				})
				return
			}
			if model == "" {
				model = resp.Model
			}

			if resp.Message.Content != "" || len(resp.Message.ToolCalls) > 0 {
				delta := protocol.OpenAIDelta{Role: role()}
				if resp.Message.Content != "" {
					delta.Content = ptr(resp.Message.Content)
				}
				for _, call := range resp.Message.ToolCalls {
					sawToolCalls = true
					args, _ := json.Marshal(call.Function.Arguments)
					delta.ToolCalls = append(delta.ToolCalls, protocol.OpenAIToolCall{
						Index:    ptr(nextTool),
						ID:       newToolCallID(),
						Type:     "function",
						Function: protocol.OpenAIFunctionCall{Name: call.Function.Name, Arguments: string(args)},
					})
					nextTool++
				}
				if !emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: delta}},
				}) {
					return
				}
			}

			if resp.Done {
				finish := FinishReasonFromOllama(resp.DoneReason, sawToolCalls)
				emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{}, FinishReason: &finish}},
					Usage: &protocol.OpenAIUsage{
						PromptTokens:     resp.PromptEvalCount,
						CompletionTokens: resp.EvalCount,
						TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					},
				})
				return
			}
		}
	}()

	return out
}

// OpenAIStreamToOllamaChat converts chat completion chunks into Ollama
// chat NDJSON lines. Tool-call argument fragments accumulate until the
// finish chunk because Ollama emits complete argument objects only.
func OpenAIStreamToOllamaChat(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) <-chan protocol.StreamItem[protocol.OllamaChatResponse] {
	out := make(chan protocol.StreamItem[protocol.OllamaChatResponse], streamBuffer)

	go func() {
		defer close(out)

		var (
			model string
			usage protocol.OpenAIUsage
			calls []pendingCall
			byIdx = make(map[int]int)
		)

		now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }
		emit := func(resp *protocol.OllamaChatResponse) bool {
			resp.Model = model
			resp.CreatedAt = now()
			return send(ctx, out, protocol.StreamItem[protocol.OllamaChatResponse]{Value: resp})
		}

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OllamaChatResponse]{Err: item.Err})
				return
			}
			chunk := item.Value

			if chunk.Error != nil {
				emit(&protocol.OllamaChatResponse{Error: chunk.Error.Message, Done: true})
				return
			}
			if model == "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := &chunk.Choices[0]

			if text, ok := choice.Delta.GetText(); ok && text != "" {
				if !emit(&protocol.OllamaChatResponse{
					Message: protocol.OllamaMessage{Role: protocol.RoleAssistant, Content: text},
				}) {
					return
				}
			}

			for _, call := range choice.Delta.ToolCalls {
				idx := 0
				if call.Index != nil {
					idx = *call.Index
				}
				pos, ok := byIdx[idx]
				if !ok {
					pos = len(calls)
					byIdx[idx] = pos
					calls = append(calls, pendingCall{})
				}
				if call.Function.Name != "" {
					calls[pos].name = call.Function.Name
				}
				calls[pos].args.WriteString(call.Function.Arguments)
			}

			if choice.FinishReason != nil {
				if len(calls) > 0 {
					msg := protocol.OllamaMessage{Role: protocol.RoleAssistant}
					for i := range calls {
						msg.ToolCalls = append(msg.ToolCalls, calls[i].resolve())
					}
					if !emit(&protocol.OllamaChatResponse{Message: msg}) {
						return
					}
				}
				emit(&protocol.OllamaChatResponse{
					Message:         protocol.OllamaMessage{Role: protocol.RoleAssistant},
					Done:            true,
					DoneReason:      DoneReasonFromOpenAI(*choice.FinishReason),
					PromptEvalCount: usage.PromptTokens,
					EvalCount:       usage.CompletionTokens,
				})
				return
			}
		}
	}()

	return out
}

// pendingCall accumulates streamed tool-call fragments until the finish
// chunk proves the argument JSON is complete.
type pendingCall struct {
	name string
	args strings.Builder
}

func (c *pendingCall) resolve() protocol.OllamaToolCall {
	args := map[string]interface{}{}
	if raw := c.args.String(); raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return protocol.OllamaToolCall{
		Function: protocol.OllamaFunctionCall{Name: c.name, Arguments: args},
	}
}

// OllamaGenerateStreamToOpenAI converts an Ollama generate NDJSON stream
// into chat completion chunks so the output pipeline sees one shape.
func OllamaGenerateStreamToOpenAI(ctx context.Context, in <-chan protocol.StreamItem[protocol.OllamaGenerateResponse]) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	out := make(chan protocol.StreamItem[protocol.OpenAIStreamChunk], streamBuffer)

	go func() {
		defer close(out)

		var (
			id      = newChatID()
			created = time.Now().Unix()
			model   string
		)

		emit := func(chunk *protocol.OpenAIStreamChunk) bool {
			chunk.ID = id
			chunk.Object = "chat.completion.chunk"
			chunk.Created = created
			chunk.Model = model
			return send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Value: chunk})
		}

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Err: item.Err})
				return
			}
			resp := item.Value

			if resp.Error != "" {
				emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{},
					Error:   &protocol.OpenAIError{Message: resp.Error, Type: "upstream_error"},
				})
				return
			}
			if model == "" {
				model = resp.Model
			}

			if resp.Response != "" {
				if !emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{Content: ptr(resp.Response)}}},
				}) {
					return
				}
			}

			if resp.Done {
				finish := FinishReasonFromOllama(resp.DoneReason, false)
				emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{}, FinishReason: &finish}},
					Usage: &protocol.OpenAIUsage{
						PromptTokens:     resp.PromptEvalCount,
						CompletionTokens: resp.EvalCount,
						TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					},
				})
				return
			}
		}
	}()

	return out
}

// OpenAIStreamToOllamaGenerate converts chat completion chunks into Ollama
// generate NDJSON lines.
func OpenAIStreamToOllamaGenerate(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) <-chan protocol.StreamItem[protocol.OllamaGenerateResponse] {
	out := make(chan protocol.StreamItem[protocol.OllamaGenerateResponse], streamBuffer)

	go func() {
		defer close(out)

		var (
			model string
			usage protocol.OpenAIUsage
		)

		now := func() string { return time.Now().UTC().Format(time.RFC3339Nano) }
		emit := func(resp *protocol.OllamaGenerateResponse) bool {
			resp.Model = model
			resp.CreatedAt = now()
			return send(ctx, out, protocol.StreamItem[protocol.OllamaGenerateResponse]{Value: resp})
		}

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OllamaGenerateResponse]{Err: item.Err})
				return
			}
			chunk := item.Value

			if chunk.Error != nil {
				emit(&protocol.OllamaGenerateResponse{Error: chunk.Error.Message, Done: true})
				return
			}
			if model == "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := &chunk.Choices[0]

			if text, ok := choice.Delta.GetText(); ok && text != "" {
				if !emit(&protocol.OllamaGenerateResponse{Response: text}) {
					return
				}
			}

			if choice.FinishReason != nil {
				emit(&protocol.OllamaGenerateResponse{
					Done:            true,
					DoneReason:      DoneReasonFromOpenAI(*choice.FinishReason),
					PromptEvalCount: usage.PromptTokens,
					EvalCount:       usage.CompletionTokens,
				})
				return
			}
		}
	}()

	return out
}
