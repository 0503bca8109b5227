package translate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

const defaultAnthropicMaxTokens = 4096

// thinkingBudgetTokens is the budget assigned when an OpenAI
// reasoning_effort request is mapped onto Anthropic extended thinking.
const thinkingBudgetTokens = 1024

// OpenAIToAnthropic converts a chat completion request into an Anthropic
// messages request. Consecutive leading system and developer messages
// become the top-level system prompt; a system message anywhere else is a
// hard error because Anthropic cannot express it.
func OpenAIToAnthropic(req *protocol.OpenAIChatRequest) (*protocol.AnthropicRequest, error) {
	out := &protocol.AnthropicRequest{
		Model:  req.Model,
		Stream: req.Stream,
		TopP:   req.TopP,
	}

	out.MaxTokens = defaultAnthropicMaxTokens
	if req.MaxCompletionTokens != nil {
		out.MaxTokens = *req.MaxCompletionTokens
	} else if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	// OpenAI temperature spans [0,2], Anthropic [0,1].
	if req.Temperature != nil {
		out.Temperature = ptr(*req.Temperature / 2)
	}

	if req.Stop != nil {
		out.StopSequences = req.Stop.Values
	}
	if req.ReasoningEffort != "" {
		out.Thinking = &protocol.AnthropicThinking{Type: "enabled", BudgetTokens: thinkingBudgetTokens}
	}
	if req.User != "" {
		out.Metadata = &protocol.AnthropicMetadata{UserID: req.User}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, protocol.AnthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	// Deprecated functions are folded into tools.
	for _, f := range req.Functions {
		out.Tools = append(out.Tools, protocol.AnthropicTool{
			Name:        f.Name,
			Description: f.Description,
			InputSchema: f.Parameters,
		})
	}

	if req.ToolChoice != nil {
		choice, err := anthropicToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	i := 0
	var system []string
	for ; i < len(req.Messages); i++ {
		if !protocol.FilterSystem(req.Messages[i].Role) {
			break
		}
		system = append(system, protocol.MessageText(&req.Messages[i]))
	}
	if len(system) > 0 {
		out.System = &protocol.AnthropicSystem{Text: ptr(strings.Join(system, "\n"))}
	}

	for ; i < len(req.Messages); i++ {
		m := &req.Messages[i]
		switch m.Role {
		case protocol.RoleSystem, protocol.RoleDeveloper:
			return nil, unsupported("system message at position %d: anthropic only accepts a leading system prompt", i)

		case protocol.RoleUser:
			content, err := anthropicUserContent(m)
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, protocol.AnthropicMessage{Role: protocol.RoleUser, Content: content})

		case protocol.RoleAssistant:
			content, err := anthropicAssistantContent(m)
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, protocol.AnthropicMessage{Role: protocol.RoleAssistant, Content: content})

		case protocol.RoleTool:
			// Tool results ride in user messages on the Anthropic side.
			result, _ := json.Marshal(protocol.MessageText(m))
			out.Messages = append(out.Messages, protocol.AnthropicMessage{
				Role: protocol.RoleUser,
				Content: protocol.AnthropicMessageContent{Blocks: []protocol.AnthropicContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   result,
				}}},
			})

		default:
			return nil, unsupported("message role %q", m.Role)
		}
	}

	return out, nil
}

func anthropicToolChoice(choice *protocol.OpenAIToolChoice) (*protocol.AnthropicToolChoice, error) {
	if choice.Function != "" {
		return &protocol.AnthropicToolChoice{Type: "tool", Name: choice.Function}, nil
	}
	switch choice.Value {
	case "none":
		return &protocol.AnthropicToolChoice{Type: "none"}, nil
	case "auto", "":
		return &protocol.AnthropicToolChoice{Type: "auto"}, nil
	case "required":
		return &protocol.AnthropicToolChoice{Type: "any"}, nil
	default:
		return nil, unsupported("tool_choice %q", choice.Value)
	}
}

func anthropicUserContent(m *protocol.OpenAIMessage) (protocol.AnthropicMessageContent, error) {
	if m.Content.Parts == nil {
		text := ""
		if m.Content.Text != nil {
			text = *m.Content.Text
		}
		return protocol.AnthropicMessageContent{Text: &text}, nil
	}

	blocks := make([]protocol.AnthropicContent, 0, len(m.Content.Parts))
	for _, part := range m.Content.Parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, protocol.AnthropicContent{Type: "text", Text: part.Text})
		case "image_url":
			if part.ImageURL == nil {
				return protocol.AnthropicMessageContent{}, unsupported("image_url part without a url")
			}
			source, err := anthropicImageSource(part.ImageURL.URL)
			if err != nil {
				return protocol.AnthropicMessageContent{}, err
			}
			blocks = append(blocks, protocol.AnthropicContent{Type: "image", Source: source})
		default:
			return protocol.AnthropicMessageContent{}, unsupported("content part type %q", part.Type)
		}
	}
	return protocol.AnthropicMessageContent{Blocks: blocks}, nil
}

func anthropicAssistantContent(m *protocol.OpenAIMessage) (protocol.AnthropicMessageContent, error) {
	var blocks []protocol.AnthropicContent

	if text := protocol.MessageText(m); text != "" {
		blocks = append(blocks, protocol.AnthropicContent{Type: "text", Text: text})
	}

	calls := m.ToolCalls
	if m.FunctionCall != nil {
		calls = append(calls, protocol.OpenAIToolCall{
			ID:       newToolCallID(),
			Type:     "function",
			Function: *m.FunctionCall,
		})
	}
	for _, call := range calls {
		input := json.RawMessage(`{}`)
		if call.Function.Arguments != "" {
			if !json.Valid([]byte(call.Function.Arguments)) {
				return protocol.AnthropicMessageContent{}, unsupported("tool call %q carries malformed arguments", call.Function.Name)
			}
			input = json.RawMessage(call.Function.Arguments)
		}
		id := call.ID
		if id == "" {
			id = newToolCallID()
		}
		blocks = append(blocks, protocol.AnthropicContent{
			Type:  "tool_use",
			ID:    id,
			Name:  call.Function.Name,
			Input: input,
		})
	}

	if blocks == nil {
		text := ""
		return protocol.AnthropicMessageContent{Text: &text}, nil
	}
	return protocol.AnthropicMessageContent{Blocks: blocks}, nil
}

// anthropicImageSource turns an OpenAI image URL into an Anthropic image
// source. Data URLs become inline base64 sources, everything else stays a
// URL source.
func anthropicImageSource(url string) (*protocol.AnthropicImageSource, error) {
	if !strings.HasPrefix(url, "data:") {
		return &protocol.AnthropicImageSource{Type: "url", URL: url}, nil
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !ok {
		return nil, unsupported("malformed data url in image part")
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	return &protocol.AnthropicImageSource{Type: "base64", MediaType: mediaType, Data: data}, nil
}

// AnthropicToOpenAI converts an Anthropic messages request into the
// canonical chat completion shape.
func AnthropicToOpenAI(req *protocol.AnthropicRequest) (*protocol.OpenAIChatRequest, error) {
	out := &protocol.OpenAIChatRequest{
		Model:  req.Model,
		Stream: req.Stream,
		TopP:   req.TopP,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = ptr(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := *req.Temperature * 2
		if t > 2 {
			t = 2
		}
		out.Temperature = ptr(t)
	}
	if len(req.StopSequences) > 0 {
		out.Stop = &protocol.OpenAIStop{Values: req.StopSequences}
	}
	if req.Metadata != nil {
		out.User = req.Metadata.UserID
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, protocol.OpenAITool{
			Type: "function",
			Function: protocol.OpenAIFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if req.ToolChoice != nil {
		choice, err := openAIToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
		if req.ToolChoice.DisableParallelToolUse != nil {
			out.ParallelToolCalls = ptr(!*req.ToolChoice.DisableParallelToolUse)
		}
	}

	for _, text := range req.GetSystemPrompt() {
		out.Messages = append(out.Messages, protocol.OpenAIMessage{
			Role:    protocol.RoleSystem,
			Content: protocol.StringContent(text),
		})
	}

	for i := range req.Messages {
		converted, err := openAIMessages(&req.Messages[i])
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, converted...)
	}

	return out, nil
}

func openAIToolChoice(choice *protocol.AnthropicToolChoice) (*protocol.OpenAIToolChoice, error) {
	switch choice.Type {
	case "tool":
		return &protocol.OpenAIToolChoice{Function: choice.Name}, nil
	case "auto":
		return &protocol.OpenAIToolChoice{Value: "auto"}, nil
	case "any":
		return &protocol.OpenAIToolChoice{Value: "required"}, nil
	case "none":
		return &protocol.OpenAIToolChoice{Value: "none"}, nil
	default:
		return nil, unsupported("tool_choice type %q", choice.Type)
	}
}

// openAIMessages expands one Anthropic message. Tool results split into
// separate tool-role messages because that is the only shape OpenAI
// accepts them in.
func openAIMessages(m *protocol.AnthropicMessage) ([]protocol.OpenAIMessage, error) {
	if m.Content.Blocks == nil {
		text := ""
		if m.Content.Text != nil {
			text = *m.Content.Text
		}
		return []protocol.OpenAIMessage{{Role: m.Role, Content: protocol.StringContent(text)}}, nil
	}

	var (
		out       []protocol.OpenAIMessage
		parts     []protocol.OpenAIContentPart
		toolCalls []protocol.OpenAIToolCall
	)
	for i := range m.Content.Blocks {
		block := &m.Content.Blocks[i]
		switch block.Type {
		case "text":
			parts = append(parts, protocol.OpenAIContentPart{Type: "text", Text: block.Text})

		case "image":
			url, err := openAIImageURL(block.Source)
			if err != nil {
				return nil, err
			}
			parts = append(parts, protocol.OpenAIContentPart{Type: "image_url", ImageURL: &protocol.OpenAIImageURL{URL: url}})

		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			toolCalls = append(toolCalls, protocol.OpenAIToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: protocol.OpenAIFunctionCall{Name: block.Name, Arguments: args},
			})

		case "tool_result":
			out = append(out, protocol.OpenAIMessage{
				Role:       protocol.RoleTool,
				ToolCallID: block.ToolUseID,
				Content:    protocol.StringContent(flattenToolResult(block.Content)),
			})

		case "thinking", "redacted_thinking":
			// OpenAI has no channel for prior-turn thinking; it never
			// reaches the model either way.

		default:
			return nil, unsupported("content block type %q", block.Type)
		}
	}

	if len(parts) > 0 || len(toolCalls) > 0 {
		msg := protocol.OpenAIMessage{Role: m.Role, ToolCalls: toolCalls}
		if len(parts) == 1 && parts[0].Type == "text" {
			msg.Content = protocol.StringContent(parts[0].Text)
		} else if len(parts) > 0 {
			msg.Content = protocol.OpenAIMessageContent{Parts: parts}
		}
		out = append(out, msg)
	}
	return out, nil
}

func openAIImageURL(source *protocol.AnthropicImageSource) (string, error) {
	if source == nil {
		return "", unsupported("image block without a source")
	}
	switch source.Type {
	case "url":
		return source.URL, nil
	case "base64":
		return "data:" + source.MediaType + ";base64," + source.Data, nil
	default:
		return "", unsupported("image source type %q", source.Type)
	}
}

// flattenToolResult extracts text from a tool_result content payload,
// which arrives either as a JSON string or as a list of text blocks.
func flattenToolResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []protocol.AnthropicContent
	if json.Unmarshal(raw, &blocks) == nil {
		var parts []string
		for i := range blocks {
			if text, ok := blocks[i].GetText(); ok && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

// ---------------------------------------------------------------------------
// Non-streaming responses
// ---------------------------------------------------------------------------

// AnthropicResponseToOpenAI converts a complete messages response into a
// chat completion response.
func AnthropicResponseToOpenAI(resp *protocol.AnthropicResponse) *protocol.OpenAIChatResponse {
	msg := protocol.OpenAIMessage{Role: protocol.RoleAssistant}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			idx := len(msg.ToolCalls)
			msg.ToolCalls = append(msg.ToolCalls, protocol.OpenAIToolCall{
				Index:    ptr(idx),
				ID:       block.ID,
				Type:     "function",
				Function: protocol.OpenAIFunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}
	msg.Content = protocol.StringContent(text.String())

	finish := FinishReasonFromAnthropic(resp.StopReason)
	out := &protocol.OpenAIChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []protocol.OpenAIChoice{{Index: 0, Message: msg, FinishReason: &finish}},
	}
	if resp.Usage != nil {
		out.Usage = &protocol.OpenAIUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out
}

// OpenAIResponseToAnthropic converts a chat completion response into a
// messages response.
func OpenAIResponseToAnthropic(resp *protocol.OpenAIChatResponse) *protocol.AnthropicResponse {
	out := &protocol.AnthropicResponse{
		ID:      resp.ID,
		Type:    "message",
		Role:    protocol.RoleAssistant,
		Model:   resp.Model,
		Content: []protocol.AnthropicContent{},
	}
	if out.ID == "" {
		out.ID = newMessageID()
	}

	if len(resp.Choices) > 0 {
		choice := &resp.Choices[0]
		if text := protocol.MessageText(&choice.Message); text != "" {
			out.Content = append(out.Content, protocol.AnthropicContent{Type: "text", Text: text})
		}
		for _, call := range choice.Message.ToolCalls {
			input := json.RawMessage(`{}`)
			if call.Function.Arguments != "" && json.Valid([]byte(call.Function.Arguments)) {
				input = json.RawMessage(call.Function.Arguments)
			}
			id := call.ID
			if id == "" {
				id = newToolCallID()
			}
			out.Content = append(out.Content, protocol.AnthropicContent{
				Type:  "tool_use",
				ID:    id,
				Name:  call.Function.Name,
				Input: input,
			})
		}
		if choice.FinishReason != nil {
			out.StopReason = ptr(StopReasonFromOpenAI(*choice.FinishReason))
		}
	}

	if resp.Usage != nil {
		out.Usage = &protocol.AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// AnthropicStreamToOpenAI converts a messages event stream into chat
// completion chunks. Block indices are tracked so interleaved text and
// tool-use blocks land on stable OpenAI tool indices; usage accumulates
// across message_start and message_delta and rides out on the final chunk.
func AnthropicStreamToOpenAI(ctx context.Context, in <-chan protocol.StreamItem[protocol.AnthropicStreamEvent]) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	out := make(chan protocol.StreamItem[protocol.OpenAIStreamChunk], streamBuffer)

	go func() {
		defer close(out)

		var (
			id         = newChatID()
			model      string
			created    = time.Now().Unix()
			usage      protocol.OpenAIUsage
			stopReason *string
			nextTool   int
			blockTool  = make(map[int]int)
			blockKind  = make(map[int]string)
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
			ev := item.Value

			switch ev.Type {
			case protocol.AnthropicEventMessageStart:
				if ev.Message != nil {
					if ev.Message.ID != "" {
						id = ev.Message.ID
					}
					model = ev.Message.Model
					if ev.Message.Usage != nil {
						usage.PromptTokens = ev.Message.Usage.InputTokens
					}
				}
				if !emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{Role: protocol.RoleAssistant}}},
				}) {
					return
				}

			case protocol.AnthropicEventContentBlockStart:
				if ev.Index == nil || ev.ContentBlock == nil {
					continue
				}
				blockKind[*ev.Index] = ev.ContentBlock.Type
				if ev.ContentBlock.Type != "tool_use" {
					continue
				}
				toolIdx := nextTool
				nextTool++
				blockTool[*ev.Index] = toolIdx
				if !emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{
						ToolCalls: []protocol.OpenAIToolCall{{
							Index:    ptr(toolIdx),
							ID:       ev.ContentBlock.ID,
							Type:     "function",
							Function: protocol.OpenAIFunctionCall{Name: ev.ContentBlock.Name},
						}},
					}}},
				}) {
					return
				}

			case protocol.AnthropicEventContentBlockDelta:
				if ev.Delta == nil {
					continue
				}
				switch ev.Delta.Type {
				case protocol.AnthropicDeltaText:
					if !emit(&protocol.OpenAIStreamChunk{
						Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{Content: ptr(ev.Delta.Text)}}},
					}) {
						return
					}
				case protocol.AnthropicDeltaInputJSON:
					toolIdx := 0
					if ev.Index != nil {
						toolIdx = blockTool[*ev.Index]
					}
					if !emit(&protocol.OpenAIStreamChunk{
						Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{
							ToolCalls: []protocol.OpenAIToolCall{{
								Index:    ptr(toolIdx),
								Function: protocol.OpenAIFunctionCall{Arguments: ev.Delta.PartialJSON},
							}},
						}}},
					}) {
						return
					}
				case protocol.AnthropicDeltaThinking, protocol.AnthropicDeltaSignature:
					// No OpenAI channel for thinking; dropped from the
					// converted stream.
				}

			case protocol.AnthropicEventMessageDelta:
				if ev.Delta != nil && ev.Delta.StopReason != nil {
					stopReason = ev.Delta.StopReason
				}
				if ev.Usage != nil {
					usage.CompletionTokens = ev.Usage.OutputTokens
				}

			case protocol.AnthropicEventMessageStop:
				finish := FinishReasonFromAnthropic(stopReason)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				emit(&protocol.OpenAIStreamChunk{
					Choices: []protocol.OpenAIStreamChoice{{Index: 0, Delta: protocol.OpenAIDelta{}, FinishReason: &finish}},
					Usage:   &usage,
				})
				return

			case protocol.AnthropicEventError:
				chunk := &protocol.OpenAIStreamChunk{Choices: []protocol.OpenAIStreamChoice{}}
				if ev.Error != nil {
					chunk.Error = &protocol.OpenAIError{Message: ev.Error.Message, Type: ev.Error.Type}
				}
				emit(chunk)
				return

			case protocol.AnthropicEventPing, protocol.AnthropicEventContentBlockStop:
				// Nothing to emit.
			}
		}
	}()

	return out
}

// OpenAIStreamToAnthropic converts chat completion chunks into a messages
// event stream for Anthropic-speaking clients. Content blocks open lazily
// on first text or tool delta and all close when the finish chunk arrives;
// a stream that ends without one still closes the message so the client's
// parser is never left mid-message.
func OpenAIStreamToAnthropic(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) <-chan protocol.StreamItem[protocol.AnthropicStreamEvent] {
	out := make(chan protocol.StreamItem[protocol.AnthropicStreamEvent], streamBuffer)

	go func() {
		defer close(out)

		var (
			started    bool
			finished   bool
			messageID  = newMessageID()
			model      string
			textIndex  = -1
			nextIndex  int
			toolBlocks = make(map[int]int)
			openOrder  []int
			usage      protocol.AnthropicUsage
		)

		emit := func(ev *protocol.AnthropicStreamEvent) bool {
			return send(ctx, out, protocol.StreamItem[protocol.AnthropicStreamEvent]{Value: ev})
		}
		start := func() bool {
			if started {
				return true
			}
			started = true
			return emit(&protocol.AnthropicStreamEvent{
				Type: protocol.AnthropicEventMessageStart,
				Message: &protocol.AnthropicResponse{
					ID:      messageID,
					Type:    "message",
					Role:    protocol.RoleAssistant,
					Model:   model,
					Content: []protocol.AnthropicContent{},
					Usage:   &protocol.AnthropicUsage{},
				},
			})
		}
		finish := func(finishReason string) {
			finished = true
			for _, idx := range openOrder {
				if !emit(&protocol.AnthropicStreamEvent{Type: protocol.AnthropicEventContentBlockStop, Index: ptr(idx)}) {
					return
				}
			}
			stop := StopReasonFromOpenAI(finishReason)
			if !emit(&protocol.AnthropicStreamEvent{
				Type:  protocol.AnthropicEventMessageDelta,
				Delta: &protocol.AnthropicDelta{StopReason: &stop},
				Usage: &usage,
			}) {
				return
			}
			emit(&protocol.AnthropicStreamEvent{Type: protocol.AnthropicEventMessageStop})
		}

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.AnthropicStreamEvent]{Err: item.Err})
				return
			}
			chunk := item.Value

			if chunk.Error != nil {
				emit(&protocol.AnthropicStreamEvent{
					Type:  protocol.AnthropicEventError,
					Error: &protocol.AnthropicError{Type: errorType(chunk.Error.Type), Message: chunk.Error.Message},
				})
				return
			}

			if model == "" {
				model = chunk.Model
			}
			if chunk.ID != "" && !started {
				messageID = chunk.ID
			}
			if chunk.Usage != nil {
				usage.InputTokens = chunk.Usage.PromptTokens
				usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			if !start() {
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := &chunk.Choices[0]

			if text, ok := choice.Delta.GetText(); ok && text != "" {
				if textIndex == -1 {
					textIndex = nextIndex
					nextIndex++
					openOrder = append(openOrder, textIndex)
					if !emit(&protocol.AnthropicStreamEvent{
						Type:         protocol.AnthropicEventContentBlockStart,
						Index:        ptr(textIndex),
						ContentBlock: &protocol.AnthropicContent{Type: "text"},
					}) {
						return
					}
				}
				if !emit(&protocol.AnthropicStreamEvent{
					Type:  protocol.AnthropicEventContentBlockDelta,
					Index: ptr(textIndex),
					Delta: &protocol.AnthropicDelta{Type: protocol.AnthropicDeltaText, Text: text},
				}) {
					return
				}
			}

			for _, call := range choice.Delta.ToolCalls {
				toolIdx := 0
				if call.Index != nil {
					toolIdx = *call.Index
				}
				blockIdx, ok := toolBlocks[toolIdx]
				if !ok {
					blockIdx = nextIndex
					nextIndex++
					toolBlocks[toolIdx] = blockIdx
					openOrder = append(openOrder, blockIdx)
					callID := call.ID
					if callID == "" {
						callID = newToolCallID()
					}
					if !emit(&protocol.AnthropicStreamEvent{
						Type:  protocol.AnthropicEventContentBlockStart,
						Index: ptr(blockIdx),
						ContentBlock: &protocol.AnthropicContent{
							Type:  "tool_use",
							ID:    callID,
							Name:  call.Function.Name,
							Input: json.RawMessage(`{}`),
						},
					}) {
						return
					}
				}
				if call.Function.Arguments != "" {
					if !emit(&protocol.AnthropicStreamEvent{
						Type:  protocol.AnthropicEventContentBlockDelta,
						Index: ptr(blockIdx),
						Delta: &protocol.AnthropicDelta{Type: protocol.AnthropicDeltaInputJSON, PartialJSON: call.Function.Arguments},
					}) {
						return
					}
				}
			}

			if choice.FinishReason != nil {
				finish(*choice.FinishReason)
				return
			}
		}

		// Upstream closed without a finish chunk. Close the message anyway.
		if started && !finished {
			finish(FinishStop)
		}
	}()

	return out
}

func errorType(t string) string {
	if t == "" {
		return "api_error"
	}
	return t
}

func send[T any](ctx context.Context, ch chan<- protocol.StreamItem[T], item protocol.StreamItem[T]) bool {
	select {
	case ch <- item:
		return true
	case <-ctx.Done():
		return false
	}
}
