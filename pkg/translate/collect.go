package translate

import (
	"sort"
	"strings"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// choiceState accumulates one choice across chunks. Tool calls arrive as
// indexed fragments: the first fragment carries id, type and function
// name, the rest append argument text.
type choiceState struct {
	role         string
	content      strings.Builder
	sawContent   bool
	finishReason *string
	callOrder    []int
	calls        map[int]*protocol.OpenAIToolCall
}

// CollectOpenAIStream folds a chunk stream into a single chat response
// for clients that asked for one body. The stream is drained fully; a
// decode or upstream error aborts the fold and is returned instead.
func CollectOpenAIStream(in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) (*protocol.OpenAIChatResponse, error) {
	resp := &protocol.OpenAIChatResponse{Object: "chat.completion"}
	states := make(map[int]*choiceState)

	for item := range in {
		if item.Err != nil {
			return nil, item.Err
		}
		chunk := item.Value
		if chunk == nil {
			continue
		}

		if resp.ID == "" {
			resp.ID = chunk.ID
		}
		if resp.Created == 0 {
			resp.Created = chunk.Created
		}
		if resp.Model == "" {
			resp.Model = chunk.Model
		}
		if resp.SystemFingerprint == "" {
			resp.SystemFingerprint = chunk.SystemFingerprint
		}
		if chunk.Usage != nil {
			resp.Usage = chunk.Usage
		}
		if chunk.Error != nil {
			resp.Error = chunk.Error
		}

		for _, choice := range chunk.Choices {
			state := states[choice.Index]
			if state == nil {
				state = &choiceState{calls: make(map[int]*protocol.OpenAIToolCall)}
				states[choice.Index] = state
			}

			if choice.Delta.Role != "" {
				state.role = choice.Delta.Role
			}
			if choice.Delta.Content != nil {
				state.sawContent = true
				state.content.WriteString(*choice.Delta.Content)
			}
			if choice.FinishReason != nil {
				state.finishReason = choice.FinishReason
			}
			for i := range choice.Delta.ToolCalls {
				mergeToolCall(state, &choice.Delta.ToolCalls[i], i)
			}
		}
	}

	indexes := make([]int, 0, len(states))
	for idx := range states {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	resp.Choices = make([]protocol.OpenAIChoice, 0, len(states))
	for _, idx := range indexes {
		state := states[idx]

		msg := protocol.OpenAIMessage{Role: state.role}
		if msg.Role == "" {
			msg.Role = protocol.RoleAssistant
		}
		for _, slot := range state.callOrder {
			call := *state.calls[slot]
			call.Index = nil
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		// Tool-call-only turns keep a null content like the upstream
		// non-streaming shape.
		if state.sawContent || len(msg.ToolCalls) == 0 {
			msg.Content = protocol.StringContent(state.content.String())
		}

		resp.Choices = append(resp.Choices, protocol.OpenAIChoice{
			Index:        idx,
			Message:      msg,
			FinishReason: state.finishReason,
		})
	}

	return resp, nil
}

func mergeToolCall(state *choiceState, frag *protocol.OpenAIToolCall, position int) {
	slot := position
	if frag.Index != nil {
		slot = *frag.Index
	}

	call := state.calls[slot]
	if call == nil {
		call = &protocol.OpenAIToolCall{}
		state.calls[slot] = call
		state.callOrder = append(state.callOrder, slot)
	}

	if frag.ID != "" {
		call.ID = frag.ID
	}
	if frag.Type != "" {
		call.Type = frag.Type
	}
	if frag.Function.Name != "" {
		call.Function.Name = frag.Function.Name
	}
	call.Function.Arguments += frag.Function.Arguments
}
