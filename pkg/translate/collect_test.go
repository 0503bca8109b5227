package translate

import (
	"errors"
	"testing"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

func textChunk(id string, index int, text string) protocol.StreamItem[protocol.OpenAIStreamChunk] {
	return item(&protocol.OpenAIStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Model:   "gpt-4o-mini",
		Created: 1700000100,
		Choices: []protocol.OpenAIStreamChoice{{
			Index: index,
			Delta: protocol.OpenAIDelta{Content: ptr(text)},
		}},
	})
}

func finishChunk(id string, index int, reason string, usage *protocol.OpenAIUsage) protocol.StreamItem[protocol.OpenAIStreamChunk] {
	return item(&protocol.OpenAIStreamChunk{
		ID:    id,
		Usage: usage,
		Choices: []protocol.OpenAIStreamChoice{{
			Index:        index,
			Delta:        protocol.OpenAIDelta{},
			FinishReason: ptr(reason),
		}},
	})
}

func TestCollectOpenAIStreamText(t *testing.T) {
	roleChunk := item(&protocol.OpenAIStreamChunk{
		ID: "chatcmpl-9",
		Choices: []protocol.OpenAIStreamChoice{{
			Delta: protocol.OpenAIDelta{Role: "assistant"},
		}},
	})

	resp, err := CollectOpenAIStream(feed(
		roleChunk,
		textChunk("chatcmpl-9", 0, "Hello"),
		textChunk("chatcmpl-9", 0, ", world"),
		finishChunk("chatcmpl-9", 0, "stop", &protocol.OpenAIUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}),
	))
	if err != nil {
		t.Fatalf("CollectOpenAIStream: %v", err)
	}

	if resp.ID != "chatcmpl-9" || resp.Object != "chat.completion" {
		t.Errorf("envelope = %s/%s", resp.ID, resp.Object)
	}
	if resp.Model != "gpt-4o-mini" || resp.Created != 1700000100 {
		t.Errorf("metadata not taken from first carrying chunk: %s/%d", resp.Model, resp.Created)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("Choices = %d, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Role != "assistant" {
		t.Errorf("Role = %q", choice.Message.Role)
	}
	if text := protocol.MessageText(&choice.Message); text != "Hello, world" {
		t.Errorf("text = %q", text)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "stop" {
		t.Errorf("FinishReason = %v", choice.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 6 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestCollectOpenAIStreamMergesToolCallFragments(t *testing.T) {
	first := item(&protocol.OpenAIStreamChunk{
		ID: "chatcmpl-t",
		Choices: []protocol.OpenAIStreamChoice{{
			Delta: protocol.OpenAIDelta{
				Role: "assistant",
				ToolCalls: []protocol.OpenAIToolCall{{
					Index:    ptr(0),
					ID:       "call_1",
					Type:     "function",
					Function: protocol.OpenAIFunctionCall{Name: "lookup", Arguments: `{"pkg":`},
				}},
			},
		}},
	})
	second := item(&protocol.OpenAIStreamChunk{
		Choices: []protocol.OpenAIStreamChoice{{
			Delta: protocol.OpenAIDelta{
				ToolCalls: []protocol.OpenAIToolCall{{
					Index:    ptr(0),
					Function: protocol.OpenAIFunctionCall{Arguments: `"left-pad"}`},
				}},
			},
		}},
	})

	resp, err := CollectOpenAIStream(feed(
		first,
		second,
		finishChunk("chatcmpl-t", 0, "tool_calls", nil),
	))
	if err != nil {
		t.Fatalf("CollectOpenAIStream: %v", err)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "lookup" {
		t.Errorf("call identity lost: %+v", call)
	}
	if call.Function.Arguments != `{"pkg":"left-pad"}` {
		t.Errorf("arguments not merged: %q", call.Function.Arguments)
	}
	// A tool-call-only message keeps a null content.
	if msg.Content.Text != nil || msg.Content.Parts != nil {
		t.Errorf("Content should stay null, got %+v", msg.Content)
	}
}

func TestCollectOpenAIStreamOrdersChoices(t *testing.T) {
	resp, err := CollectOpenAIStream(feed(
		textChunk("chatcmpl-m", 1, "second"),
		textChunk("chatcmpl-m", 0, "first"),
	))
	if err != nil {
		t.Fatalf("CollectOpenAIStream: %v", err)
	}
	if len(resp.Choices) != 2 {
		t.Fatalf("Choices = %d, want 2", len(resp.Choices))
	}
	if resp.Choices[0].Index != 0 || protocol.MessageText(&resp.Choices[0].Message) != "first" {
		t.Errorf("choice 0 = %+v", resp.Choices[0])
	}
	if resp.Choices[1].Index != 1 || protocol.MessageText(&resp.Choices[1].Message) != "second" {
		t.Errorf("choice 1 = %+v", resp.Choices[1])
	}
}

func TestCollectOpenAIStreamPropagatesErrors(t *testing.T) {
	boom := errors.New("upstream reset")
	_, err := CollectOpenAIStream(feed(
		textChunk("chatcmpl-e", 0, "partial"),
		protocol.StreamItem[protocol.OpenAIStreamChunk]{Err: boom},
	))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the stream error", err)
	}
}

func TestCollectOpenAIStreamEmptyDefaultsRole(t *testing.T) {
	resp, err := CollectOpenAIStream(feed(
		textChunk("chatcmpl-r", 0, "hi"),
	))
	if err != nil {
		t.Fatalf("CollectOpenAIStream: %v", err)
	}
	if resp.Choices[0].Message.Role != "assistant" {
		t.Errorf("Role = %q, want assistant fallback", resp.Choices[0].Message.Role)
	}
}
