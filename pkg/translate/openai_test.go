package translate

import (
	"context"
	"strings"
	"testing"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

func TestCompletionToChat(t *testing.T) {
	req := &protocol.OpenAICompletionRequest{
		Model:       "gpt-4o-mini",
		Prompt:      protocol.StringPrompt("complete me"),
		Suffix:      "ignored by chat",
		MaxTokens:   ptr(64),
		Temperature: ptr(0.4),
		Stop:        &protocol.OpenAIStop{Values: []string{"\n\n"}},
		Stream:      true,
		User:        "u2",
	}

	got := CompletionToChat(req)

	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("Messages = %+v, want single user message", got.Messages)
	}
	if text := protocol.MessageText(&got.Messages[0]); text != "complete me" {
		t.Errorf("prompt text = %q", text)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 64 {
		t.Errorf("MaxTokens = %v", got.MaxTokens)
	}
	if !got.Stream || got.User != "u2" {
		t.Errorf("params dropped: stream=%v user=%q", got.Stream, got.User)
	}
	if got.Stop == nil || got.Stop.Values[0] != "\n\n" {
		t.Errorf("Stop = %+v", got.Stop)
	}
}

func TestChatResponseToCompletion(t *testing.T) {
	finish := "stop"
	resp := &protocol.OpenAIChatResponse{
		ID:      "chatcmpl-3",
		Model:   "gpt-4o-mini",
		Created: 1700000000,
		Choices: []protocol.OpenAIChoice{{
			Message:      protocol.OpenAIMessage{Role: "assistant", Content: protocol.StringContent("fmt.Println")},
			FinishReason: &finish,
		}},
		Usage: &protocol.OpenAIUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
	}

	got := ChatResponseToCompletion(resp)

	if got.Object != "text_completion" || got.ID != "chatcmpl-3" || got.Created != 1700000000 {
		t.Errorf("envelope = %+v", got)
	}
	if got.Choices[0].Text != "fmt.Println" {
		t.Errorf("text = %q", got.Choices[0].Text)
	}
	if got.Choices[0].FinishReason == nil || *got.Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %v", got.Choices[0].FinishReason)
	}
	if got.Usage == nil || got.Usage.TotalTokens != 6 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestCompletionResponseToChat(t *testing.T) {
	finish := "length"
	resp := &protocol.OpenAICompletionChunk{
		Model: "gpt-4o-mini",
		Choices: []protocol.OpenAICompletionChoice{{
			Text:         "return nil",
			FinishReason: &finish,
		}},
	}

	got := CompletionResponseToChat(resp)

	if got.ID == "" {
		t.Error("missing synthesized id")
	}
	if got.Object != "chat.completion" {
		t.Errorf("object = %q", got.Object)
	}
	choice := got.Choices[0]
	if choice.Message.Role != "assistant" {
		t.Errorf("role = %q", choice.Message.Role)
	}
	if text := protocol.MessageText(&choice.Message); text != "return nil" {
		t.Errorf("text = %q", text)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "length" {
		t.Errorf("finish = %v", choice.FinishReason)
	}
}

func TestCompletionStreamToChat(t *testing.T) {
	finish := "stop"
	in := feed(
		item(&protocol.OpenAICompletionChunk{ID: "cmpl-1", Model: "gpt-4o-mini", Choices: []protocol.OpenAICompletionChoice{{Text: "x :"}}}),
		item(&protocol.OpenAICompletionChunk{ID: "cmpl-1", Choices: []protocol.OpenAICompletionChoice{{Text: "= 1"}}}),
		item(&protocol.OpenAICompletionChunk{ID: "cmpl-1", Choices: []protocol.OpenAICompletionChoice{{FinishReason: &finish}}}),
	)

	chunks := values(t, collect(t, CompletionStreamToChat(context.Background(), in)))

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if chunks[0].Object != "chat.completion.chunk" || chunks[0].ID != "cmpl-1" {
		t.Errorf("envelope = %+v", chunks[0])
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Error("first chunk misses assistant role")
	}
	if chunks[1].Choices[0].Delta.Role != "" {
		t.Error("role repeated")
	}

	var text strings.Builder
	for _, c := range chunks {
		if s, ok := c.Choices[0].Delta.GetText(); ok {
			text.WriteString(s)
		}
	}
	if text.String() != "x := 1" {
		t.Errorf("assembled = %q", text.String())
	}
	if chunks[2].Choices[0].FinishReason == nil || *chunks[2].Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %v", chunks[2].Choices[0].FinishReason)
	}
}

func TestChatStreamToCompletion(t *testing.T) {
	finish := "stop"
	in := feed(
		item(&protocol.OpenAIStreamChunk{ID: "chatcmpl-4", Model: "gpt-4o-mini", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Role: "assistant"}}}}),
		item(&protocol.OpenAIStreamChunk{ID: "chatcmpl-4", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Content: ptr("done()")}}}}),
		item(&protocol.OpenAIStreamChunk{ID: "chatcmpl-4", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{}, FinishReason: &finish}}}),
	)

	chunks := values(t, collect(t, ChatStreamToCompletion(context.Background(), in)))

	// The role-only delta has no completion shape and is dropped.
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want text + finish", len(chunks))
	}
	if chunks[0].Object != "text_completion" || chunks[0].Choices[0].Text != "done()" {
		t.Errorf("text chunk = %+v", chunks[0])
	}
	if chunks[1].Choices[0].FinishReason == nil || *chunks[1].Choices[0].FinishReason != "stop" {
		t.Errorf("finish chunk = %+v", chunks[1])
	}
}

func TestChatStreamToCompletion_ErrorPassThrough(t *testing.T) {
	in := feed(
		item(&protocol.OpenAIStreamChunk{Error: &protocol.OpenAIError{Message: "boom"}}),
	)

	chunks := values(t, collect(t, ChatStreamToCompletion(context.Background(), in)))

	if len(chunks) != 1 || chunks[0].Error == nil || chunks[0].Error.Message != "boom" {
		t.Fatalf("chunks = %+v", chunks)
	}
}
