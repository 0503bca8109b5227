package translate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

func TestOpenAIToOllamaChat(t *testing.T) {
	req := &protocol.OpenAIChatRequest{
		Model: "qwen2.5-coder",
		Messages: []protocol.OpenAIMessage{
			{Role: "system", Content: protocol.StringContent("be terse")},
			{Role: "user", Content: protocol.StringContent("hello")},
		},
		MaxTokens:      ptr(128),
		Temperature:    ptr(0.2),
		Stop:           &protocol.OpenAIStop{Values: []string{"```"}},
		ResponseFormat: &protocol.OpenAIResponseFormat{Type: "json_object"},
		Stream:         false,
	}

	got, err := OpenAIToOllamaChat(req)
	if err != nil {
		t.Fatalf("OpenAIToOllamaChat() error = %v", err)
	}

	if got.Model != "qwen2.5-coder" || len(got.Messages) != 2 {
		t.Fatalf("converted = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "be terse" {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Stream == nil || *got.Stream {
		t.Errorf("Stream = %v, want explicit false", got.Stream)
	}
	if got.Options["num_predict"] != 128 {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
	if got.Options["temperature"] != 0.2 {
		t.Errorf("temperature = %v", got.Options["temperature"])
	}
	stops, ok := got.Options["stop"].([]string)
	if !ok || len(stops) != 1 || stops[0] != "```" {
		t.Errorf("stop = %v, want list", got.Options["stop"])
	}
	if string(got.Format) != `"json"` {
		t.Errorf("Format = %s", got.Format)
	}
}

func TestOpenAIToOllamaChat_ToolsAndImages(t *testing.T) {
	req := &protocol.OpenAIChatRequest{
		Messages: []protocol.OpenAIMessage{
			{
				Role: "user",
				Content: protocol.OpenAIMessageContent{Parts: []protocol.OpenAIContentPart{
					{Type: "text", Text: "what is this"},
					{Type: "image_url", ImageURL: &protocol.OpenAIImageURL{URL: "data:image/png;base64,aGk="}},
				}},
			},
			{Role: "assistant", ToolCalls: []protocol.OpenAIToolCall{{
				ID:       "call_1",
				Function: protocol.OpenAIFunctionCall{Name: "ls", Arguments: `{"path":"/tmp"}`},
			}}},
		},
		Tools: []protocol.OpenAITool{{
			Type:     "function",
			Function: protocol.OpenAIFunctionDef{Name: "ls", Parameters: map[string]interface{}{"type": "object"}},
		}},
	}

	got, err := OpenAIToOllamaChat(req)
	if err != nil {
		t.Fatalf("OpenAIToOllamaChat() error = %v", err)
	}

	user := got.Messages[0]
	if user.Content != "what is this" || len(user.Images) != 1 || user.Images[0] != "aGk=" {
		t.Errorf("user message = %+v", user)
	}

	assistant := got.Messages[1]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", assistant.ToolCalls)
	}
	args := assistant.ToolCalls[0].Function.Arguments
	if args["path"] != "/tmp" {
		t.Errorf("arguments = %v, want parsed object", args)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "ls" {
		t.Errorf("tools = %+v", got.Tools)
	}
}

func TestOpenAIToOllamaChat_RemoteImage(t *testing.T) {
	req := &protocol.OpenAIChatRequest{
		Messages: []protocol.OpenAIMessage{{
			Role: "user",
			Content: protocol.OpenAIMessageContent{Parts: []protocol.OpenAIContentPart{
				{Type: "image_url", ImageURL: &protocol.OpenAIImageURL{URL: "https://example.com/x.png"}},
			}},
		}},
	}
	if _, err := OpenAIToOllamaChat(req); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
}

func TestOllamaChatToOpenAI(t *testing.T) {
	stream := true
	req := &protocol.OllamaChatRequest{
		Model:  "llama3.2",
		Stream: &stream,
		Messages: []protocol.OllamaMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []protocol.OllamaToolCall{{
				Function: protocol.OllamaFunctionCall{Name: "grep", Arguments: map[string]interface{}{"q": "x"}},
			}}},
		},
		Format: json.RawMessage(`"json"`),
		Options: map[string]interface{}{
			"num_predict": float64(64),
			"temperature": 0.3,
			"stop":        []interface{}{"a", "b"},
		},
	}

	got, err := OllamaChatToOpenAI(req)
	if err != nil {
		t.Fatalf("OllamaChatToOpenAI() error = %v", err)
	}

	if !got.Stream {
		t.Error("Stream dropped")
	}
	if got.MaxTokens == nil || *got.MaxTokens != 64 {
		t.Errorf("MaxTokens = %v", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Errorf("Temperature = %v", got.Temperature)
	}
	if got.Stop == nil || len(got.Stop.Values) != 2 {
		t.Errorf("Stop = %+v", got.Stop)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v", got.ResponseFormat)
	}

	call := got.Messages[1].ToolCalls[0]
	if call.ID == "" {
		t.Error("tool call id not synthesized")
	}
	if call.Function.Arguments != `{"q":"x"}` {
		t.Errorf("arguments = %q, want marshaled string", call.Function.Arguments)
	}
}

func TestOllamaChatToOpenAI_InlineImage(t *testing.T) {
	req := &protocol.OllamaChatRequest{
		Messages: []protocol.OllamaMessage{{Role: "user", Content: "x", Images: []string{"aGk="}}},
	}
	if _, err := OllamaChatToOpenAI(req); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
}

func TestCompletionToOllamaGenerate(t *testing.T) {
	req := &protocol.OpenAICompletionRequest{
		Model:       "starcoder2",
		Prompt:      protocol.StringPrompt("def main():"),
		Suffix:      "\treturn 0",
		MaxTokens:   ptr(32),
		Temperature: ptr(0.1),
		Stream:      true,
	}

	got := CompletionToOllamaGenerate(req)

	if got.Prompt != "def main():" || got.Suffix != "\treturn 0" {
		t.Errorf("prompt/suffix = %q / %q", got.Prompt, got.Suffix)
	}
	if got.Stream == nil || !*got.Stream {
		t.Errorf("Stream = %v, want explicit true", got.Stream)
	}
	if got.Options["num_predict"] != 32 {
		t.Errorf("num_predict = %v", got.Options["num_predict"])
	}
}

func TestOllamaGenerateToCompletion(t *testing.T) {
	req := &protocol.OllamaGenerateRequest{
		Model:   "starcoder2",
		Prompt:  "func main() {",
		Suffix:  "}",
		Options: map[string]interface{}{"num_predict": float64(16), "temperature": 0.5},
	}

	got := OllamaGenerateToCompletion(req)

	if got.GetPrompt("") != "func main() {" || got.Suffix != "}" {
		t.Errorf("prompt/suffix = %q / %q", got.GetPrompt(""), got.Suffix)
	}
	if !got.Stream {
		t.Error("Stream = false, want ollama default true")
	}
	if got.MaxTokens == nil || *got.MaxTokens != 16 {
		t.Errorf("MaxTokens = %v", got.MaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.5 {
		t.Errorf("Temperature = %v", got.Temperature)
	}
}

func TestOllamaChatResponseToOpenAI(t *testing.T) {
	resp := &protocol.OllamaChatResponse{
		Model: "llama3.2",
		Message: protocol.OllamaMessage{
			Role:    "assistant",
			Content: "done",
			ToolCalls: []protocol.OllamaToolCall{{
				Function: protocol.OllamaFunctionCall{Name: "ls", Arguments: map[string]interface{}{"path": "."}},
			}},
		},
		Done:            true,
		DoneReason:      "stop",
		PromptEvalCount: 9,
		EvalCount:       4,
	}

	got := OllamaChatResponseToOpenAI(resp)

	choice := got.Choices[0]
	if text := protocol.MessageText(&choice.Message); text != "done" {
		t.Errorf("text = %q", text)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "tool_calls" {
		t.Errorf("finish = %v, want tool_calls forced by tool presence", choice.FinishReason)
	}
	if choice.Message.ToolCalls[0].Function.Arguments != `{"path":"."}` {
		t.Errorf("arguments = %q", choice.Message.ToolCalls[0].Function.Arguments)
	}
	if got.Usage.TotalTokens != 13 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestOpenAIResponseToOllamaChat(t *testing.T) {
	finish := "length"
	resp := &protocol.OpenAIChatResponse{
		Model: "llama3.2",
		Choices: []protocol.OpenAIChoice{{
			Message:      protocol.OpenAIMessage{Role: "assistant", Content: protocol.StringContent("cut off")},
			FinishReason: &finish,
		}},
		Usage: &protocol.OpenAIUsage{PromptTokens: 5, CompletionTokens: 11},
	}

	got := OpenAIResponseToOllamaChat(resp)

	if !got.Done || got.DoneReason != "length" {
		t.Errorf("done = %v / %q", got.Done, got.DoneReason)
	}
	if got.Message.Content != "cut off" {
		t.Errorf("content = %q", got.Message.Content)
	}
	if got.PromptEvalCount != 5 || got.EvalCount != 11 {
		t.Errorf("counters = %d / %d", got.PromptEvalCount, got.EvalCount)
	}
	if got.CreatedAt == "" {
		t.Error("created_at not set")
	}
}

func TestOllamaChatStreamToOpenAI(t *testing.T) {
	in := feed(
		item(&protocol.OllamaChatResponse{Model: "llama3.2", Message: protocol.OllamaMessage{Role: "assistant", Content: "Hel"}}),
		item(&protocol.OllamaChatResponse{Message: protocol.OllamaMessage{Role: "assistant", Content: "lo"}}),
		item(&protocol.OllamaChatResponse{Done: true, DoneReason: "stop", PromptEvalCount: 7, EvalCount: 2}),
	)

	chunks := values(t, collect(t, OllamaChatStreamToOpenAI(context.Background(), in)))

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 2 content + finish", len(chunks))
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Error("first chunk misses assistant role")
	}
	if chunks[1].Choices[0].Delta.Role != "" {
		t.Error("role repeated after first chunk")
	}

	var text strings.Builder
	for _, c := range chunks[:2] {
		if s, ok := c.Choices[0].Delta.GetText(); ok {
			text.WriteString(s)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("assembled text = %q", text.String())
	}

	last := chunks[2]
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %v", last.Choices[0].FinishReason)
	}
	if last.Usage == nil || last.Usage.PromptTokens != 7 || last.Usage.CompletionTokens != 2 {
		t.Errorf("usage = %+v", last.Usage)
	}
	if chunks[0].Model != "llama3.2" || chunks[2].Model != "llama3.2" {
		t.Error("model not carried across chunks")
	}
}

func TestOllamaChatStreamToOpenAI_ErrorLine(t *testing.T) {
	in := feed(
		item(&protocol.OllamaChatResponse{Message: protocol.OllamaMessage{Role: "assistant", Content: "par"}}),
		item(&protocol.OllamaChatResponse{Error: "model not found"}),
	)

	chunks := values(t, collect(t, OllamaChatStreamToOpenAI(context.Background(), in)))

	last := chunks[len(chunks)-1]
	if last.Error == nil || last.Error.Message != "model not found" {
		t.Fatalf("error chunk = %+v", last)
	}
}

func TestOpenAIStreamToOllamaChat_ToolAccumulation(t *testing.T) {
	finish := "tool_calls"
	in := feed(
		item(&protocol.OpenAIStreamChunk{Model: "gpt-4o", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Role: "assistant"}}}}),
		item(&protocol.OpenAIStreamChunk{Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{
			ToolCalls: []protocol.OpenAIToolCall{{Index: ptr(0), ID: "call_9", Function: protocol.OpenAIFunctionCall{Name: "ls", Arguments: `{"pa`}}},
		}}}}),
		item(&protocol.OpenAIStreamChunk{Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{
			ToolCalls: []protocol.OpenAIToolCall{{Index: ptr(0), Function: protocol.OpenAIFunctionCall{Arguments: `th":"."}`}}},
		}}}}),
		item(&protocol.OpenAIStreamChunk{
			Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{}, FinishReason: &finish}},
			Usage:   &protocol.OpenAIUsage{PromptTokens: 3, CompletionTokens: 8},
		}),
	)

	lines := values(t, collect(t, OpenAIStreamToOllamaChat(context.Background(), in)))

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want tool line + done line", len(lines))
	}

	toolLine := lines[0]
	if toolLine.Done {
		t.Error("tool line marked done")
	}
	if len(toolLine.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", toolLine.Message.ToolCalls)
	}
	call := toolLine.Message.ToolCalls[0]
	if call.Function.Name != "ls" || call.Function.Arguments["path"] != "." {
		t.Errorf("resolved call = %+v", call)
	}

	done := lines[1]
	if !done.Done || done.DoneReason != "stop" {
		t.Errorf("done line = %+v", done)
	}
	if done.PromptEvalCount != 3 || done.EvalCount != 8 {
		t.Errorf("counters = %d / %d", done.PromptEvalCount, done.EvalCount)
	}
}

func TestOpenAIStreamToOllamaChat_Text(t *testing.T) {
	finish := "stop"
	in := feed(
		item(&protocol.OpenAIStreamChunk{Model: "gpt-4o", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Role: "assistant", Content: ptr("Hi")}}}}),
		item(&protocol.OpenAIStreamChunk{Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{}, FinishReason: &finish}}}),
	)

	lines := values(t, collect(t, OpenAIStreamToOllamaChat(context.Background(), in)))

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want content + done", len(lines))
	}
	if lines[0].Message.Content != "Hi" || lines[0].Done {
		t.Errorf("content line = %+v", lines[0])
	}
	if !lines[1].Done || lines[1].Model != "gpt-4o" {
		t.Errorf("done line = %+v", lines[1])
	}
}

func TestOllamaGenerateStreamToOpenAI(t *testing.T) {
	in := feed(
		item(&protocol.OllamaGenerateResponse{Model: "starcoder2", Response: "if err "}),
		item(&protocol.OllamaGenerateResponse{Response: "!= nil {"}),
		item(&protocol.OllamaGenerateResponse{Done: true, DoneReason: "stop", PromptEvalCount: 20, EvalCount: 6}),
	)

	chunks := values(t, collect(t, OllamaGenerateStreamToOpenAI(context.Background(), in)))

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	var text strings.Builder
	for _, c := range chunks[:2] {
		if s, ok := c.Choices[0].Delta.GetText(); ok {
			text.WriteString(s)
		}
	}
	if text.String() != "if err != nil {" {
		t.Errorf("assembled = %q", text.String())
	}
	last := chunks[2]
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %v", last.Choices[0].FinishReason)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 26 {
		t.Errorf("usage = %+v", last.Usage)
	}
}

func TestOpenAIStreamToOllamaGenerate(t *testing.T) {
	finish := "length"
	in := feed(
		item(&protocol.OpenAIStreamChunk{Model: "starcoder2", Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Content: ptr("x := 1")}}}}),
		item(&protocol.OpenAIStreamChunk{
			Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{}, FinishReason: &finish}},
			Usage:   &protocol.OpenAIUsage{PromptTokens: 2, CompletionTokens: 30},
		}),
	)

	lines := values(t, collect(t, OpenAIStreamToOllamaGenerate(context.Background(), in)))

	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0].Response != "x := 1" || lines[0].Done {
		t.Errorf("content line = %+v", lines[0])
	}
	done := lines[1]
	if !done.Done || done.DoneReason != "length" || done.EvalCount != 30 {
		t.Errorf("done line = %+v", done)
	}
}
