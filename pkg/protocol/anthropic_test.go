package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAnthropicSystem_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string shape", `{"model":"claude-3-5-sonnet","max_tokens":100,"messages":[],"system":"be brief"}`, `"system":"be brief"`},
		{"block shape", `{"model":"claude-3-5-sonnet","max_tokens":100,"messages":[],"system":[{"type":"text","text":"be brief"}]}`, `"system":[{"type":"text","text":"be brief"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req AnthropicRequest
			if err := json.Unmarshal([]byte(tt.in), &req); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := req.System.Flatten(); got != "be brief" {
				t.Errorf("Flatten() = %q, want be brief", got)
			}
			out, err := json.Marshal(&req)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("Marshal() = %s, want %s", out, tt.want)
			}
		})
	}
}

func TestAnthropicRequest_SystemPrompt(t *testing.T) {
	req := &AnthropicRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 1024,
		Messages: []AnthropicMessage{
			{Role: RoleUser, Content: AnthropicMessageContent{Blocks: []AnthropicContent{{Type: "text", Text: "hi"}}}},
		},
	}

	if got := req.GetSystemPrompt(); got != nil {
		t.Errorf("GetSystemPrompt() = %v, want nil", got)
	}

	req.SetSystemPrompt("stay on task")
	if got := req.GetSystemPrompt(); len(got) != 1 || got[0] != "stay on task" {
		t.Errorf("GetSystemPrompt() = %v, want [stay on task]", got)
	}

	req.AddSystemPrompt("cite sources", "\n")
	if got := req.System.Flatten(); got != "stay on task\ncite sources" {
		t.Errorf("Flatten() after AddSystemPrompt = %q", got)
	}

	// The system prompt lives at the top level, never in messages.
	if len(req.Messages) != 1 {
		t.Errorf("message count = %d, want 1", len(req.Messages))
	}
}

func TestAnthropicMessage_Contents(t *testing.T) {
	raw := `{"role":"assistant","content":[{"type":"text","text":"running the tool"},{"type":"tool_use","id":"toolu_1","name":"search","input":{"q":"x"}}]}`

	var msg AnthropicMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	contents := msg.Contents()
	if len(contents) != 2 {
		t.Fatalf("Contents() returned %d pieces, want 2", len(contents))
	}
	if text, ok := contents[0].GetText(); !ok || text != "running the tool" {
		t.Errorf("text block GetText() = (%q, %v), want text", text, ok)
	}
	if _, ok := contents[1].GetText(); ok {
		t.Error("tool_use block GetText() ok = true, want false")
	}

	contents[0].SetText("[redacted]")
	out, err := json.Marshal(&msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"text":"[redacted]"`) {
		t.Errorf("Marshal() = %s, want mutated text block", out)
	}
	if !strings.Contains(string(out), `"tool_use"`) {
		t.Errorf("Marshal() = %s, want tool_use block preserved", out)
	}
}

func TestAnthropicMessage_StringContent(t *testing.T) {
	raw := `{"role":"user","content":"plain text"}`

	var msg AnthropicMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	contents := msg.Contents()
	if len(contents) != 1 {
		t.Fatalf("Contents() returned %d pieces, want 1", len(contents))
	}
	contents[0].SetText("rewritten")

	out, _ := json.Marshal(&msg)
	if !strings.Contains(string(out), `"content":"rewritten"`) {
		t.Errorf("Marshal() = %s, want string shape preserved", out)
	}
}

func TestAnthropicStreamEvent_Terminal(t *testing.T) {
	tests := []struct {
		eventType string
		want      bool
	}{
		{AnthropicEventMessageStart, false},
		{AnthropicEventContentBlockStart, false},
		{AnthropicEventContentBlockDelta, false},
		{AnthropicEventContentBlockStop, false},
		{AnthropicEventMessageDelta, false},
		{AnthropicEventPing, false},
		{AnthropicEventMessageStop, true},
		{AnthropicEventError, true},
	}

	for _, tt := range tests {
		event := &AnthropicStreamEvent{Type: tt.eventType}
		if got := event.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.eventType, got, tt.want)
		}
	}
}

func TestAnthropicDelta_Text(t *testing.T) {
	delta := &AnthropicDelta{Type: AnthropicDeltaText, Text: "hello"}
	if text, ok := delta.GetText(); !ok || text != "hello" {
		t.Errorf("GetText() = (%q, %v), want (hello, true)", text, ok)
	}
	delta.SetText("bye")
	if delta.Text != "bye" {
		t.Errorf("Text after SetText = %q, want bye", delta.Text)
	}

	jsonDelta := &AnthropicDelta{Type: AnthropicDeltaInputJSON, PartialJSON: `{"a":`}
	if _, ok := jsonDelta.GetText(); ok {
		t.Error("GetText() on input_json_delta ok = true, want false")
	}
	jsonDelta.SetText("ignored")
	if jsonDelta.PartialJSON != `{"a":` || jsonDelta.Text != "" {
		t.Errorf("SetText() mutated a non-text delta: %+v", jsonDelta)
	}
}

func TestAnthropicResponse_StopReasonNull(t *testing.T) {
	raw := `{"id":"msg_1","type":"message","role":"assistant","content":[],"stop_reason":null,"stop_sequence":null}`

	var resp AnthropicResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.StopReason != nil {
		t.Errorf("StopReason = %v, want nil", *resp.StopReason)
	}

	out, err := json.Marshal(&resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"stop_reason":null`) {
		t.Errorf("Marshal() = %s, want stop_reason:null preserved", out)
	}
}

func TestAnthropicRequest_LastUserBlock(t *testing.T) {
	req := &AnthropicRequest{
		Messages: []AnthropicMessage{
			{Role: RoleUser, Content: AnthropicMessageContent{Blocks: []AnthropicContent{{Type: "text", Text: "first"}}}},
			{Role: RoleAssistant, Content: AnthropicMessageContent{Blocks: []AnthropicContent{{Type: "text", Text: "reply"}}}},
			{Role: RoleUser, Content: AnthropicMessageContent{Blocks: []AnthropicContent{{Type: "text", Text: "second"}}}},
		},
	}

	block := req.LastUserBlock()
	if len(block) != 1 || block[0].Index != 2 {
		t.Fatalf("LastUserBlock() = %d messages at %v, want 1 at index 2", len(block), block)
	}
	if got := MessageText(block[0].Message); got != "second" {
		t.Errorf("LastUserBlock() text = %q, want second", got)
	}
}
