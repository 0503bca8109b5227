package translate

import (
	"context"
	"time"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// CompletionToChat converts a legacy completion request into a chat
// request for targets that only speak the chat API. The prompt becomes a
// single user message; the fill-in-the-middle suffix has no chat
// equivalent and is dropped.
func CompletionToChat(req *protocol.OpenAICompletionRequest) *protocol.OpenAIChatRequest {
	return &protocol.OpenAIChatRequest{
		Model: req.Model,
		Messages: []protocol.OpenAIMessage{{
			Role:    protocol.RoleUser,
			Content: protocol.StringContent(req.GetPrompt("")),
		}},
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		N:                req.N,
		Stream:           req.Stream,
		Stop:             req.Stop,
		Seed:             req.Seed,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		User:             req.User,
	}
}

// CompletionResponseToChat converts a legacy completion body into a chat
// completion response.
func CompletionResponseToChat(resp *protocol.OpenAICompletionChunk) *protocol.OpenAIChatResponse {
	out := &protocol.OpenAIChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage:   resp.Usage,
		Error:   resp.Error,
	}
	if out.ID == "" {
		out.ID = newChatID()
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, protocol.OpenAIChoice{
			Index: choice.Index,
			Message: protocol.OpenAIMessage{
				Role:    protocol.RoleAssistant,
				Content: protocol.StringContent(choice.Text),
			},
			FinishReason: choice.FinishReason,
		})
	}
	return out
}

// ChatResponseToCompletion converts a chat completion response into a
// legacy completion body. Tool calls have no completion equivalent and are
// dropped; fill-in-the-middle targets never request them.
func ChatResponseToCompletion(resp *protocol.OpenAIChatResponse) *protocol.OpenAICompletionChunk {
	out := &protocol.OpenAICompletionChunk{
		ID:      resp.ID,
		Object:  "text_completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage:   resp.Usage,
		Error:   resp.Error,
	}
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		out.Choices = append(out.Choices, protocol.OpenAICompletionChoice{
			Index:        choice.Index,
			Text:         protocol.MessageText(&choice.Message),
			FinishReason: choice.FinishReason,
		})
	}
	return out
}

// CompletionStreamToChat converts a legacy completion SSE stream into chat
// completion chunks.
func CompletionStreamToChat(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAICompletionChunk]) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	out := make(chan protocol.StreamItem[protocol.OpenAIStreamChunk], streamBuffer)

	go func() {
		defer close(out)

		sentRole := false
		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Err: item.Err})
				return
			}
			c := item.Value

			chunk := &protocol.OpenAIStreamChunk{
				ID:      c.ID,
				Object:  "chat.completion.chunk",
				Created: c.Created,
				Model:   c.Model,
				Usage:   c.Usage,
				Error:   c.Error,
				Choices: []protocol.OpenAIStreamChoice{},
			}
			for i := range c.Choices {
				choice := &c.Choices[i]
				delta := protocol.OpenAIDelta{}
				if !sentRole {
					sentRole = true
					delta.Role = protocol.RoleAssistant
				}
				if choice.Text != "" {
					delta.Content = ptr(choice.Text)
				}
				chunk.Choices = append(chunk.Choices, protocol.OpenAIStreamChoice{
					Index:        choice.Index,
					Delta:        delta,
					FinishReason: choice.FinishReason,
				})
			}
			if !send(ctx, out, protocol.StreamItem[protocol.OpenAIStreamChunk]{Value: chunk}) {
				return
			}
			if c.Error != nil {
				return
			}
		}
	}()

	return out
}

// ChatStreamToCompletion converts chat completion chunks back into legacy
// completion frames for clients that opened a completions stream.
func ChatStreamToCompletion(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) <-chan protocol.StreamItem[protocol.OpenAICompletionChunk] {
	out := make(chan protocol.StreamItem[protocol.OpenAICompletionChunk], streamBuffer)

	go func() {
		defer close(out)

		for item := range in {
			if item.Err != nil {
				send(ctx, out, protocol.StreamItem[protocol.OpenAICompletionChunk]{Err: item.Err})
				return
			}
			c := item.Value

			chunk := &protocol.OpenAICompletionChunk{
				ID:      c.ID,
				Object:  "text_completion",
				Created: c.Created,
				Model:   c.Model,
				Usage:   c.Usage,
				Error:   c.Error,
				Choices: []protocol.OpenAICompletionChoice{},
			}
			for i := range c.Choices {
				choice := &c.Choices[i]
				text, _ := choice.Delta.GetText()
				if text == "" && choice.FinishReason == nil && c.Error == nil {
					// Role-only and tool-call deltas have no completion shape.
					continue
				}
				chunk.Choices = append(chunk.Choices, protocol.OpenAICompletionChoice{
					Index:        choice.Index,
					Text:         text,
					FinishReason: choice.FinishReason,
				})
			}
			if len(chunk.Choices) == 0 && c.Error == nil && c.Usage == nil {
				continue
			}
			if !send(ctx, out, protocol.StreamItem[protocol.OpenAICompletionChunk]{Value: chunk}) {
				return
			}
			if c.Error != nil {
				return
			}
		}
	}()

	return out
}
