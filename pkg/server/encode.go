// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/translate"
)

// responder writes the normalized output stream back in one client
// protocol: framed for streaming requests, collected into a single body
// otherwise, and as the protocol's error envelope on rejection.
type responder interface {
	stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk])
	respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk])
	reject(w http.ResponseWriter, status int, message string)
}

type openAIChatResponder struct{}

func (e openAIChatResponder) stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	fl := sseStart(w)
	failed := false
	for item := range out {
		chunk := item.Value
		if item.Err != nil {
			chunk = &protocol.OpenAIStreamChunk{
				Error: &protocol.OpenAIError{Message: item.Err.Error(), Type: "upstream_error"},
			}
		}
		if chunk.Error != nil {
			failed = true
		}
		if frame, err := protocol.MarshalOpenAIFrame(chunk); err == nil {
			writeFrame(w, fl, frame)
		}
	}
	// A stream that ended on an error frame never gets the done sentinel.
	if !failed {
		writeFrame(w, fl, protocol.OpenAIStreamDone())
	}
}

func (e openAIChatResponder) respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	resp, err := translate.CollectOpenAIStream(out)
	if err != nil {
		e.reject(w, http.StatusBadGateway, err.Error())
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.OpenAIErrorResponse{Error: *resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e openAIChatResponder) reject(w http.ResponseWriter, status int, message string) {
	rejectOpenAI(w, status, message)
}

type openAICompletionResponder struct{}

func (e openAICompletionResponder) stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	fl := sseStart(w)
	failed := false
	for item := range translate.ChatStreamToCompletion(ctx, out) {
		chunk := item.Value
		if item.Err != nil {
			chunk = &protocol.OpenAICompletionChunk{
				Error: &protocol.OpenAIError{Message: item.Err.Error(), Type: "upstream_error"},
			}
		}
		if chunk.Error != nil {
			failed = true
		}
		if frame, err := protocol.MarshalOpenAIFrame(chunk); err == nil {
			writeFrame(w, fl, frame)
		}
	}
	if !failed {
		writeFrame(w, fl, protocol.OpenAIStreamDone())
	}
}

func (e openAICompletionResponder) respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	resp, err := translate.CollectOpenAIStream(out)
	if err != nil {
		e.reject(w, http.StatusBadGateway, err.Error())
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.OpenAIErrorResponse{Error: *resp.Error})
		return
	}
	writeJSON(w, http.StatusOK, translate.ChatResponseToCompletion(resp))
}

func (e openAICompletionResponder) reject(w http.ResponseWriter, status int, message string) {
	rejectOpenAI(w, status, message)
}

type anthropicResponder struct{}

func (e anthropicResponder) stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	fl := sseStart(w)
	for item := range translate.OpenAIStreamToAnthropic(ctx, out) {
		if item.Err != nil {
			ev := protocol.AnthropicErrorResponse{
				Type:  protocol.AnthropicEventError,
				Error: protocol.AnthropicError{Type: "api_error", Message: item.Err.Error()},
			}
			if frame, err := protocol.MarshalAnthropicFrame(protocol.AnthropicEventError, ev); err == nil {
				writeFrame(w, fl, frame)
			}
			continue
		}
		if frame, err := protocol.MarshalAnthropicFrame(item.Value.Type, item.Value); err == nil {
			writeFrame(w, fl, frame)
		}
	}
}

func (e anthropicResponder) respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	resp, err := translate.CollectOpenAIStream(out)
	if err != nil {
		e.reject(w, http.StatusBadGateway, err.Error())
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.AnthropicErrorResponse{
			Type:  "error",
			Error: protocol.AnthropicError{Type: "api_error", Message: resp.Error.Message},
		})
		return
	}
	writeJSON(w, http.StatusOK, translate.OpenAIResponseToAnthropic(resp))
}

func (e anthropicResponder) reject(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.AnthropicErrorResponse{
		Type:  "error",
		Error: protocol.AnthropicError{Type: anthropicErrorType(status), Message: message},
	})
}

type ollamaChatResponder struct{}

func (e ollamaChatResponder) stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	fl := ndjsonStart(w)
	for item := range translate.OpenAIStreamToOllamaChat(ctx, out) {
		line := item.Value
		if item.Err != nil {
			line = &protocol.OllamaChatResponse{Error: item.Err.Error(), Done: true}
		}
		if frame, err := protocol.MarshalNDJSONLine(line); err == nil {
			writeFrame(w, fl, frame)
		}
	}
}

func (e ollamaChatResponder) respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	resp, err := translate.CollectOpenAIStream(out)
	if err != nil {
		e.reject(w, http.StatusBadGateway, err.Error())
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.OllamaErrorResponse{Error: resp.Error.Message})
		return
	}
	writeJSON(w, http.StatusOK, translate.OpenAIResponseToOllamaChat(resp))
}

func (e ollamaChatResponder) reject(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.OllamaErrorResponse{Error: message})
}

type ollamaGenerateResponder struct{}

func (e ollamaGenerateResponder) stream(ctx context.Context, w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	fl := ndjsonStart(w)
	for item := range translate.OpenAIStreamToOllamaGenerate(ctx, out) {
		line := item.Value
		if item.Err != nil {
			line = &protocol.OllamaGenerateResponse{Error: item.Err.Error(), Done: true}
		}
		if frame, err := protocol.MarshalNDJSONLine(line); err == nil {
			writeFrame(w, fl, frame)
		}
	}
}

func (e ollamaGenerateResponder) respond(w http.ResponseWriter, out <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]) {
	resp, err := translate.CollectOpenAIStream(out)
	if err != nil {
		e.reject(w, http.StatusBadGateway, err.Error())
		return
	}
	if resp.Error != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.OllamaErrorResponse{Error: resp.Error.Message})
		return
	}
	writeJSON(w, http.StatusOK, translate.CompletionToOllamaGenerateResponse(translate.ChatResponseToCompletion(resp)))
}

func (e ollamaGenerateResponder) reject(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.OllamaErrorResponse{Error: message})
}

func rejectOpenAI(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.OpenAIErrorResponse{
		Error: protocol.OpenAIError{Message: message, Type: openAIErrorType(status)},
	})
}

func openAIErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}

func anthropicErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response body", "error", err)
	}
}

func sseStart(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl, _ := w.(http.Flusher)
	if fl != nil {
		fl.Flush()
	}
	return fl
}

func ndjsonStart(w http.ResponseWriter) http.Flusher {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	fl, _ := w.(http.Flusher)
	return fl
}

func writeFrame(w http.ResponseWriter, fl http.Flusher, frame []byte) {
	if _, err := w.Write(frame); err != nil {
		return
	}
	if fl != nil {
		fl.Flush()
	}
}
