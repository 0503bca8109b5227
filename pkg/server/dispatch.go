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
	"errors"
	"fmt"
	"net/http"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/providers"
	"github.com/kadirpekel/codegate/pkg/translate"
)

// dispatch sends the processed request to the resolved upstream and
// normalizes whatever comes back into OpenAI chat chunks. Requests already
// in the upstream's native protocol go through untranslated.
func (s *Server) dispatch(ctx context.Context, req protocol.Request, t *target) (<-chan protocol.StreamItem[protocol.OpenAIStreamChunk], error) {
	switch t.providerType {
	case models.ProviderAnthropic:
		return s.dispatchAnthropic(ctx, req, t)
	case models.ProviderOllama:
		return s.dispatchOllama(ctx, req, t)
	default:
		return s.dispatchOpenAI(ctx, req, t)
	}
}

func (s *Server) dispatchAnthropic(ctx context.Context, req protocol.Request, t *target) (<-chan protocol.StreamItem[protocol.OpenAIStreamChunk], error) {
	areq, err := anthropicRequest(req)
	if err != nil {
		return nil, err
	}
	events, err := s.Upstream.CompleteAnthropic(ctx, areq, t.apiKey, t.baseURL)
	if err != nil {
		return nil, err
	}
	return translate.AnthropicStreamToOpenAI(ctx, events), nil
}

func (s *Server) dispatchOllama(ctx context.Context, req protocol.Request, t *target) (<-chan protocol.StreamItem[protocol.OpenAIStreamChunk], error) {
	switch q := req.(type) {
	case *protocol.OllamaChatRequest:
		lines, err := s.Upstream.CompleteOllamaChat(ctx, q, t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.OllamaChatStreamToOpenAI(ctx, lines), nil
	case *protocol.OllamaGenerateRequest:
		lines, err := s.Upstream.CompleteOllamaGenerate(ctx, q, t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.OllamaGenerateStreamToOpenAI(ctx, lines), nil
	case *protocol.OpenAICompletionRequest:
		// Raw completions map onto generate, which keeps FIM prompts intact.
		lines, err := s.Upstream.CompleteOllamaGenerate(ctx, translate.CompletionToOllamaGenerate(q), t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.OllamaGenerateStreamToOpenAI(ctx, lines), nil
	default:
		chat, err := chatRequest(req)
		if err != nil {
			return nil, err
		}
		oreq, err := translate.OpenAIToOllamaChat(chat)
		if err != nil {
			return nil, err
		}
		lines, err := s.Upstream.CompleteOllamaChat(ctx, oreq, t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.OllamaChatStreamToOpenAI(ctx, lines), nil
	}
}

func (s *Server) dispatchOpenAI(ctx context.Context, req protocol.Request, t *target) (<-chan protocol.StreamItem[protocol.OpenAIStreamChunk], error) {
	switch q := req.(type) {
	case *protocol.OpenAIChatRequest:
		return s.Upstream.CompleteOpenAIChat(ctx, q, t.apiKey, t.baseURL)
	case *protocol.OpenAICompletionRequest:
		chunks, err := s.Upstream.CompleteOpenAICompletion(ctx, q, t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.CompletionStreamToChat(ctx, chunks), nil
	case *protocol.OllamaGenerateRequest:
		chunks, err := s.Upstream.CompleteOpenAICompletion(ctx, translate.OllamaGenerateToCompletion(q), t.apiKey, t.baseURL)
		if err != nil {
			return nil, err
		}
		return translate.CompletionStreamToChat(ctx, chunks), nil
	default:
		chat, err := chatRequest(req)
		if err != nil {
			return nil, err
		}
		return s.Upstream.CompleteOpenAIChat(ctx, chat, t.apiKey, t.baseURL)
	}
}

// chatRequest converts any inbound request to the OpenAI chat shape, the
// hub every cross-protocol dispatch goes through.
func chatRequest(req protocol.Request) (*protocol.OpenAIChatRequest, error) {
	switch q := req.(type) {
	case *protocol.OpenAIChatRequest:
		return q, nil
	case *protocol.OpenAICompletionRequest:
		return translate.CompletionToChat(q), nil
	case *protocol.AnthropicRequest:
		return translate.AnthropicToOpenAI(q)
	case *protocol.OllamaChatRequest:
		return translate.OllamaChatToOpenAI(q)
	case *protocol.OllamaGenerateRequest:
		return translate.CompletionToChat(translate.OllamaGenerateToCompletion(q)), nil
	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}

func anthropicRequest(req protocol.Request) (*protocol.AnthropicRequest, error) {
	if q, ok := req.(*protocol.AnthropicRequest); ok {
		return q, nil
	}
	chat, err := chatRequest(req)
	if err != nil {
		return nil, err
	}
	return translate.OpenAIToAnthropic(chat)
}

// upstreamFailure maps a dispatch error onto the status and message the
// client gets back. Upstream HTTP failures keep their original status.
func upstreamFailure(err error) (int, string) {
	var ue *providers.UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode, ue.Message()
	}
	if errors.Is(err, translate.ErrUnsupported) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusBadGateway, err.Error()
}
