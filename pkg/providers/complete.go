package providers

import (
	"context"

	"github.com/kadirpekel/codegate/pkg/protocol"
)

// CompleteOpenAIChat posts a chat completion to an OpenAI-compatible
// upstream. vLLM, llama.cpp and OpenRouter serve the same route.
func (c *Client) CompleteOpenAIChat(ctx context.Context, req *protocol.OpenAIChatRequest, apiKey, baseURL string) (<-chan protocol.StreamItem[protocol.OpenAIStreamChunk], error) {
	req.SetStream(true)
	resp, err := c.post(ctx, c.openai, join(baseURL, "/chat/completions"), req, bearerAuth(apiKey))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeOpenAIStream(ctx, resp.Body), nil
}

// CompleteOpenAICompletion posts a legacy completion, the route
// fill-in-the-middle clients still speak.
func (c *Client) CompleteOpenAICompletion(ctx context.Context, req *protocol.OpenAICompletionRequest, apiKey, baseURL string) (<-chan protocol.StreamItem[protocol.OpenAICompletionChunk], error) {
	req.SetStream(true)
	resp, err := c.post(ctx, c.openai, join(baseURL, "/completions"), req, bearerAuth(apiKey))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeOpenAICompletionStream(ctx, resp.Body), nil
}

// CompleteAnthropic posts a messages request to an Anthropic upstream.
func (c *Client) CompleteAnthropic(ctx context.Context, req *protocol.AnthropicRequest, apiKey, baseURL string) (<-chan protocol.StreamItem[protocol.AnthropicStreamEvent], error) {
	req.SetStream(true)
	resp, err := c.post(ctx, c.anthropic, join(baseURL, "/v1/messages"), req, anthropicAuth(apiKey))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAnthropicStream(ctx, resp.Body), nil
}

// CompleteOllamaChat posts a chat request to an Ollama upstream.
func (c *Client) CompleteOllamaChat(ctx context.Context, req *protocol.OllamaChatRequest, apiKey, baseURL string) (<-chan protocol.StreamItem[protocol.OllamaChatResponse], error) {
	req.SetStream(true)
	resp, err := c.post(ctx, c.openai, join(baseURL, "/api/chat"), req, bearerAuth(apiKey))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeOllamaChatStream(ctx, resp.Body), nil
}

// CompleteOllamaGenerate posts a generate request, Ollama's
// fill-in-the-middle route.
func (c *Client) CompleteOllamaGenerate(ctx context.Context, req *protocol.OllamaGenerateRequest, apiKey, baseURL string) (<-chan protocol.StreamItem[protocol.OllamaGenerateResponse], error) {
	req.SetStream(true)
	resp, err := c.post(ctx, c.openai, join(baseURL, "/api/generate"), req, bearerAuth(apiKey))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeOllamaGenerateStream(ctx, resp.Body), nil
}
