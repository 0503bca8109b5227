// Package providers sends requests to upstream LLM endpoints in their
// native wire protocols and decodes the replies into typed streams.
//
// Adapters own the HTTP exchange and the decoding only. Requests arrive
// already translated to the destination protocol, and the typed streams
// they return are converted back by the caller; no cross-protocol mapping
// happens here. Every upstream is asked to stream so the gateway has a
// single response path; callers aggregate when the client wants a single
// body.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kadirpekel/codegate/pkg/httpclient"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const (
	anthropicVersion = "2023-06-01"

	// maxRetries is deliberately lower than the HTTP client default;
	// gateway traffic is interactive and a stalled assistant is worse
	// than a surfaced rate limit.
	maxRetries = 2

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 64 * 1024
)

// Client talks to upstream providers. Bearer-style upstreams and
// Anthropic are served by separate retrying clients because their
// rate-limit headers differ.
type Client struct {
	openai    *httpclient.Client
	anthropic *httpclient.Client
}

// New builds the upstream client. No overall timeout is set; exchange
// lifetimes are bounded by the request context so long streams are not
// cut off mid-reply.
func New() *Client {
	return &Client{
		openai: httpclient.New(
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
		anthropic: httpclient.New(
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}
}

// UpstreamError is a non-2xx reply from a provider. The status is
// propagated to the client; the body is kept so the server can reshape
// the upstream's message into the client's error envelope.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message())
}

// Message extracts the human-readable message from the error body,
// whichever of the supported envelopes it uses. OpenAI's object shape
// also covers Anthropic's; Ollama nests a plain string.
func (e *UpstreamError) Message() string {
	var openai protocol.OpenAIErrorResponse
	if err := json.Unmarshal(e.Body, &openai); err == nil && openai.Error.Message != "" {
		return openai.Error.Message
	}
	var ollama protocol.OllamaErrorResponse
	if err := json.Unmarshal(e.Body, &ollama); err == nil && ollama.Error != "" {
		return ollama.Error
	}
	if msg := strings.TrimSpace(string(e.Body)); msg != "" {
		return msg
	}
	return http.StatusText(e.StatusCode)
}

func newUpstreamError(resp *http.Response) *UpstreamError {
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{StatusCode: resp.StatusCode, Body: body}
}

// authFunc stamps credential headers onto an outgoing request.
type authFunc func(http.Header)

func bearerAuth(apiKey string) authFunc {
	return func(h http.Header) {
		if apiKey != "" {
			h.Set("Authorization", "Bearer "+apiKey)
		}
	}
}

func anthropicAuth(apiKey string) authFunc {
	return func(h http.Header) {
		h.Set("anthropic-version", anthropicVersion)
		if apiKey != "" {
			h.Set("x-api-key", apiKey)
		}
	}
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// post sends a JSON body and returns the response with its body still
// open for stream decoding. Non-2xx replies come back as *UpstreamError.
func (c *Client) post(ctx context.Context, hc *httpclient.Client, url string, payload interface{}, auth authFunc) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth(req.Header)

	resp, err := hc.Do(req)
	if err != nil {
		if resp != nil {
			return nil, newUpstreamError(resp)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	return resp, nil
}

// get fetches and decodes a JSON document.
func (c *Client) get(ctx context.Context, hc *httpclient.Client, url string, auth authFunc, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	auth(req.Header)

	resp, err := hc.Do(req)
	if err != nil {
		if resp != nil {
			return newUpstreamError(resp)
		}
		return fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode upstream response: %w", err)
	}
	return nil
}
