package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	// streamChannelBuffer bounds decoded events held between the reader
	// goroutine and the consumer.
	streamChannelBuffer = 100

	// maxEventSize caps a single SSE data line.
	maxEventSize = 1024 * 1024

	doneSentinel = "[DONE]"
)

// StreamItem pairs a decoded stream value with a transport or decode
// error. Exactly one of the two fields is set. In-band protocol errors
// (an Anthropic error event, an Ollama error line) stay typed values so
// they can be re-serialized for the client in their native form.
type StreamItem[T any] struct {
	Value *T
	Err   error
}

// SSEScanner splits a server-sent-events byte stream into data frames,
// buffering on line boundaries so fragmented or coalesced network reads
// decode identically.
type SSEScanner struct {
	scanner *bufio.Scanner
	event   string
	data    []byte
}

func NewSSEScanner(r io.Reader) *SSEScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &SSEScanner{scanner: sc}
}

// Next advances to the next data frame. Comment lines and blank
// separators are skipped; an event line applies to the data line that
// follows it.
func (s *SSEScanner) Next() bool {
	var event string
	s.event, s.data = "", nil

	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			s.event = event
			s.data = []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			return true
		}
	}
	return false
}

func (s *SSEScanner) Event() string { return s.event }
func (s *SSEScanner) Data() []byte  { return s.data }
func (s *SSEScanner) Err() error    { return s.scanner.Err() }

func sendItem[T any](ctx context.Context, ch chan<- StreamItem[T], item StreamItem[T]) bool {
	select {
	case ch <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

// DecodeOpenAIStream reads an OpenAI chat completion SSE stream. The
// channel closes after the [DONE] sentinel, on EOF, or once an error
// item has been delivered. The body is always closed.
func DecodeOpenAIStream(ctx context.Context, body io.ReadCloser) <-chan StreamItem[OpenAIStreamChunk] {
	ch := make(chan StreamItem[OpenAIStreamChunk], streamChannelBuffer)

	go func() {
		defer close(ch)
		defer body.Close()

		sc := NewSSEScanner(body)
		for sc.Next() {
			data := sc.Data()
			if string(data) == doneSentinel {
				return
			}

			var chunk OpenAIStreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				sendItem(ctx, ch, StreamItem[OpenAIStreamChunk]{Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if !sendItem(ctx, ch, StreamItem[OpenAIStreamChunk]{Value: &chunk}) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sendItem(ctx, ch, StreamItem[OpenAIStreamChunk]{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch
}

// DecodeOpenAICompletionStream reads a legacy /completions SSE stream.
func DecodeOpenAICompletionStream(ctx context.Context, body io.ReadCloser) <-chan StreamItem[OpenAICompletionChunk] {
	ch := make(chan StreamItem[OpenAICompletionChunk], streamChannelBuffer)

	go func() {
		defer close(ch)
		defer body.Close()

		sc := NewSSEScanner(body)
		for sc.Next() {
			data := sc.Data()
			if string(data) == doneSentinel {
				return
			}

			var chunk OpenAICompletionChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				sendItem(ctx, ch, StreamItem[OpenAICompletionChunk]{Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if !sendItem(ctx, ch, StreamItem[OpenAICompletionChunk]{Value: &chunk}) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sendItem(ctx, ch, StreamItem[OpenAICompletionChunk]{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch
}

// DecodeAnthropicStream reads an Anthropic messages SSE stream. There is
// no [DONE] sentinel; the channel closes after a terminal event
// (message_stop or error) has been delivered, on EOF, or on error.
func DecodeAnthropicStream(ctx context.Context, body io.ReadCloser) <-chan StreamItem[AnthropicStreamEvent] {
	ch := make(chan StreamItem[AnthropicStreamEvent], streamChannelBuffer)

	go func() {
		defer close(ch)
		defer body.Close()

		sc := NewSSEScanner(body)
		for sc.Next() {
			var event AnthropicStreamEvent
			if err := json.Unmarshal(sc.Data(), &event); err != nil {
				sendItem(ctx, ch, StreamItem[AnthropicStreamEvent]{Err: fmt.Errorf("decode stream event: %w", err)})
				return
			}
			if event.Type == "" {
				event.Type = sc.Event()
			}

			if !sendItem(ctx, ch, StreamItem[AnthropicStreamEvent]{Value: &event}) {
				return
			}
			if event.Terminal() {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sendItem(ctx, ch, StreamItem[AnthropicStreamEvent]{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch
}

// MarshalOpenAIFrame serializes one value as an OpenAI-style SSE frame.
func MarshalOpenAIFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal stream frame: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 8)
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// OpenAIStreamDone is the closing frame of an OpenAI-style SSE stream.
func OpenAIStreamDone() []byte {
	return []byte("data: " + doneSentinel + "\n\n")
}

// MarshalAnthropicFrame serializes one value as an Anthropic-style SSE
// frame. The event line is mandatory in that dialect.
func MarshalAnthropicFrame(event string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal stream frame: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(event) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
