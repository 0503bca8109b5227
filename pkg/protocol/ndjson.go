package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeOllamaChatStream reads an Ollama /api/chat NDJSON stream. The
// channel closes after the done:true line, on EOF, or on error.
func DecodeOllamaChatStream(ctx context.Context, body io.ReadCloser) <-chan StreamItem[OllamaChatResponse] {
	ch := make(chan StreamItem[OllamaChatResponse], streamChannelBuffer)

	go func() {
		defer close(ch)
		defer body.Close()

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}

			var resp OllamaChatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				sendItem(ctx, ch, StreamItem[OllamaChatResponse]{Err: fmt.Errorf("decode stream line: %w", err)})
				return
			}
			if !sendItem(ctx, ch, StreamItem[OllamaChatResponse]{Value: &resp}) {
				return
			}
			if resp.Done || resp.Error != "" {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sendItem(ctx, ch, StreamItem[OllamaChatResponse]{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch
}

// DecodeOllamaGenerateStream reads an Ollama /api/generate NDJSON stream.
func DecodeOllamaGenerateStream(ctx context.Context, body io.ReadCloser) <-chan StreamItem[OllamaGenerateResponse] {
	ch := make(chan StreamItem[OllamaGenerateResponse], streamChannelBuffer)

	go func() {
		defer close(ch)
		defer body.Close()

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}

			var resp OllamaGenerateResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				sendItem(ctx, ch, StreamItem[OllamaGenerateResponse]{Err: fmt.Errorf("decode stream line: %w", err)})
				return
			}
			if !sendItem(ctx, ch, StreamItem[OllamaGenerateResponse]{Value: &resp}) {
				return
			}
			if resp.Done || resp.Error != "" {
				return
			}
		}
		if err := sc.Err(); err != nil {
			sendItem(ctx, ch, StreamItem[OllamaGenerateResponse]{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch
}

// MarshalNDJSONLine serializes one value as an NDJSON line.
func MarshalNDJSONLine(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal stream line: %w", err)
	}
	return append(data, '\n'), nil
}
