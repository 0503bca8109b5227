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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

type streamItem = protocol.StreamItem[protocol.OpenAIStreamChunk]

// OutputEngine runs a response stream through its steps in order,
// preserving chunk order end to end. When the stream finishes, on any
// path, it records the output row, persists collected alerts and tears
// down the session's sensitive-data mappings exactly once.
type OutputEngine struct {
	steps    []OutputStep
	recorder Recorder
}

// NewOutputEngine builds an engine over the given steps. A nil recorder
// disables output and alert persistence; session cleanup still runs.
func NewOutputEngine(recorder Recorder, steps ...OutputStep) *OutputEngine {
	return &OutputEngine{steps: steps, recorder: recorder}
}

// Process consumes in and returns the processed stream. The returned
// channel is closed when the input closes, an error frame is forwarded,
// a step fails, or ctx is canceled.
func (e *OutputEngine) Process(ctx context.Context, in <-chan protocol.StreamItem[protocol.OpenAIStreamChunk], pctx *Context) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	out := make(chan streamItem)
	go e.run(ctx, in, out, pctx)
	return out
}

func (e *OutputEngine) run(ctx context.Context, in <-chan streamItem, out chan<- streamItem, pctx *Context) {
	var text strings.Builder
	var usage *protocol.OpenAIUsage

	defer close(out)
	defer e.finish(ctx, pctx, &text, &usage)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("output pipeline panic", "session_id", pctx.SessionID, "panic", r)
			e.send(ctx, out, errorFrame(fmt.Errorf("output pipeline panic: %v", r)))
		}
	}()

	for item := range in {
		if item.Err != nil {
			e.send(ctx, out, item)
			return
		}
		// Upstream error frames are forwarded verbatim; steps only see
		// well-formed chunks.
		if item.Value.Error != nil {
			e.send(ctx, out, item)
			return
		}

		// Record what the upstream actually produced, before any step
		// restores placeholders: persisted rows never hold cleartext.
		text.WriteString(chunkText(item.Value))
		if item.Value.Usage != nil {
			usage = item.Value.Usage
		}

		chunks := []*protocol.OpenAIStreamChunk{item.Value}
		for _, step := range e.steps {
			var next []*protocol.OpenAIStreamChunk
			var stepErr error
			for _, chunk := range chunks {
				produced, err := step.Process(ctx, chunk, pctx)
				if err != nil {
					stepErr = fmt.Errorf("step %s: %w", step.Name(), err)
					break
				}
				next = append(next, produced...)
			}
			if stepErr != nil {
				slog.Error("output step failed", "session_id", pctx.SessionID, "error", stepErr)
				e.send(ctx, out, errorFrame(stepErr))
				return
			}
			chunks = next
			if len(chunks) == 0 {
				break
			}
		}

		// A pause consumed the chunk whole: remember its text until the
		// held tail resolves and chunks flow again.
		if len(chunks) == 0 {
			pctx.Buffer = append(pctx.Buffer, chunkText(item.Value))
			continue
		}
		pctx.Buffer = nil

		for _, chunk := range chunks {
			if !e.send(ctx, out, streamItem{Value: chunk}) {
				return
			}
		}
	}

	// Text still held back at stream end would desynchronize clients that
	// already saw the surrounding chunks, so it is dropped, not flushed.
	if len(pctx.Buffer) > 0 || pctx.PrefixBuffer != "" {
		slog.Warn("discarding dangling output buffer",
			"session_id", pctx.SessionID,
			"chunks", len(pctx.Buffer),
			"prefix_len", len(pctx.PrefixBuffer))
		pctx.Buffer = nil
		pctx.PrefixBuffer = ""
	}
}

// finish persists the stream's records and releases the session. It runs
// on every exit path, including panic and cancellation, so persistence
// uses a context detached from the request's.
func (e *OutputEngine) finish(ctx context.Context, pctx *Context, text *strings.Builder, usage **protocol.OpenAIUsage) {
	defer pctx.CleanupSession()
	if e.recorder == nil {
		return
	}
	persistCtx := context.WithoutCancel(ctx)

	if len(pctx.Alerts) > 0 {
		if err := e.recorder.RecordAlerts(persistCtx, pctx.Alerts); err != nil {
			slog.Error("failed to record alerts", "prompt_id", pctx.PromptID, "error", err)
		}
	}
	if pctx.PromptID == "" {
		// The input pipeline never finished; there is no prompt row to
		// attach an output to.
		return
	}
	output := &models.Output{
		ID:         uuid.NewString(),
		PromptID:   pctx.PromptID,
		Timestamp:  time.Now().UTC(),
		OutputText: text.String(),
	}
	if u := *usage; u != nil {
		inTokens, outTokens := u.PromptTokens, u.CompletionTokens
		output.InputTokens = &inTokens
		output.OutputTokens = &outTokens
	}
	if err := e.recorder.RecordOutput(persistCtx, output); err != nil {
		slog.Error("failed to record output", "prompt_id", pctx.PromptID, "error", err)
	}
}

func (e *OutputEngine) send(ctx context.Context, out chan<- streamItem, item streamItem) bool {
	select {
	case out <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorFrame(err error) streamItem {
	return streamItem{Value: &protocol.OpenAIStreamChunk{
		Error: &protocol.OpenAIError{Message: err.Error(), Type: "pipeline_error"},
	}}
}

// chunkText concatenates the delta text of every choice in the chunk.
func chunkText(chunk *protocol.OpenAIStreamChunk) string {
	var b strings.Builder
	for i := range chunk.Choices {
		if t, ok := chunk.Choices[i].Delta.GetText(); ok {
			b.WriteString(t)
		}
	}
	return b.String()
}

// ShortcutStream synthesizes the one-chunk stream that delivers a local
// answer, so shortcut responses ride the same output path, teardown
// included, as proxied ones.
func ShortcutStream(s *Shortcut) <-chan protocol.StreamItem[protocol.OpenAIStreamChunk] {
	content := s.Content
	stop := "stop"
	chunk := &protocol.OpenAIStreamChunk{
		ID:      "codegate-" + uuid.NewString(),
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   s.Model,
		Choices: []protocol.OpenAIStreamChoice{{
			Delta:        protocol.OpenAIDelta{Role: "assistant", Content: &content},
			FinishReason: &stop,
		}},
	}
	ch := make(chan streamItem, 1)
	ch <- streamItem{Value: chunk}
	close(ch)
	return ch
}
