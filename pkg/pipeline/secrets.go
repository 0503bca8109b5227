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
	"strconv"
	"strings"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/secrets"
	"github.com/kadirpekel/codegate/pkg/sessions"
)

const (
	secretsStepName         = "codegate-secrets"
	secretsUnredactStepName = "codegate-secrets-unredaction"
	secretsNotifierStepName = "codegate-secrets-notifier"
)

// SecretsRedactStep replaces detected credentials in user messages with
// session-scoped placeholders before the request leaves the gateway.
type SecretsRedactStep struct {
	engine *secrets.Engine
}

func NewSecretsRedactStep(engine *secrets.Engine) *SecretsRedactStep {
	return &SecretsRedactStep{engine: engine}
}

func (s *SecretsRedactStep) Name() string { return secretsStepName }

func (s *SecretsRedactStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	// Repeated values share one placeholder across the whole request so
	// the upstream model sees a consistent token.
	placeholders := make(map[string]string)

	for _, msg := range req.GetMessages(protocol.FilterUser) {
		for _, content := range msg.Contents() {
			text, ok := content.GetText()
			if !ok || text == "" {
				continue
			}
			matches := s.engine.Scan(text)
			if len(matches) == 0 {
				continue
			}
			redacted, fresh, err := s.redact(text, matches, placeholders, pctx)
			if err != nil {
				return Result{}, err
			}
			content.SetText(redacted)
			for _, r := range fresh {
				pctx.SecretCount++
				pctx.AddAlert(secretsStepName, models.AlertCritical,
					r.match.Service+" "+r.match.Type,
					lineAround(redacted, r.placeholder))
			}
		}
	}
	if pctx.SecretCount > 0 {
		pctx.SecretsFound = true
	}
	return Result{Request: req}, nil
}

type redaction struct {
	match       secrets.Match
	placeholder string
}

// redact splices placeholders over the matches and returns the rewritten
// text plus the matches that got a new placeholder, in text order. A
// store failure aborts the request: forwarding the cleartext credential
// is never an option.
func (s *SecretsRedactStep) redact(text string, matches []secrets.Match, placeholders map[string]string, pctx *Context) (string, []redaction, error) {
	var fresh []redaction
	for _, m := range matches {
		if _, seen := placeholders[m.Value]; seen {
			continue
		}
		id, err := pctx.Sensitive.Store(pctx.SessionID, sessions.SensitiveData{
			Original: m.Value,
			Service:  m.Service,
			Type:     m.Type,
		})
		if err != nil {
			return "", nil, fmt.Errorf("store secret: %w", err)
		}
		placeholders[m.Value] = secretMarker.wrap(id)
		fresh = append(fresh, redaction{match: m, placeholder: placeholders[m.Value]})
	}

	// Splice back to front so earlier offsets stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		text = text[:m.Start] + placeholders[m.Value] + text[m.End:]
	}
	return text, fresh, nil
}

// lineAround returns the redacted line containing the placeholder, for
// alert snippets that must never hold the original value.
func lineAround(text, placeholder string) string {
	idx := strings.Index(text, placeholder)
	if idx < 0 {
		return ""
	}
	start := strings.LastIndexByte(text[:idx], '\n') + 1
	if end := strings.IndexByte(text[idx:], '\n'); end >= 0 {
		return text[start : idx+end]
	}
	return text[start:]
}

// SecretsUnredactStep restores placeholders the model echoed back to the
// original values, holding chunk tails that may be a placeholder split
// across chunk boundaries.
type SecretsUnredactStep struct{}

func NewSecretsUnredactStep() *SecretsUnredactStep { return &SecretsUnredactStep{} }

func (s *SecretsUnredactStep) Name() string { return secretsUnredactStepName }

func (s *SecretsUnredactStep) Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error) {
	return unredactChunk(chunk, pctx, s.Name(), secretMarker, func(id string) (string, bool) {
		data, ok := pctx.Sensitive.Get(pctx.SessionID, id)
		if !ok {
			slog.Warn("unknown secret placeholder in response", "session_id", pctx.SessionID)
			return "", false
		}
		pctx.AddAlert(secretsUnredactStepName, models.AlertInfo, data.Service+" "+data.Type, "")
		return data.Original, true
	})
}

// unredactChunk is the shared restore-or-hold walk for both placeholder
// syntaxes. Every choice is scanned: a multi-choice stream interleaves
// choices across chunks, so each (step, choice index) pair owns its own
// prefix slot on the context.
func unredactChunk(chunk *protocol.OpenAIStreamChunk, pctx *Context, stepName string, m marker, resolve func(id string) (string, bool)) ([]*protocol.OpenAIStreamChunk, error) {
	forward := []*protocol.OpenAIStreamChunk{chunk}
	if len(chunk.Choices) == 0 {
		return forward, nil
	}

	releasable, holding := false, false
	for i := range chunk.Choices {
		choice := &chunk.Choices[i]
		slot := choiceSlot(stepName, choice.Index)
		text, hasText := choice.Delta.GetText()
		held := pctx.TakePrefix(slot)
		if !hasText && held == "" {
			continue
		}

		restored := m.restore(held+text, resolve)

		if choice.FinishReason == nil {
			if head, pending := m.splitPartial(restored); pending != "" {
				pctx.HoldPrefix(slot, pending)
				holding = true
				// An empty head still overwrites the delta: the tail it
				// carried is parked, not forwardable.
				choice.Delta.SetText(head)
				if head != "" {
					releasable = true
				}
				continue
			}
		} else if stripped, ok := m.stripTruncated(restored); ok {
			// The choice is over; an unfinished placeholder can only
			// confuse the client, so it is dropped rather than flushed.
			slog.Warn("dropping truncated placeholder at stream end",
				"session_id", pctx.SessionID, "step", stepName, "choice", choice.Index)
			restored = stripped
		}

		if hasText || restored != "" {
			choice.Delta.SetText(restored)
		}
		if restored != "" {
			releasable = true
		}
	}

	// Pause only when every scanned choice is waiting on a possible
	// placeholder tail; a finished or releasable choice must flow through.
	if holding && !releasable && !chunkFinished(chunk) {
		return nil, nil
	}
	return forward, nil
}

// choiceSlot keys a step's held prefix per stream choice.
func choiceSlot(stepName string, index int) string {
	return stepName + "#" + strconv.Itoa(index)
}

// SecretsNotifierStep prepends a one-time markdown notice to the response
// once real content starts flowing, telling the user how many credentials
// were redacted on the way in.
type SecretsNotifierStep struct {
	dashboardURL string
	fired        bool
}

func NewSecretsNotifierStep(dashboardURL string) *SecretsNotifierStep {
	return &SecretsNotifierStep{dashboardURL: dashboardURL}
}

func (s *SecretsNotifierStep) Name() string { return secretsNotifierStepName }

func (s *SecretsNotifierStep) Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error) {
	if s.fired || pctx.SecretCount == 0 || chunkText(chunk) == "" {
		return []*protocol.OpenAIStreamChunk{chunk}, nil
	}
	s.fired = true
	return []*protocol.OpenAIStreamChunk{noticeChunk(chunk, secretsNotice(pctx.SecretCount, s.dashboardURL)), chunk}, nil
}

func secretsNotice(n int, dashboardURL string) string {
	base := strings.TrimSuffix(dashboardURL, "/")
	if n == 1 {
		return fmt.Sprintf("🛡️ [CodeGate prevented 1 secret](%s/?view=codegate-secrets) from being leaked by redacting it.\n\n", base)
	}
	return fmt.Sprintf("🛡️ [CodeGate prevented %d secrets](%s/?view=codegate-secrets) from being leaked by redacting them.\n\n", n, base)
}
