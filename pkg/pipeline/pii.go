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

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/pii"
	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/sessions"
)

const (
	piiStepName         = "codegate-pii"
	piiUnredactStepName = "codegate-pii-unredaction"
	piiNotifierStepName = "codegate-pii-notifier"
)

// piiNoticeOrder fixes the entity order in user-facing notices.
var piiNoticeOrder = []pii.Entity{
	pii.EmailAddress,
	pii.PhoneNumber,
	pii.CreditCard,
	pii.IBANCode,
	pii.IPAddress,
	pii.USSSN,
	pii.CryptoWallet,
}

// PIIRedactStep replaces personal data in user messages with
// session-scoped placeholders before the request leaves the gateway.
type PIIRedactStep struct {
	analyzer *pii.Analyzer
}

func NewPIIRedactStep(analyzer *pii.Analyzer) *PIIRedactStep {
	return &PIIRedactStep{analyzer: analyzer}
}

func (s *PIIRedactStep) Name() string { return piiStepName }

func (s *PIIRedactStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	placeholders := make(map[string]string)

	for _, msg := range req.GetMessages(protocol.FilterUser) {
		for _, content := range msg.Contents() {
			text, ok := content.GetText()
			if !ok || text == "" {
				continue
			}
			findings := s.analyzer.Analyze(text)
			if len(findings) == 0 {
				continue
			}
			redacted, fresh, err := s.redact(text, findings, placeholders, pctx)
			if err != nil {
				return Result{}, err
			}
			content.SetText(redacted)
			for _, r := range fresh {
				pctx.PIICounts[r.finding.Entity]++
				pctx.AddAlert(piiStepName, models.AlertCritical,
					r.finding.Entity.Description(),
					lineAround(redacted, r.placeholder))
			}
		}
	}
	for _, n := range pctx.PIICounts {
		if n > 0 {
			pctx.PIIFound = true
			break
		}
	}
	return Result{Request: req}, nil
}

type piiRedaction struct {
	finding     pii.Finding
	placeholder string
}

func (s *PIIRedactStep) redact(text string, findings []pii.Finding, placeholders map[string]string, pctx *Context) (string, []piiRedaction, error) {
	var fresh []piiRedaction
	for _, f := range findings {
		if _, seen := placeholders[f.Value]; seen {
			continue
		}
		id, err := pctx.Sensitive.Store(pctx.SessionID, sessions.SensitiveData{
			Original: f.Value,
			Type:     string(f.Entity),
		})
		if err != nil {
			return "", nil, fmt.Errorf("store pii: %w", err)
		}
		placeholders[f.Value] = piiMarker.wrap(id)
		fresh = append(fresh, piiRedaction{finding: f, placeholder: placeholders[f.Value]})
	}

	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		text = text[:f.Start] + placeholders[f.Value] + text[f.End:]
	}
	return text, fresh, nil
}

// PIIUnredactStep restores PII placeholders the model echoed back,
// holding chunk tails that may be a placeholder split across chunks.
type PIIUnredactStep struct{}

func NewPIIUnredactStep() *PIIUnredactStep { return &PIIUnredactStep{} }

func (s *PIIUnredactStep) Name() string { return piiUnredactStepName }

func (s *PIIUnredactStep) Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error) {
	return unredactChunk(chunk, pctx, s.Name(), piiMarker, func(id string) (string, bool) {
		data, ok := pctx.Sensitive.Get(pctx.SessionID, id)
		if !ok {
			slog.Warn("unknown pii placeholder in response", "session_id", pctx.SessionID)
			return "", false
		}
		pctx.AddAlert(piiUnredactStepName, models.AlertInfo, data.Type, "")
		return data.Original, true
	})
}

// PIINotifierStep prepends a one-time markdown notice describing what
// personal data was redacted, broken down by kind.
type PIINotifierStep struct {
	dashboardURL string
	fired        bool
}

func NewPIINotifierStep(dashboardURL string) *PIINotifierStep {
	return &PIINotifierStep{dashboardURL: dashboardURL}
}

func (s *PIINotifierStep) Name() string { return piiNotifierStepName }

func (s *PIINotifierStep) Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error) {
	if s.fired || len(pctx.PIICounts) == 0 || chunkText(chunk) == "" {
		return []*protocol.OpenAIStreamChunk{chunk}, nil
	}
	s.fired = true
	return []*protocol.OpenAIStreamChunk{noticeChunk(chunk, piiNotice(pctx.PIICounts, s.dashboardURL)), chunk}, nil
}

func piiNotice(counts map[pii.Entity]int, dashboardURL string) string {
	total := 0
	details := make([]string, 0, len(counts))
	for _, entity := range piiNoticeOrder {
		n := counts[entity]
		if n == 0 {
			continue
		}
		total += n
		kind := entity.Description()
		if n > 1 {
			kind += "s"
		}
		details = append(details, fmt.Sprintf("%d %s", n, kind))
	}
	word := "instances"
	if total == 1 {
		word = "instance"
	}
	return fmt.Sprintf("🛡️ [CodeGate protected %d %s of PII, including %s](%s/?view=codegate-pii) from being leaked by redacting them.\n\n",
		total, word, strings.Join(details, ", "), strings.TrimSuffix(dashboardURL, "/"))
}
