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
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

// InputEngine runs a request through its steps in order.
type InputEngine struct {
	steps    []Step
	recorder Recorder
}

// NewInputEngine builds an engine over the given steps. A nil recorder
// disables prompt persistence.
func NewInputEngine(recorder Recorder, steps ...Step) *InputEngine {
	return &InputEngine{steps: steps, recorder: recorder}
}

// Run executes the pipeline. It returns the final request to send
// upstream, or a non-nil Shortcut when a step answered locally. The
// prompt row is recorded after the last step ran, so stored text is
// already redacted.
func (e *InputEngine) Run(ctx context.Context, req protocol.Request, pctx *Context) (protocol.Request, *Shortcut, error) {
	current := req
	for _, step := range e.steps {
		result, err := step.Process(ctx, current, pctx)
		if err != nil {
			return nil, nil, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		if result.Request != nil {
			current = result.Request
		}
		if result.Shortcut != nil {
			e.recordPrompt(ctx, current, pctx)
			return current, result.Shortcut, nil
		}
	}
	e.recordPrompt(ctx, current, pctx)
	return current, nil, nil
}

// recordPrompt assigns the prompt id, backfills it onto alerts raised by
// earlier steps and persists the row. Persistence failures are logged,
// never fatal: the request still goes upstream.
func (e *InputEngine) recordPrompt(ctx context.Context, req protocol.Request, pctx *Context) {
	pctx.PromptID = uuid.NewString()
	for i := range pctx.Alerts {
		if pctx.Alerts[i].PromptID == "" {
			pctx.Alerts[i].PromptID = pctx.PromptID
		}
	}
	if e.recorder == nil {
		return
	}

	promptType := models.PromptChat
	if pctx.FIM {
		promptType = models.PromptFIM
	}
	prompt := &models.Prompt{
		ID:          pctx.PromptID,
		WorkspaceID: pctx.WorkspaceID,
		Timestamp:   time.Now().UTC(),
		Provider:    pctx.Provider,
		RequestText: req.GetPrompt(""),
		Type:        promptType,
		ClientType:  string(pctx.Client),
	}
	if err := e.recorder.RecordPrompt(ctx, prompt); err != nil {
		slog.Error("failed to record prompt", "prompt_id", pctx.PromptID, "error", err)
	}
}
