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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/sessions"
)

// Test doubles shared across the package's tests.

type fakeRecorder struct {
	mu      sync.Mutex
	prompts []*models.Prompt
	outputs []*models.Output
	alerts  []models.Alert

	promptErr error
}

func (r *fakeRecorder) RecordPrompt(ctx context.Context, prompt *models.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.promptErr != nil {
		return r.promptErr
	}
	r.prompts = append(r.prompts, prompt)
	return nil
}

func (r *fakeRecorder) RecordOutput(ctx context.Context, output *models.Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, output)
	return nil
}

func (r *fakeRecorder) RecordAlerts(ctx context.Context, alerts []models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alerts...)
	return nil
}

type fakeWorkspaces struct {
	active       models.Workspace
	workspaces   []models.Workspace
	instructions map[string]string
	activated    []string

	activeErr       error
	createErr       error
	activateErr     error
	instructionsErr error
}

func (w *fakeWorkspaces) Active(ctx context.Context) (*models.Workspace, error) {
	if w.activeErr != nil {
		return nil, w.activeErr
	}
	active := w.active
	return &active, nil
}

func (w *fakeWorkspaces) List(ctx context.Context) ([]models.Workspace, error) {
	return w.workspaces, nil
}

func (w *fakeWorkspaces) Create(ctx context.Context, name string) (*models.Workspace, error) {
	if w.createErr != nil {
		return nil, w.createErr
	}
	ws := models.Workspace{ID: "ws-" + name, Name: name}
	w.workspaces = append(w.workspaces, ws)
	return &ws, nil
}

func (w *fakeWorkspaces) Activate(ctx context.Context, name string) error {
	if w.activateErr != nil {
		return w.activateErr
	}
	w.activated = append(w.activated, name)
	return nil
}

func (w *fakeWorkspaces) SetCustomInstructions(ctx context.Context, name, text string) error {
	if w.instructionsErr != nil {
		return w.instructionsErr
	}
	if w.instructions == nil {
		w.instructions = make(map[string]string)
	}
	w.instructions[name] = text
	return nil
}

type fakeOracle struct {
	flagged map[string]models.PackageInfo
	err     error
	queries [][]string
}

func (o *fakeOracle) Search(ctx context.Context, names []string) ([]models.PackageInfo, error) {
	o.queries = append(o.queries, names)
	if o.err != nil {
		return nil, o.err
	}
	var out []models.PackageInfo
	for _, name := range names {
		if pkg, ok := o.flagged[strings.ToLower(name)]; ok {
			out = append(out, pkg)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (p *fakePublisher) Publish(alert models.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
}

// Request and chunk builders.

func userMessage(text string) protocol.OpenAIMessage {
	return protocol.OpenAIMessage{Role: protocol.RoleUser, Content: protocol.StringContent(text)}
}

func systemMessage(text string) protocol.OpenAIMessage {
	return protocol.OpenAIMessage{Role: protocol.RoleSystem, Content: protocol.StringContent(text)}
}

func assistantMessage(text string) protocol.OpenAIMessage {
	return protocol.OpenAIMessage{Role: protocol.RoleAssistant, Content: protocol.StringContent(text)}
}

func chatRequest(messages ...protocol.OpenAIMessage) *protocol.OpenAIChatRequest {
	return &protocol.OpenAIChatRequest{Model: "gpt-4", Messages: messages, Stream: true}
}

func textChunk(text string) *protocol.OpenAIStreamChunk {
	return &protocol.OpenAIStreamChunk{
		ID:      "chunk-1",
		Object:  "chat.completion.chunk",
		Model:   "gpt-4",
		Choices: []protocol.OpenAIStreamChoice{{Delta: protocol.OpenAIDelta{Content: &text}}},
	}
}

func finishChunk(text string) *protocol.OpenAIStreamChunk {
	chunk := textChunk(text)
	stop := "stop"
	chunk.Choices[0].FinishReason = &stop
	return chunk
}

func newTestContext() *Context {
	return NewContext(clients.ClientGeneric, false, sessions.NewManager(sessions.NewStore()))
}

// feed returns a closed input channel preloaded with the given chunks.
func feed(chunks ...*protocol.OpenAIStreamChunk) <-chan streamItem {
	ch := make(chan streamItem, len(chunks))
	for _, chunk := range chunks {
		ch <- streamItem{Value: chunk}
	}
	close(ch)
	return ch
}

// drain collects the full output stream, concatenating delta text.
func drain(t *testing.T, out <-chan streamItem) (chunks []*protocol.OpenAIStreamChunk, text string) {
	t.Helper()
	var b strings.Builder
	for item := range out {
		if item.Err != nil {
			t.Fatalf("unexpected stream error: %v", item.Err)
		}
		chunks = append(chunks, item.Value)
		b.WriteString(chunkText(item.Value))
	}
	return chunks, b.String()
}

func TestContextHoldPrefix(t *testing.T) {
	pctx := newTestContext()

	pctx.HoldPrefix("step-a", "REDACTED<52")
	pctx.HoldPrefix("step-b", "#ab")
	if pctx.PrefixBuffer == "" {
		t.Fatal("PrefixBuffer empty while two steps hold text")
	}
	if !strings.Contains(pctx.PrefixBuffer, "REDACTED<52") || !strings.Contains(pctx.PrefixBuffer, "#ab") {
		t.Errorf("PrefixBuffer = %q, want both holds present", pctx.PrefixBuffer)
	}

	if got := pctx.TakePrefix("step-a"); got != "REDACTED<52" {
		t.Errorf("TakePrefix(step-a) = %q, want %q", got, "REDACTED<52")
	}
	if got := pctx.TakePrefix("step-a"); got != "" {
		t.Errorf("second TakePrefix(step-a) = %q, want empty", got)
	}
	if pctx.PrefixBuffer != "#ab" {
		t.Errorf("PrefixBuffer = %q after taking step-a, want %q", pctx.PrefixBuffer, "#ab")
	}

	pctx.HoldPrefix("step-b", "")
	if pctx.PrefixBuffer != "" {
		t.Errorf("PrefixBuffer = %q after releasing all holds, want empty", pctx.PrefixBuffer)
	}
}

func TestContextAddAlertPublishesCritical(t *testing.T) {
	publisher := &fakePublisher{}
	pctx := newTestContext()
	pctx.Notifier = publisher

	pctx.AddAlert("codegate-secrets", models.AlertCritical, "GitHub token", "line")
	pctx.AddAlert("codegate-secrets-unredaction", models.AlertInfo, "GitHub token", "")

	if len(pctx.Alerts) != 2 {
		t.Fatalf("len(Alerts) = %d, want 2", len(pctx.Alerts))
	}
	if len(publisher.alerts) != 1 {
		t.Fatalf("published %d alerts, want 1 (critical only)", len(publisher.alerts))
	}
	if publisher.alerts[0].TriggerCategory != models.AlertCritical {
		t.Errorf("published category = %q, want critical", publisher.alerts[0].TriggerCategory)
	}
	if pctx.Alerts[0].ID == "" || pctx.Alerts[0].Timestamp.IsZero() {
		t.Error("alert missing id or timestamp")
	}
}

func TestContextCleanupSessionIdempotent(t *testing.T) {
	manager := sessions.NewManager(sessions.NewStore())
	pctx := NewContext(clients.ClientGeneric, false, manager)

	id, err := manager.Store(pctx.SessionID, sessions.SensitiveData{Original: "secret"})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	pctx.CleanupSession()
	if _, ok := manager.GetOriginal(pctx.SessionID, id); ok {
		t.Error("mapping still resolvable after cleanup")
	}
	// Second call must be a no-op, not a panic or double teardown.
	pctx.CleanupSession()
}

func TestFactoryEngines(t *testing.T) {
	factory := &Factory{Version: "0.1.0"}

	chat := factory.InputEngine(false)
	fim := factory.InputEngine(true)
	if len(chat.steps) <= len(fim.steps) {
		t.Errorf("chat pipeline has %d steps, fim %d; chat must carry the conversational steps", len(chat.steps), len(fim.steps))
	}
	for _, step := range fim.steps {
		if step.Name() == cliStepName || step.Name() == systemPromptStepName {
			t.Errorf("fim pipeline contains conversational step %s", step.Name())
		}
	}
	// Redaction first on both: nothing downstream may see cleartext.
	if chat.steps[0].Name() != secretsStepName || fim.steps[0].Name() != secretsStepName {
		t.Error("secrets redaction is not the first input step")
	}

	out := factory.OutputEngine(false)
	if out.steps[0].Name() != secretsUnredactStepName {
		t.Error("secrets unredaction is not the first output step")
	}
	fimOut := factory.OutputEngine(true)
	for _, step := range fimOut.steps {
		if step.Name() == secretsNotifierStepName || step.Name() == codeCommentStepName {
			t.Errorf("fim output pipeline contains notice step %s", step.Name())
		}
	}

	// Advisory steps only exist when an oracle is wired.
	for _, step := range chat.steps {
		if step.Name() == retrieverStepName {
			t.Error("context retriever built without an oracle")
		}
	}
	withOracle := &Factory{Version: "0.1.0", Oracle: &fakeOracle{}}
	found := false
	for _, step := range withOracle.InputEngine(false).steps {
		if step.Name() == retrieverStepName {
			found = true
		}
	}
	if !found {
		t.Error("context retriever missing from oracle-backed chat pipeline")
	}
}

var errBoom = errors.New("boom")
