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

// Package pipeline runs requests and response streams through ordered
// policy steps.
//
// The input pipeline walks a normalized request through steps that can
// rewrite it, short-circuit it with a local answer, or fail it. The output
// pipeline walks every upstream chunk through streaming steps that can
// split a chunk into several, or pause and buffer text until a marker that
// spans chunk boundaries completes. Both pipelines share a per-request
// Context carrying the session's sensitive-data mappings, collected code
// snippets and raised alerts.
//
// Engines and steps are built per request: steps carry per-stream state
// and must not be shared.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/pii"
	"github.com/kadirpekel/codegate/pkg/protocol"
	"github.com/kadirpekel/codegate/pkg/sessions"
)

// Step is one input pipeline stage.
type Step interface {
	Name() string
	// Process inspects and possibly rewrites the request. Returning a
	// Result with a Shortcut stops the pipeline; returning an error
	// aborts the request.
	Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error)
}

// Result is the outcome of one input step.
type Result struct {
	// Request is the possibly-rewritten request to hand to the next step.
	// Nil means the step left the request untouched.
	Request protocol.Request
	// Shortcut, when non-nil, answers the request locally.
	Shortcut *Shortcut
}

// Shortcut is a locally-produced answer delivered as a synthesized
// one-chunk stream; no upstream call is made.
type Shortcut struct {
	Content  string
	StepName string
	Model    string
}

// OutputStep is one streaming output stage. It receives chunks in
// upstream order and returns the chunks to forward: one-to-one for plain
// rewrites, one-to-many to inject chunks, or none to pause while text is
// buffered on the Context until the next chunk arrives.
type OutputStep interface {
	Name() string
	Process(ctx context.Context, chunk *protocol.OpenAIStreamChunk, pctx *Context) ([]*protocol.OpenAIStreamChunk, error)
}

// Recorder persists prompts, outputs and alerts. Implementations must be
// safe for concurrent use.
type Recorder interface {
	RecordPrompt(ctx context.Context, prompt *models.Prompt) error
	RecordOutput(ctx context.Context, output *models.Output) error
	RecordAlerts(ctx context.Context, alerts []models.Alert) error
}

// WorkspaceService exposes the workspace operations the CLI and
// system-prompt steps need.
type WorkspaceService interface {
	Active(ctx context.Context) (*models.Workspace, error)
	List(ctx context.Context) ([]models.Workspace, error)
	Create(ctx context.Context, name string) (*models.Workspace, error)
	Activate(ctx context.Context, name string) error
	SetCustomInstructions(ctx context.Context, name, text string) error
}

// PackageOracle answers which of the candidate package names are known
// to be malicious, deprecated or archived.
type PackageOracle interface {
	Search(ctx context.Context, names []string) ([]models.PackageInfo, error)
}

// AlertPublisher receives critical alerts as they are raised, ahead of
// persistence. Publish must not block.
type AlertPublisher interface {
	Publish(alert models.Alert)
}

// Context is the per-request state threaded through both pipelines.
type Context struct {
	Client      clients.ClientType
	FIM         bool
	SessionID   string
	WorkspaceID string
	Provider    string

	// PromptID is set once the input engine records the prompt; alerts
	// are stamped with it when persisted.
	PromptID string

	Snippets []clients.Snippet
	Alerts   []models.Alert

	SecretsFound     bool
	PIIFound         bool
	BadPackagesFound bool

	// SecretCount and PIICounts feed the notifier steps.
	SecretCount int
	PIICounts   map[pii.Entity]int

	Sensitive *sessions.Manager
	Notifier  AlertPublisher

	// Output look-ahead state. The engine appends the text of fully-paused
	// chunks to Buffer; steps park undecided tails via HoldPrefix, which
	// keeps PrefixBuffer mirrored. Both must be empty when the stream ends.
	Buffer       []string
	PrefixBuffer string

	prefixes map[string]string
	cleanup  sync.Once
}

// NewContext creates the per-request context with a fresh session id.
func NewContext(client clients.ClientType, fim bool, sensitive *sessions.Manager) *Context {
	return &Context{
		Client:    client,
		FIM:       fim,
		SessionID: uuid.NewString(),
		Sensitive: sensitive,
		PIICounts: make(map[pii.Entity]int),
	}
}

// AddAlert raises an alert. Critical alerts are also published to the
// notifier immediately; persistence happens at stream teardown.
func (c *Context) AddAlert(triggerType string, category models.AlertCategory, triggerString, snippet string) {
	alert := models.Alert{
		ID:              uuid.NewString(),
		PromptID:        c.PromptID,
		TriggerType:     triggerType,
		TriggerCategory: category,
		TriggerString:   triggerString,
		CodeSnippet:     snippet,
		Timestamp:       time.Now().UTC(),
	}
	c.Alerts = append(c.Alerts, alert)
	if category == models.AlertCritical && c.Notifier != nil {
		c.Notifier.Publish(alert)
	}
}

// HoldPrefix parks text the named step cannot release yet because it may
// be the start of a placeholder split across chunks. An empty pending
// releases the step's hold. Every buffering step gets its own slot; two
// steps holding at once must not clobber each other.
func (c *Context) HoldPrefix(step, pending string) {
	if c.prefixes == nil {
		c.prefixes = make(map[string]string)
	}
	if pending == "" {
		delete(c.prefixes, step)
	} else {
		c.prefixes[step] = pending
	}
	c.syncPrefix()
}

// TakePrefix removes and returns the named step's parked text.
func (c *Context) TakePrefix(step string) string {
	pending, ok := c.prefixes[step]
	if !ok {
		return ""
	}
	delete(c.prefixes, step)
	c.syncPrefix()
	return pending
}

func (c *Context) syncPrefix() {
	var b strings.Builder
	for _, pending := range c.prefixes {
		b.WriteString(pending)
	}
	c.PrefixBuffer = b.String()
}

// CleanupSession tears down the session's sensitive-data mappings.
// Idempotent; runs at most once per context.
func (c *Context) CleanupSession() {
	c.cleanup.Do(func() {
		if c.Sensitive != nil {
			c.Sensitive.CleanupSession(c.SessionID)
		}
	})
}
