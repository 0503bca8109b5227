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
	"log/slog"
	"strings"

	"github.com/kadirpekel/codegate/pkg/prompts"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const systemPromptStepName = "codegate-system-prompt"

// SystemPromptStep rewrites the request's system prompt: the gateway's
// per-client prompt first, then the active workspace's custom
// instructions, then whatever system prompt the client sent, and finally
// the redaction preambles when earlier steps replaced values. A client
// prompt that already carries a CodeGate section (a previous turn passed
// through the gateway) is dropped rather than stacked.
type SystemPromptStep struct {
	workspaces WorkspaceService
	catalog    *prompts.Catalog
}

func NewSystemPromptStep(workspaces WorkspaceService, catalog *prompts.Catalog) *SystemPromptStep {
	return &SystemPromptStep{workspaces: workspaces, catalog: catalog}
}

func (s *SystemPromptStep) Name() string { return systemPromptStepName }

func (s *SystemPromptStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	sections := []string{s.catalog.ForClient(string(pctx.Client))}

	if s.workspaces != nil {
		active, err := s.workspaces.Active(ctx)
		if err != nil {
			// The gateway prompt still applies without the workspace row.
			slog.Warn("failed to resolve active workspace", "session_id", pctx.SessionID, "error", err)
		} else if active.CustomInstructions != "" {
			sections = append(sections, "Workspace custom instructions:\n"+active.CustomInstructions)
		}
	}

	for _, existing := range req.GetSystemPrompt() {
		if existing == "" || strings.Contains(strings.ToLower(existing), "codegate") {
			continue
		}
		sections = append(sections, existing)
	}

	if pctx.SecretsFound && s.catalog.SecretsRedacted != "" {
		sections = append(sections, s.catalog.SecretsRedacted)
	}
	if pctx.PIIFound && s.catalog.PIIRedacted != "" {
		sections = append(sections, s.catalog.PIIRedacted)
	}

	req.SetSystemPrompt(strings.Join(sections, "\n\n"))
	return Result{Request: req}, nil
}
