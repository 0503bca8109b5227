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
	"fmt"
	"strings"
	"unicode"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const cliStepName = "codegate-cli"

const cliUsage = "CodeGate CLI\n\n" +
	"Available commands:\n" +
	"- `codegate version`\n" +
	"- `codegate workspace list`\n" +
	"- `codegate workspace add <name>`\n" +
	"- `codegate workspace activate <name>`\n" +
	"- `codegate workspace system-prompt <name> <text>`\n" +
	"- `codegate custom-instructions show|set <text>|reset`\n"

// CLIStep answers chat messages addressed to the gateway itself. A last
// user message starting with "codegate" never reaches the provider; the
// step short-circuits with a locally rendered markdown reply. Service
// failures are rendered into the reply too, not returned as step errors.
type CLIStep struct {
	workspaces WorkspaceService
	version    string
}

func NewCLIStep(workspaces WorkspaceService, version string) *CLIStep {
	return &CLIStep{workspaces: workspaces, version: version}
}

func (s *CLIStep) Name() string { return cliStepName }

func (s *CLIStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	msg, _ := req.LastUserMessage()
	if msg == nil {
		return Result{}, nil
	}
	text := clients.StripEnvelope(pctx.Client, protocol.MessageText(msg))
	cmd, rest := nextToken(text)
	if !strings.EqualFold(cmd, "codegate") {
		return Result{}, nil
	}
	return Result{Shortcut: &Shortcut{
		Content:  s.run(ctx, rest),
		StepName: cliStepName,
		Model:    req.GetModel(),
	}}, nil
}

func (s *CLIStep) run(ctx context.Context, args string) string {
	verb, rest := nextToken(args)
	switch strings.ToLower(verb) {
	case "version":
		return "CodeGate version: " + s.version
	case "workspace":
		return s.workspace(ctx, rest)
	case "custom-instructions":
		return s.customInstructions(ctx, rest)
	default:
		return cliUsage
	}
}

func (s *CLIStep) workspace(ctx context.Context, args string) string {
	sub, rest := nextToken(args)
	switch strings.ToLower(sub) {
	case "list":
		return s.listWorkspaces(ctx)
	case "add":
		name, _ := nextToken(rest)
		if name == "" {
			return "Usage: `codegate workspace add <name>`"
		}
		if _, err := s.workspaces.Create(ctx, name); err != nil {
			if errors.Is(err, models.ErrWorkspaceExists) {
				return fmt.Sprintf("Workspace **%s** already exists", name)
			}
			return "Unable to add workspace: " + err.Error()
		}
		return fmt.Sprintf("Workspace **%s** has been added", name)
	case "activate":
		name, _ := nextToken(rest)
		if name == "" {
			return "Usage: `codegate workspace activate <name>`"
		}
		if err := s.workspaces.Activate(ctx, name); err != nil {
			switch {
			case errors.Is(err, models.ErrWorkspaceNotFound):
				return fmt.Sprintf("Workspace **%s** does not exist", name)
			case errors.Is(err, models.ErrWorkspaceAlreadyActive):
				return fmt.Sprintf("Workspace **%s** is already active", name)
			default:
				return "Unable to activate workspace: " + err.Error()
			}
		}
		return fmt.Sprintf("Workspace **%s** is now active", name)
	case "system-prompt":
		name, text := nextToken(rest)
		if name == "" || text == "" {
			return "Usage: `codegate workspace system-prompt <name> <text>`"
		}
		if err := s.workspaces.SetCustomInstructions(ctx, name, text); err != nil {
			if errors.Is(err, models.ErrWorkspaceNotFound) {
				return fmt.Sprintf("Workspace **%s** does not exist", name)
			}
			return "Unable to set system prompt: " + err.Error()
		}
		return fmt.Sprintf("System prompt for workspace **%s** has been updated", name)
	default:
		return cliUsage
	}
}

func (s *CLIStep) listWorkspaces(ctx context.Context) string {
	workspaces, err := s.workspaces.List(ctx)
	if err != nil {
		return "Unable to list workspaces: " + err.Error()
	}
	activeName := ""
	if active, err := s.workspaces.Active(ctx); err == nil && active != nil {
		activeName = active.Name
	}
	var b strings.Builder
	b.WriteString("Workspaces:\n")
	for _, ws := range workspaces {
		b.WriteString("- ")
		b.WriteString(ws.Name)
		if ws.Name == activeName {
			b.WriteString(" **(active)**")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *CLIStep) customInstructions(ctx context.Context, args string) string {
	sub, rest := nextToken(args)
	active, err := s.workspaces.Active(ctx)
	if err != nil {
		return "Unable to resolve the active workspace: " + err.Error()
	}
	switch strings.ToLower(sub) {
	case "show":
		if active.CustomInstructions == "" {
			return fmt.Sprintf("Workspace **%s** has no custom instructions", active.Name)
		}
		return fmt.Sprintf("Custom instructions for workspace **%s**:\n\n%s", active.Name, active.CustomInstructions)
	case "set":
		if rest == "" {
			return "Usage: `codegate custom-instructions set <text>`"
		}
		if err := s.workspaces.SetCustomInstructions(ctx, active.Name, rest); err != nil {
			return "Unable to set custom instructions: " + err.Error()
		}
		return fmt.Sprintf("Custom instructions for workspace **%s** have been updated", active.Name)
	case "reset":
		if err := s.workspaces.SetCustomInstructions(ctx, active.Name, ""); err != nil {
			return "Unable to reset custom instructions: " + err.Error()
		}
		return fmt.Sprintf("Custom instructions for workspace **%s** have been reset", active.Name)
	default:
		return cliUsage
	}
}

// nextToken cuts the first whitespace-delimited token off s, preserving
// the remainder's internal formatting so multi-line arguments survive.
func nextToken(s string) (token, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" {
		return "", ""
	}
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	return s, ""
}
