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
	"strings"
	"testing"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
)

func TestCLIStepVersion(t *testing.T) {
	step := NewCLIStep(&fakeWorkspaces{}, "0.1.0")
	pctx := newTestContext()
	req := chatRequest(userMessage("codegate version"))

	result, err := step.Process(context.Background(), req, pctx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Shortcut == nil {
		t.Fatal("no shortcut for a gateway command")
	}
	if result.Shortcut.Content != "CodeGate version: 0.1.0" {
		t.Errorf("content = %q, want version reply", result.Shortcut.Content)
	}
	if result.Shortcut.Model != "gpt-4" {
		t.Errorf("shortcut model = %q, want request model", result.Shortcut.Model)
	}
}

func TestCLIStepIgnoresOrdinaryChat(t *testing.T) {
	step := NewCLIStep(&fakeWorkspaces{}, "0.1.0")
	pctx := newTestContext()

	for _, text := range []string{
		"how do I use codegate?",
		"write a poem",
		"",
	} {
		req := chatRequest(userMessage(text))
		result, err := step.Process(context.Background(), req, pctx)
		if err != nil {
			t.Fatalf("Process(%q) error = %v", text, err)
		}
		if result.Shortcut != nil {
			t.Errorf("Process(%q) produced a shortcut", text)
		}
	}
}

func TestCLIStepStripsClientEnvelope(t *testing.T) {
	step := NewCLIStep(&fakeWorkspaces{}, "0.1.0")
	pctx := NewContext(clients.ClientCline, false, nil)
	req := chatRequest(userMessage("<task>\ncodegate version\n</task>"))

	result, err := step.Process(context.Background(), req, pctx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Shortcut == nil {
		t.Fatal("command inside a Cline envelope not recognized")
	}
	if !strings.HasPrefix(result.Shortcut.Content, "CodeGate version:") {
		t.Errorf("content = %q", result.Shortcut.Content)
	}
}

func TestCLIStepWorkspaceCommands(t *testing.T) {
	ws := &fakeWorkspaces{
		active: models.Workspace{ID: "ws-default", Name: "default"},
		workspaces: []models.Workspace{
			{ID: "ws-default", Name: "default"},
			{ID: "ws-experiments", Name: "experiments"},
		},
	}
	step := NewCLIStep(ws, "0.1.0")
	pctx := newTestContext()

	run := func(t *testing.T, text string) string {
		t.Helper()
		result, err := step.Process(context.Background(), chatRequest(userMessage(text)), pctx)
		if err != nil {
			t.Fatalf("Process(%q) error = %v", text, err)
		}
		if result.Shortcut == nil {
			t.Fatalf("Process(%q) produced no shortcut", text)
		}
		return result.Shortcut.Content
	}

	t.Run("list marks active", func(t *testing.T) {
		got := run(t, "codegate workspace list")
		if !strings.Contains(got, "- default **(active)**") || !strings.Contains(got, "- experiments") {
			t.Errorf("list = %q", got)
		}
	})

	t.Run("add", func(t *testing.T) {
		got := run(t, "codegate workspace add staging")
		if got != "Workspace **staging** has been added" {
			t.Errorf("add = %q", got)
		}
	})

	t.Run("add duplicate", func(t *testing.T) {
		ws.createErr = models.ErrWorkspaceExists
		defer func() { ws.createErr = nil }()
		got := run(t, "codegate workspace add default")
		if got != "Workspace **default** already exists" {
			t.Errorf("add duplicate = %q", got)
		}
	})

	t.Run("activate", func(t *testing.T) {
		got := run(t, "codegate workspace activate experiments")
		if got != "Workspace **experiments** is now active" {
			t.Errorf("activate = %q", got)
		}
		if len(ws.activated) != 1 || ws.activated[0] != "experiments" {
			t.Errorf("activated = %v", ws.activated)
		}
	})

	t.Run("activate missing", func(t *testing.T) {
		ws.activateErr = models.ErrWorkspaceNotFound
		defer func() { ws.activateErr = nil }()
		got := run(t, "codegate workspace activate nope")
		if got != "Workspace **nope** does not exist" {
			t.Errorf("activate missing = %q", got)
		}
	})

	t.Run("system-prompt", func(t *testing.T) {
		got := run(t, "codegate workspace system-prompt experiments be terse\nand cite sources.")
		if got != "System prompt for workspace **experiments** has been updated" {
			t.Errorf("system-prompt = %q", got)
		}
		// The prompt text lands on the named workspace, not the active
		// one, with multi-line formatting intact.
		if stored := ws.instructions["experiments"]; stored != "be terse\nand cite sources." {
			t.Errorf("stored prompt = %q", stored)
		}
	})

	t.Run("system-prompt missing workspace", func(t *testing.T) {
		ws.instructionsErr = models.ErrWorkspaceNotFound
		defer func() { ws.instructionsErr = nil }()
		got := run(t, "codegate workspace system-prompt nope be terse")
		if got != "Workspace **nope** does not exist" {
			t.Errorf("system-prompt missing = %q", got)
		}
	})

	t.Run("system-prompt without text renders usage", func(t *testing.T) {
		got := run(t, "codegate workspace system-prompt experiments")
		if got != "Usage: `codegate workspace system-prompt <name> <text>`" {
			t.Errorf("system-prompt usage = %q", got)
		}
	})

	t.Run("unknown verb renders usage", func(t *testing.T) {
		got := run(t, "codegate frobnicate")
		if !strings.Contains(got, "Available commands:") {
			t.Errorf("usage = %q", got)
		}
	})
}

func TestCLIStepCustomInstructions(t *testing.T) {
	ws := &fakeWorkspaces{active: models.Workspace{ID: "ws-default", Name: "default"}}
	step := NewCLIStep(ws, "0.1.0")
	pctx := newTestContext()

	result, err := step.Process(context.Background(),
		chatRequest(userMessage("codegate custom-instructions set Always use Go 1.22\nand table tests.")), pctx)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Shortcut == nil {
		t.Fatal("no shortcut")
	}
	// Multi-line argument text survives verbatim.
	if got := ws.instructions["default"]; got != "Always use Go 1.22\nand table tests." {
		t.Errorf("stored instructions = %q", got)
	}

	result, _ = step.Process(context.Background(),
		chatRequest(userMessage("codegate custom-instructions reset")), pctx)
	if got := ws.instructions["default"]; got != "" {
		t.Errorf("instructions after reset = %q", got)
	}
	if !strings.Contains(result.Shortcut.Content, "have been reset") {
		t.Errorf("reset reply = %q", result.Shortcut.Content)
	}
}
