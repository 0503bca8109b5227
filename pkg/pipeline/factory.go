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
	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/pii"
	"github.com/kadirpekel/codegate/pkg/prompts"
	"github.com/kadirpekel/codegate/pkg/secrets"
	"github.com/kadirpekel/codegate/pkg/sessions"
)

// Factory builds per-request pipeline engines. Steps carry per-stream
// state, so engines are constructed fresh for every request; the factory
// holds only the shared, concurrency-safe collaborators.
type Factory struct {
	Secrets      *secrets.Engine
	PII          *pii.Analyzer
	Sensitive    *sessions.Manager
	Workspaces   WorkspaceService
	Oracle       PackageOracle
	Recorder     Recorder
	Notifier     AlertPublisher
	Catalog      *prompts.Catalog
	DashboardURL string
	Version      string
}

// NewContext creates the request context shared by the input and output
// engines of one round trip.
func (f *Factory) NewContext(client clients.ClientType, fim bool) *Context {
	pctx := NewContext(client, fim, f.Sensitive)
	pctx.Notifier = f.Notifier
	return pctx
}

// InputEngine assembles the input pipeline. Redaction always runs first:
// no later step, and nothing persisted, may see cleartext values.
// Fill-in-the-middle requests get redaction only; conversational steps
// would corrupt a completion prompt.
func (f *Factory) InputEngine(fim bool) *InputEngine {
	steps := []Step{
		NewSecretsRedactStep(f.Secrets),
		NewPIIRedactStep(f.PII),
	}
	if !fim {
		steps = append(steps,
			NewSnippetExtractorStep(),
			NewCLIStep(f.Workspaces, f.Version),
		)
		// Advisory lookups need an embedder; deployments without one
		// run the pipeline without package context.
		if f.Oracle != nil {
			steps = append(steps, NewContextRetrieverStep(f.Oracle))
		}
		steps = append(steps, NewSystemPromptStep(f.Workspaces, f.Catalog))
	}
	return NewInputEngine(f.Recorder, steps...)
}

// OutputEngine assembles the streaming output pipeline. Unredaction runs
// before the notifiers so the first content-bearing chunk they latch onto
// is already restored; autocomplete streams skip notices and annotations
// because their output is spliced verbatim into the editor buffer.
func (f *Factory) OutputEngine(fim bool) *OutputEngine {
	steps := []OutputStep{
		NewSecretsUnredactStep(),
		NewPIIUnredactStep(),
	}
	if !fim {
		steps = append(steps,
			NewSecretsNotifierStep(f.DashboardURL),
			NewPIINotifierStep(f.DashboardURL),
		)
		if f.Oracle != nil {
			steps = append(steps, NewCodeCommentStep(f.Oracle))
		}
	}
	return NewOutputEngine(f.Recorder, steps...)
}
