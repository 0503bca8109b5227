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

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const retrieverStepName = "codegate-context-retriever"

// ContextRetrieverStep looks up the packages a request references in the
// advisory oracle and, when any are flagged, prefixes the last user
// message with a context block describing them so the model warns the
// user instead of endorsing the package.
type ContextRetrieverStep struct {
	oracle PackageOracle
}

func NewContextRetrieverStep(oracle PackageOracle) *ContextRetrieverStep {
	return &ContextRetrieverStep{oracle: oracle}
}

func (s *ContextRetrieverStep) Name() string { return retrieverStepName }

func (s *ContextRetrieverStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	msg, _ := req.LastUserMessage()
	if msg == nil {
		return Result{}, nil
	}

	names := s.collectCandidates(req, pctx)
	if len(names) == 0 {
		return Result{}, nil
	}

	flagged, err := s.oracle.Search(ctx, names)
	if err != nil {
		// Advisory lookup is best-effort: the request still goes through,
		// it just loses the warning context.
		slog.Warn("package oracle lookup failed", "session_id", pctx.SessionID, "error", err)
		return Result{}, nil
	}
	if len(flagged) == 0 {
		return Result{}, nil
	}

	pctx.BadPackagesFound = true
	for _, pkg := range flagged {
		pctx.AddAlert(retrieverStepName, models.AlertCritical,
			fmt.Sprintf("%s package %s is %s", pkg.Type, pkg.Name, pkg.Status), "")
	}

	query := protocol.MessageText(msg)
	protocol.SetMessageText(msg, packageContext(flagged)+"\n\nQuery: "+query)
	return Result{Request: req}, nil
}

// collectCandidates gathers package names from the trailing user turn and
// from every extracted code snippet.
func (s *ContextRetrieverStep) collectCandidates(req protocol.Request, pctx *Context) []string {
	var names []string
	seen := map[string]bool{}
	add := func(found []string) {
		for _, name := range found {
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				names = append(names, name)
			}
		}
	}

	for _, im := range req.LastUserBlock() {
		text := clients.StripEnvelope(pctx.Client, protocol.MessageText(im.Message))
		add(extractPackages(text))
	}
	for _, snippet := range pctx.Snippets {
		add(extractPackages(snippet.Code))
	}
	return names
}

func packageContext(flagged []models.PackageInfo) string {
	var b strings.Builder
	b.WriteString("Context: The following packages referenced in the query are known to be problematic:\n")
	for _, pkg := range flagged {
		fmt.Fprintf(&b, "- %s (%s): %s", pkg.Name, pkg.Type, pkg.Status)
		if pkg.Description != "" {
			b.WriteString(". ")
			b.WriteString(pkg.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("Warn the user about these packages instead of recommending them.")
	return b.String()
}
