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

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

const snippetExtractorStepName = "codegate-snippet-extractor"

// SnippetExtractorStep collects the fenced code blocks of the trailing
// user turn onto the context, where later steps and matchers read them.
// It never rewrites the request.
type SnippetExtractorStep struct{}

func NewSnippetExtractorStep() *SnippetExtractorStep { return &SnippetExtractorStep{} }

func (s *SnippetExtractorStep) Name() string { return snippetExtractorStepName }

func (s *SnippetExtractorStep) Process(ctx context.Context, req protocol.Request, pctx *Context) (Result, error) {
	for _, im := range req.LastUserBlock() {
		text := clients.StripEnvelope(pctx.Client, protocol.MessageText(im.Message))
		pctx.Snippets = append(pctx.Snippets, clients.ExtractSnippets(text)...)
	}
	return Result{}, nil
}
