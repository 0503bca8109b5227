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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/codegate/pkg/clients"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/mux"
	"github.com/kadirpekel/codegate/pkg/observability"
	"github.com/kadirpekel/codegate/pkg/pipeline"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

func (s *Server) openAIChat(resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, &protocol.OpenAIChatRequest{}, openAIChatResponder{}, resolve)
	}
}

func (s *Server) openAICompletion(resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, &protocol.OpenAICompletionRequest{}, openAICompletionResponder{}, resolve)
	}
}

func (s *Server) anthropicMessages(resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, &protocol.AnthropicRequest{}, anthropicResponder{}, resolve)
	}
}

func (s *Server) ollamaChat(resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, &protocol.OllamaChatRequest{}, ollamaChatResponder{}, resolve)
	}
}

func (s *Server) ollamaGenerate(resolve resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, &protocol.OllamaGenerateRequest{}, ollamaGenerateResponder{}, resolve)
	}
}

// inbound is the request-independent view shared by FIM detection and
// rule matching.
type inbound struct {
	body   map[string]any
	client clients.ClientType
	fim    bool
}

// target is the resolved upstream of one request. A non-empty model means
// the rules rewrote the destination model.
type target struct {
	providerType models.ProviderType
	baseURL      string
	apiKey       string
	model        string
	workspaceID  string
}

// resolver picks the upstream for a request: fixed per route prefix, or
// rule-driven for the muxed route.
type resolver func(ctx context.Context, r *http.Request, in *inbound) (*target, error)

func (s *Server) fixed(pt models.ProviderType) resolver {
	return func(ctx context.Context, r *http.Request, in *inbound) (*target, error) {
		return &target{
			providerType: pt,
			baseURL:      mux.BaseURL(pt, s.Config.Upstreams.ForType(pt)),
			apiKey:       clientCredential(r.Header),
			workspaceID:  s.workspaceID(ctx, ""),
		}, nil
	}
}

func (s *Server) muxed() resolver {
	return func(ctx context.Context, r *http.Request, in *inbound) (*target, error) {
		override := r.Header.Get(mux.WorkspaceHeader)
		route, err := s.Router.Route(ctx, mux.MatchInput{
			Body:    in.body,
			URLPath: r.URL.Path,
			FIM:     in.fim,
			Client:  in.client,
		}, override)
		if err != nil {
			return nil, err
		}

		t := &target{
			providerType: route.Endpoint.ProviderType,
			baseURL:      mux.BaseURL(route.Endpoint.ProviderType, route.Endpoint.Endpoint),
			model:        route.Model,
			workspaceID:  s.workspaceID(ctx, override),
		}
		if route.Auth != nil {
			t.apiKey = route.Auth.AuthBlob
		}
		return t, nil
	}
}

// serve is the shared completion path. The typed request and the responder
// fix the client's protocol; the resolver fixes the upstream.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, req protocol.Request, enc responder, resolve resolver) {
	ctx := r.Context()

	in, err := decode(r, req)
	if err != nil {
		enc.reject(w, http.StatusBadRequest, err.Error())
		return
	}
	in.client = clients.Detect(r.Header.Get("User-Agent"), req)
	in.fim = mux.IsFIM(r.URL.Path, in.body)

	// Upstream calls always stream; the client's own preference decides how
	// the result is written back, so it has to be read before dispatch
	// flips the flag.
	wantStream := req.GetStream()

	t, err := resolve(ctx, r, in)
	if err != nil {
		if errors.Is(err, models.ErrNoMuxRuleMatched) {
			enc.reject(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("failed to resolve destination", "path", r.URL.Path, "error", err)
		enc.reject(w, http.StatusInternalServerError, "internal server error")
		return
	}

	metrics := observability.GetGlobalMetrics()
	pctx := s.Factory.NewContext(in.client, in.fim)
	pctx.WorkspaceID = t.workspaceID
	pctx.Provider = string(t.providerType)

	start := time.Now()
	processed, shortcut, err := s.Factory.InputEngine(in.fim).Run(ctx, req, pctx)
	var shortcutStep string
	if shortcut != nil {
		shortcutStep = shortcut.StepName
	}
	metrics.RecordPipelineRun(ctx, pipelineKind(in.fim), time.Since(start), shortcutStep)
	if err != nil {
		s.abort(ctx, pctx)
		metrics.RecordGatewayRequest(ctx, string(in.client), string(t.providerType), err)
		slog.Error("input pipeline failed", "session_id", pctx.SessionID, "error", err)
		enc.reject(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordRedactions(ctx, metrics, pctx)

	var stream <-chan protocol.StreamItem[protocol.OpenAIStreamChunk]
	if shortcut != nil {
		stream = pipeline.ShortcutStream(shortcut)
	} else {
		if t.model != "" {
			processed.SetModel(t.model)
		}
		stream, err = s.dispatch(ctx, processed, t)
		if err != nil {
			s.abort(ctx, pctx)
			metrics.RecordGatewayRequest(ctx, string(in.client), string(t.providerType), err)
			slog.Error("upstream dispatch failed",
				"provider", t.providerType, "session_id", pctx.SessionID, "error", err)
			status, message := upstreamFailure(err)
			enc.reject(w, status, message)
			return
		}
	}

	out := s.Factory.OutputEngine(in.fim).Process(ctx, stream, pctx)
	if wantStream {
		enc.stream(ctx, w, out)
	} else {
		enc.respond(w, out)
	}
	metrics.RecordGatewayRequest(ctx, string(in.client), string(t.providerType), nil)
}

// decode reads the body once and parses it twice: generically for FIM and
// rule matching, and into the protocol's typed request.
func decode(r *http.Request, req protocol.Request) (*inbound, error) {
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	in := &inbound{}
	if err := json.Unmarshal(raw, &in.body); err != nil {
		return nil, fmt.Errorf("parse request body: %w", err)
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("parse request body: %w", err)
	}
	return in, nil
}

// abort tears down a request that never reached the output engine. Alerts
// raised so far are still persisted and the session is always released.
func (s *Server) abort(ctx context.Context, pctx *pipeline.Context) {
	defer pctx.CleanupSession()
	if s.Recorder == nil || len(pctx.Alerts) == 0 {
		return
	}
	if err := s.Recorder.RecordAlerts(context.WithoutCancel(ctx), pctx.Alerts); err != nil {
		slog.Error("failed to record alerts", "prompt_id", pctx.PromptID, "error", err)
	}
}

func (s *Server) recordRedactions(ctx context.Context, metrics observability.Metrics, pctx *pipeline.Context) {
	metrics.RecordRedactions(ctx, "secrets", pctx.SecretCount)
	pii := 0
	for _, n := range pctx.PIICounts {
		pii += n
	}
	metrics.RecordRedactions(ctx, "pii", pii)
}

// workspaceID resolves the workspace a prompt is recorded under, honoring
// the mux override only when the registry routes in it.
func (s *Server) workspaceID(ctx context.Context, override string) string {
	if override != "" && s.Registry.Has(override) {
		if ws, err := s.Workspaces.Get(ctx, override); err == nil {
			return ws.ID
		}
	}
	ws, err := s.Workspaces.Active(ctx)
	if err != nil {
		slog.Error("failed to resolve active workspace", "error", err)
		return ""
	}
	return ws.ID
}

// clientCredential extracts the pass-through upstream credential. The
// gateway never mints credentials of its own.
func clientCredential(h http.Header) string {
	if auth := h.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := h.Get("x-api-key"); key != "" {
		return key
	}
	return h.Get("x-goog-api-key")
}

func pipelineKind(fim bool) string {
	if fim {
		return "fim"
	}
	return "chat"
}
