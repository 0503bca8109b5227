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

// Package server exposes the gateway's HTTP surface: the provider
// passthrough routes, the rule-driven muxing route and the management API,
// all on one listener.
//
// Every completion route walks the same path: decode the client's native
// request, run the input pipeline, dispatch upstream in the destination's
// protocol, normalize the reply to chat-completion chunks for the output
// pipeline, and re-encode in the protocol the client spoke.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/codegate/pkg/api"
	"github.com/kadirpekel/codegate/pkg/config"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/mux"
	"github.com/kadirpekel/codegate/pkg/observability"
	"github.com/kadirpekel/codegate/pkg/pipeline"
	"github.com/kadirpekel/codegate/pkg/providers"
)

// WorkspaceSource resolves which workspace a request runs under.
type WorkspaceSource interface {
	Active(ctx context.Context) (*models.Workspace, error)
	Get(ctx context.Context, name string) (*models.Workspace, error)
}

// Server is the gateway process. Fields are wired once at startup; the
// zero value of optional fields (API, Observability) disables the feature.
type Server struct {
	Config        *config.Config
	Factory       *pipeline.Factory
	Upstream      *providers.Client
	Router        *mux.Router
	Registry      *mux.Registry
	Workspaces    WorkspaceSource
	Recorder      pipeline.Recorder
	API           *api.Server
	Observability *observability.Manager

	srv *http.Server
}

// Handler assembles the full route table with the middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	// OpenAI-protocol passthrough routes. vLLM, llama.cpp and OpenRouter
	// speak the same protocol; only the upstream differs.
	for _, pt := range []models.ProviderType{
		models.ProviderOpenAI,
		models.ProviderVLLM,
		models.ProviderLlamaCPP,
		models.ProviderOpenRouter,
	} {
		resolve := s.fixed(pt)
		r.Route("/"+string(pt), func(r chi.Router) {
			r.Post("/chat/completions", s.openAIChat(resolve))
			r.Post("/v1/chat/completions", s.openAIChat(resolve))
			r.Post("/completions", s.openAICompletion(resolve))
			r.Post("/v1/completions", s.openAICompletion(resolve))
		})
	}

	anthropic := s.fixed(models.ProviderAnthropic)
	r.Route("/anthropic", func(r chi.Router) {
		r.Post("/messages", s.anthropicMessages(anthropic))
		r.Post("/v1/messages", s.anthropicMessages(anthropic))
	})

	ollama := s.fixed(models.ProviderOllama)
	r.Route("/ollama", func(r chi.Router) {
		r.Post("/api/chat", s.ollamaChat(ollama))
		r.Post("/api/generate", s.ollamaGenerate(ollama))
		// OpenAI-compatible aliases Ollama itself serves.
		r.Post("/v1/chat/completions", s.openAIChat(ollama))
		r.Post("/v1/completions", s.openAICompletion(ollama))
	})

	// The muxed route accepts every client protocol; the path suffix
	// names the protocol, the rules pick the destination.
	muxed := s.muxed()
	r.Route("/v1/mux", func(r chi.Router) {
		r.Post("/chat/completions", s.openAIChat(muxed))
		r.Post("/v1/chat/completions", s.openAIChat(muxed))
		r.Post("/completions", s.openAICompletion(muxed))
		r.Post("/v1/completions", s.openAICompletion(muxed))
		r.Post("/messages", s.anthropicMessages(muxed))
		r.Post("/v1/messages", s.anthropicMessages(muxed))
		r.Post("/api/chat", s.ollamaChat(muxed))
		r.Post("/api/generate", s.ollamaGenerate(muxed))
	})

	if s.API != nil {
		r.Mount("/api/v1", s.API.Routes())
	}
	if s.Observability != nil && s.Observability.MetricsEnabled() {
		r.Handle(s.Observability.MetricsEndpoint(), promhttp.Handler())
	}

	var handler http.Handler = r
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(handler)
	if s.Observability != nil {
		handler = observability.HTTPMiddleware(
			s.Observability.GetTracer("codegate/server"),
			s.Observability.GetMetrics(),
		)(handler)
	}
	return handler
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:        s.Config.Server.Address(),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Completion streams and the alert feed stay open indefinitely,
		// so only reads and idle keep-alives get deadlines.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("gateway listening", "address", s.Config.Server.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests, waiting at most five seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("gateway shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs requests. The writer is passed through untouched
// so http.Flusher stays visible to the streaming handlers.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, "+mux.WorkspaceHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
