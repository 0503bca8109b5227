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

// Package api serves the control plane mounted under /api/v1: workspace,
// provider, mux rule and persona management, read-only prompt and alert
// history, and a server-sent event stream of policy alerts.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/codegate/pkg/config"
	"github.com/kadirpekel/codegate/pkg/embedders"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/notifications"
	"github.com/kadirpekel/codegate/pkg/storage"
)

// ModelLister queries an upstream for the model names it serves. It is
// the provider-sync half of the provider client.
type ModelLister interface {
	Models(ctx context.Context, providerType models.ProviderType, baseURL, apiKey string) ([]string, error)
}

// RuleSyncer rebuilds the routing registry from storage. Handlers call
// it after every mutation that can change a destination.
type RuleSyncer interface {
	Refresh(ctx context.Context) error
}

// Server holds the control plane's collaborators. Optional fields may
// stay nil: without an embedder persona writes are refused, without a
// syncer registry refreshes are skipped.
type Server struct {
	Workspaces *storage.WorkspaceService
	Providers  *storage.ProviderService
	Muxes      *storage.MuxService
	Personas   *storage.PersonaService
	Records    *storage.RecordService
	Upstream   ModelLister
	Embedder   embedders.Embedder
	Alerts     *notifications.Broadcaster
	Rules      RuleSyncer
	Version    string
}

// Routes returns the /api/v1 route tree. The caller mounts it; the
// gateway's own health and metrics endpoints live outside this tree.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/version", s.getVersion)
	r.Get("/schema", s.getSchema)
	r.Get("/alerts_notification", s.streamAlerts)

	r.Route("/workspaces", func(r chi.Router) {
		r.Get("/", s.listWorkspaces)
		r.Post("/", s.createWorkspace)
		r.Get("/archived", s.listArchivedWorkspaces)
		r.Get("/active", s.getActiveWorkspace)
		r.Post("/active", s.activateWorkspace)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getWorkspace)
			r.Delete("/", s.archiveWorkspace)
			r.Post("/recover", s.recoverWorkspace)
			r.Get("/custom-instructions", s.getCustomInstructions)
			r.Put("/custom-instructions", s.setCustomInstructions)
			r.Delete("/custom-instructions", s.clearCustomInstructions)
			r.Get("/muxes", s.listMuxRules)
			r.Put("/muxes", s.replaceMuxRules)
			r.Get("/alerts", s.listAlerts)
			r.Get("/messages", s.listMessages)
		})
	})

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Post("/", s.createProvider)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getProvider)
			r.Put("/", s.updateProvider)
			r.Delete("/", s.deleteProvider)
			r.Get("/models", s.listProviderModels)
			r.Post("/models/refresh", s.refreshProviderModels)
		})
	})
	r.Get("/models", s.listAllModels)

	r.Route("/personas", func(r chi.Router) {
		r.Get("/", s.listPersonas)
		r.Post("/", s.createPersona)
		r.Get("/{name}", s.getPersona)
		r.Put("/{name}", s.updatePersona)
		r.Delete("/{name}", s.deletePersona)
	})

	return r
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"version": s.Version})
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, config.Schema())
}

// refresh rebuilds the routing registry after a mutation. A refresh
// failure is logged, not surfaced: the write already committed and the
// registry catches up on the next mutation or restart.
func (s *Server) refresh(ctx context.Context) {
	if s.Rules == nil {
		return
	}
	if err := s.Rules.Refresh(ctx); err != nil {
		logRefreshFailure(err)
	}
}
