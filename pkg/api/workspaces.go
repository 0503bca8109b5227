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

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/codegate/pkg/models"
)

type workspaceRequest struct {
	Name string `json:"name"`
}

type customInstructionsRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.Workspaces.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, workspaces)
}

func (s *Server) listArchivedWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.Workspaces.ListArchived(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, workspaces)
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "workspace name is required")
		return
	}

	workspace, err := s.Workspaces.Create(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, workspace)
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	workspace, err := s.Workspaces.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, workspace)
}

func (s *Server) getActiveWorkspace(w http.ResponseWriter, r *http.Request) {
	workspace, err := s.Workspaces.Active(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, workspace)
}

// activateWorkspace switches routing to another workspace and refreshes
// the registry so the active entry follows immediately.
func (s *Server) activateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "workspace name is required")
		return
	}

	if err := s.Workspaces.Activate(r.Context(), req.Name); err != nil {
		respondError(w, r, err)
		return
	}
	s.refresh(r.Context())
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) archiveWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.Workspaces.Archive(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondError(w, r, err)
		return
	}
	s.refresh(r.Context())
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) recoverWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := s.Workspaces.Recover(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondError(w, r, err)
		return
	}
	s.refresh(r.Context())
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) getCustomInstructions(w http.ResponseWriter, r *http.Request) {
	workspace, err := s.Workspaces.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, customInstructionsRequest{Prompt: workspace.CustomInstructions})
}

func (s *Server) setCustomInstructions(w http.ResponseWriter, r *http.Request) {
	var req customInstructionsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	s.writeCustomInstructions(w, r, req.Prompt)
}

func (s *Server) clearCustomInstructions(w http.ResponseWriter, r *http.Request) {
	s.writeCustomInstructions(w, r, "")
}

func (s *Server) writeCustomInstructions(w http.ResponseWriter, r *http.Request, text string) {
	err := s.Workspaces.SetCustomInstructions(r.Context(), chi.URLParam(r, "name"), text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// resolveWorkspace turns the {name} route parameter into a live
// workspace row, writing the error response itself on failure.
func (s *Server) resolveWorkspace(w http.ResponseWriter, r *http.Request) (*models.Workspace, bool) {
	workspace, err := s.Workspaces.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return workspace, true
}
