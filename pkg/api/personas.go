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
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/codegate/pkg/models"
)

type personaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.Personas.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, personas)
}

func (s *Server) getPersona(w http.ResponseWriter, r *http.Request) {
	persona, err := s.Personas.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, persona)
}

// createPersona stores a persona with its description embedded, since
// persona matchers compare requests against that vector. Without an
// embedder configured the write is refused rather than stored inert.
func (s *Server) createPersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "persona name is required")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		badRequest(w, "persona description is required")
		return
	}

	embedding, ok := s.embedDescription(w, r.Context(), req.Description)
	if !ok {
		return
	}
	persona := &models.Persona{
		Name:        req.Name,
		Description: req.Description,
		Embedding:   embedding,
	}
	if err := s.Personas.Create(r.Context(), persona); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, persona)
}

func (s *Server) updatePersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		badRequest(w, "persona description is required")
		return
	}

	embedding, ok := s.embedDescription(w, r.Context(), req.Description)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.Personas.Update(r.Context(), name, req.Description, embedding); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) deletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.Personas.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// embedDescription vectorizes a persona description, writing the error
// response itself on failure.
func (s *Server) embedDescription(w http.ResponseWriter, ctx context.Context, description string) ([]float32, bool) {
	if s.Embedder == nil {
		badRequest(w, "no embedder is configured; persona matching is unavailable")
		return nil, false
	}
	vectors, err := s.Embedder.Embed(ctx, []string{description})
	if err != nil {
		respond(w, http.StatusBadGateway, errorBody("failed to embed persona description: "+err.Error()))
		return nil, false
	}
	if len(vectors) != 1 {
		respond(w, http.StatusBadGateway, errorBody("embedder returned no vector"))
		return nil, false
	}
	return vectors[0], true
}
