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
	"errors"
	"net/http"

	"github.com/kadirpekel/codegate/pkg/models"
)

func (s *Server) listMuxRules(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.resolveWorkspace(w, r)
	if !ok {
		return
	}
	rules, err := s.Muxes.Rules(r.Context(), workspace.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, rules)
}

// replaceMuxRules swaps a workspace's whole rule list. Body order is
// priority order; rules referencing unknown providers or models are
// rejected before anything is written.
func (s *Server) replaceMuxRules(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.resolveWorkspace(w, r)
	if !ok {
		return
	}
	var rules []models.MuxRule
	if err := decodeJSON(r, &rules); err != nil {
		badRequest(w, "%v", err)
		return
	}
	for i, rule := range rules {
		if rule.ProviderID == "" {
			badRequest(w, "rule %d: provider_endpoint_id is required", i)
			return
		}
		if rule.ProviderModelName == "" {
			badRequest(w, "rule %d: provider_model_name is required", i)
			return
		}
		if !validMatcherType(rule.MatcherType) {
			badRequest(w, "rule %d: unknown matcher type %q", i, rule.MatcherType)
			return
		}
	}

	if err := s.Muxes.Replace(r.Context(), workspace.ID, rules); err != nil {
		// A rule naming a missing provider or model is a payload problem,
		// not a missing URL resource.
		if errors.Is(err, models.ErrProviderNotFound) || errors.Is(err, models.ErrModelNotFound) {
			badRequest(w, "%v", err)
			return
		}
		respondError(w, r, err)
		return
	}
	s.refresh(r.Context())
	respond(w, http.StatusNoContent, nil)
}

func validMatcherType(t models.MatcherType) bool {
	switch t {
	case models.MatcherCatchAll, models.MatcherFilename,
		models.MatcherFIMFilename, models.MatcherChatFilename,
		models.MatcherPersonaDescription, models.MatcherSysPersonaDescription:
		return true
	}
	return false
}
