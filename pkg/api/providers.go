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
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/mux"
)

type providerRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	ProviderType models.ProviderType `json:"provider_type"`
	Endpoint     string              `json:"endpoint"`
	AuthType     models.AuthType     `json:"auth_type,omitempty"`
	APIKey       string              `json:"api_key,omitempty"`
}

type providerModelsResponse struct {
	Models []string `json:"models"`
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.Providers.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, providers)
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.resolveProvider(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, provider)
}

// createProvider registers an upstream and pulls its model list. The
// model sync is best effort: an unreachable upstream leaves the model
// list empty until a refresh, it does not block registration.
func (s *Server) createProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(w, "provider name is required")
		return
	}
	if !req.ProviderType.Valid() {
		badRequest(w, "unsupported provider type %q", req.ProviderType)
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		badRequest(w, "provider endpoint is required")
		return
	}
	if req.AuthType == "" {
		req.AuthType = models.AuthNone
		if req.APIKey != "" {
			req.AuthType = models.AuthAPIKey
		}
	}
	if !validAuthType(req.AuthType) {
		badRequest(w, "unsupported auth type %q", req.AuthType)
		return
	}

	endpoint := &models.ProviderEndpoint{
		Name:         req.Name,
		Description:  req.Description,
		ProviderType: req.ProviderType,
		Endpoint:     strings.TrimRight(req.Endpoint, "/"),
		AuthType:     req.AuthType,
	}
	var auth *models.ProviderAuthMaterial
	if req.APIKey != "" {
		auth = &models.ProviderAuthMaterial{AuthType: req.AuthType, AuthBlob: req.APIKey}
	}

	if err := s.Providers.Create(r.Context(), endpoint, auth); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.syncModels(r.Context(), endpoint, req.APIKey); err != nil {
		slog.Warn("failed to sync provider models",
			"provider", endpoint.Name, "error", err)
	}
	respond(w, http.StatusCreated, endpoint)
}

// updateProvider rewrites an endpoint in place. Empty request fields
// keep their stored values; a changed endpoint or credential re-syncs
// the model list and recompiles the routing registry, which embeds
// resolved endpoints.
func (s *Server) updateProvider(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.resolveProvider(w, r)
	if !ok {
		return
	}
	var req providerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}

	updated := *existing
	if req.Name != "" {
		updated.Name = req.Name
	}
	if req.Description != "" {
		updated.Description = req.Description
	}
	if req.ProviderType != "" {
		if !req.ProviderType.Valid() {
			badRequest(w, "unsupported provider type %q", req.ProviderType)
			return
		}
		updated.ProviderType = req.ProviderType
	}
	if req.Endpoint != "" {
		updated.Endpoint = strings.TrimRight(req.Endpoint, "/")
	}
	if req.AuthType != "" {
		if !validAuthType(req.AuthType) {
			badRequest(w, "unsupported auth type %q", req.AuthType)
			return
		}
		updated.AuthType = req.AuthType
	}

	if updated.Name != existing.Name {
		if _, err := s.Providers.GetByName(r.Context(), updated.Name); err == nil {
			respondError(w, r, models.ErrProviderExists)
			return
		}
	}
	if err := s.Providers.Update(r.Context(), &updated); err != nil {
		respondError(w, r, err)
		return
	}

	switch {
	case req.APIKey != "":
		err := s.Providers.SetAuthMaterial(r.Context(), &models.ProviderAuthMaterial{
			ProviderID: updated.ID,
			AuthType:   updated.AuthType,
			AuthBlob:   req.APIKey,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
	case updated.AuthType == models.AuthNone && existing.AuthType != models.AuthNone:
		err := s.Providers.SetAuthMaterial(r.Context(), &models.ProviderAuthMaterial{
			ProviderID: updated.ID,
			AuthType:   models.AuthNone,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
	}

	apiKey, err := s.storedAPIKey(r.Context(), updated.ID, req.APIKey)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.syncModels(r.Context(), &updated, apiKey); err != nil {
		slog.Warn("failed to sync provider models",
			"provider", updated.Name, "error", err)
	}

	s.refresh(r.Context())
	respond(w, http.StatusOK, &updated)
}

// deleteProvider removes an endpoint; its credential, models and mux
// rules cascade away, so the registry is recompiled afterwards.
func (s *Server) deleteProvider(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.resolveProvider(w, r)
	if !ok {
		return
	}
	if err := s.Providers.Delete(r.Context(), provider.ID); err != nil {
		respondError(w, r, err)
		return
	}
	s.refresh(r.Context())
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) listProviderModels(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.resolveProvider(w, r)
	if !ok {
		return
	}
	names, err := s.Providers.Models(r.Context(), provider.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, providerModelsResponse{Models: names})
}

// refreshProviderModels re-queries the upstream and replaces the stored
// model list. Unlike create and update this is strict: the caller asked
// for a sync, so an unreachable upstream is reported as a bad gateway.
func (s *Server) refreshProviderModels(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.resolveProvider(w, r)
	if !ok {
		return
	}
	apiKey, err := s.storedAPIKey(r.Context(), provider.ID, "")
	if err != nil {
		respondError(w, r, err)
		return
	}

	names, err := s.listUpstreamModels(r.Context(), provider, apiKey)
	if err != nil {
		respond(w, http.StatusBadGateway, errorBody(err.Error()))
		return
	}
	if err := s.Providers.ReplaceModels(r.Context(), provider.ID, names); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, providerModelsResponse{Models: names})
}

func (s *Server) listAllModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.Providers.ListModels(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func (s *Server) resolveProvider(w http.ResponseWriter, r *http.Request) (*models.ProviderEndpoint, bool) {
	provider, err := s.Providers.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return provider, true
}

func (s *Server) listUpstreamModels(ctx context.Context, endpoint *models.ProviderEndpoint, apiKey string) ([]string, error) {
	if s.Upstream == nil {
		return nil, errors.New("model listing is not configured")
	}
	baseURL := mux.BaseURL(endpoint.ProviderType, endpoint.Endpoint)
	return s.Upstream.Models(ctx, endpoint.ProviderType, baseURL, apiKey)
}

func (s *Server) syncModels(ctx context.Context, endpoint *models.ProviderEndpoint, apiKey string) error {
	if s.Upstream == nil {
		return nil
	}
	names, err := s.listUpstreamModels(ctx, endpoint, apiKey)
	if err != nil {
		return err
	}
	return s.Providers.ReplaceModels(ctx, endpoint.ID, names)
}

// storedAPIKey returns the override when given, otherwise the persisted
// credential blob.
func (s *Server) storedAPIKey(ctx context.Context, providerID, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	auth, err := s.Providers.AuthMaterial(ctx, providerID)
	if err != nil || auth == nil {
		return "", err
	}
	return auth.AuthBlob, nil
}

func validAuthType(t models.AuthType) bool {
	switch t {
	case models.AuthNone, models.AuthAPIKey, models.AuthPassthrough:
		return true
	}
	return false
}
