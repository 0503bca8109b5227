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
	"testing"

	"github.com/kadirpekel/codegate/pkg/models"
)

func createTestProvider(t *testing.T, ts *testServer, name string) models.ProviderEndpoint {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/providers", providerRequest{
		Name:         name,
		ProviderType: models.ProviderOpenAI,
		Endpoint:     "https://api.openai.com",
		APIKey:       "sk-test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /providers = %d, want 201: %s", rec.Code, rec.Body)
	}
	return decodeBody[models.ProviderEndpoint](t, rec)
}

func TestCreateProviderSyncsModels(t *testing.T) {
	ts := newTestServer(t)
	created := createTestProvider(t, ts, "openai-prod")

	if created.ID == "" || created.AuthType != models.AuthAPIKey {
		t.Errorf("created provider = %+v", created)
	}

	rec := ts.do(t, http.MethodGet, "/providers/openai-prod/models", nil)
	got := decodeBody[providerModelsResponse](t, rec)
	if len(got.Models) != 2 {
		t.Fatalf("synced %d models, want 2: %v", len(got.Models), got.Models)
	}

	rec = ts.do(t, http.MethodGet, "/models", nil)
	all := decodeBody[[]models.ProviderModel](t, rec)
	if len(all) != 2 {
		t.Errorf("flat model listing has %d entries, want 2", len(all))
	}
	if all[0].ProviderID != created.ID {
		t.Errorf("model provider = %q, want %q", all[0].ProviderID, created.ID)
	}
}

func TestCreateProviderValidation(t *testing.T) {
	ts := newTestServer(t)

	bad := []providerRequest{
		{ProviderType: models.ProviderOpenAI, Endpoint: "https://x"},
		{Name: "p", ProviderType: "mystery", Endpoint: "https://x"},
		{Name: "p", ProviderType: models.ProviderOpenAI},
		{Name: "p", ProviderType: models.ProviderOpenAI, Endpoint: "https://x", AuthType: "kerberos"},
	}
	for i, req := range bad {
		if rec := ts.do(t, http.MethodPost, "/providers", req); rec.Code != http.StatusBadRequest {
			t.Errorf("request %d = %d, want 400: %s", i, rec.Code, rec.Body)
		}
	}

	createTestProvider(t, ts, "dup")
	rec := ts.do(t, http.MethodPost, "/providers", providerRequest{
		Name: "dup", ProviderType: models.ProviderOpenAI, Endpoint: "https://x",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate provider = %d, want 409", rec.Code)
	}
}

func TestCreateProviderToleratesUnreachableUpstream(t *testing.T) {
	ts := newTestServer(t)
	ts.lister.err = errors.New("connection refused")

	rec := ts.do(t, http.MethodPost, "/providers", providerRequest{
		Name: "flaky", ProviderType: models.ProviderOllama, Endpoint: "http://localhost:11434",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /providers = %d, want 201 despite sync failure: %s", rec.Code, rec.Body)
	}

	rec = ts.do(t, http.MethodGet, "/providers/flaky/models", nil)
	if got := decodeBody[providerModelsResponse](t, rec); len(got.Models) != 0 {
		t.Errorf("models after failed sync = %v, want none", got.Models)
	}
}

func TestRefreshProviderModels(t *testing.T) {
	ts := newTestServer(t)
	createTestProvider(t, ts, "openai-prod")

	ts.lister.names = []string{"gpt-5"}
	rec := ts.do(t, http.MethodPost, "/providers/openai-prod/models/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, want 200: %s", rec.Code, rec.Body)
	}
	if got := decodeBody[providerModelsResponse](t, rec); len(got.Models) != 1 || got.Models[0] != "gpt-5" {
		t.Errorf("refreshed models = %v, want [gpt-5]", got.Models)
	}

	ts.lister.err = errors.New("upstream down")
	rec = ts.do(t, http.MethodPost, "/providers/openai-prod/models/refresh", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("refresh against dead upstream = %d, want 502", rec.Code)
	}
	// The stored list survives the failed refresh.
	rec = ts.do(t, http.MethodGet, "/providers/openai-prod/models", nil)
	if got := decodeBody[providerModelsResponse](t, rec); len(got.Models) != 1 {
		t.Errorf("models after failed refresh = %v, want [gpt-5]", got.Models)
	}
}

func TestUpdateProvider(t *testing.T) {
	ts := newTestServer(t)
	created := createTestProvider(t, ts, "openai-prod")
	before := ts.syncer.count()

	rec := ts.do(t, http.MethodPut, "/providers/openai-prod", providerRequest{
		Endpoint: "https://gateway.internal/openai/",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /providers/openai-prod = %d, want 200: %s", rec.Code, rec.Body)
	}
	updated := decodeBody[models.ProviderEndpoint](t, rec)
	if updated.ID != created.ID {
		t.Errorf("update changed the id: %q -> %q", created.ID, updated.ID)
	}
	if updated.Endpoint != "https://gateway.internal/openai" {
		t.Errorf("endpoint = %q, want trailing slash trimmed", updated.Endpoint)
	}
	if updated.Name != "openai-prod" {
		t.Errorf("name = %q, want unchanged", updated.Name)
	}
	if ts.syncer.count() == before {
		t.Error("endpoint change did not refresh the routing registry")
	}
}

func TestUpdateProviderNameCollision(t *testing.T) {
	ts := newTestServer(t)
	createTestProvider(t, ts, "first")
	createTestProvider(t, ts, "second")

	rec := ts.do(t, http.MethodPut, "/providers/second", providerRequest{Name: "first"})
	if rec.Code != http.StatusConflict {
		t.Errorf("rename onto existing provider = %d, want 409", rec.Code)
	}
}

func TestDeleteProvider(t *testing.T) {
	ts := newTestServer(t)
	createTestProvider(t, ts, "openai-prod")
	before := ts.syncer.count()

	rec := ts.do(t, http.MethodDelete, "/providers/openai-prod", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204: %s", rec.Code, rec.Body)
	}
	if rec := ts.do(t, http.MethodGet, "/providers/openai-prod", nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted provider still served = %d, want 404", rec.Code)
	}
	if ts.syncer.count() == before {
		t.Error("deletion did not refresh the routing registry")
	}

	if rec := ts.do(t, http.MethodDelete, "/providers/openai-prod", nil); rec.Code != http.StatusNotFound {
		t.Errorf("double delete = %d, want 404", rec.Code)
	}
}
