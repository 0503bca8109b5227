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

package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kadirpekel/codegate/pkg/models"
)

func createProvider(t *testing.T, ps *ProviderService, name string) *models.ProviderEndpoint {
	t.Helper()
	endpoint := &models.ProviderEndpoint{
		Name:         name,
		ProviderType: models.ProviderOpenAI,
		Endpoint:     "https://api.openai.com",
		AuthType:     models.AuthAPIKey,
	}
	auth := &models.ProviderAuthMaterial{AuthType: models.AuthAPIKey, AuthBlob: "sk-test"}
	if err := ps.Create(context.Background(), endpoint, auth); err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return endpoint
}

func TestProviderCreateGetList(t *testing.T) {
	ps := NewProviderService(newTestStore(t))
	ctx := context.Background()

	created := createProvider(t, ps, "upstream")

	got, err := ps.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "upstream" || got.ProviderType != models.ProviderOpenAI {
		t.Errorf("Get() = %+v", got)
	}

	byName, err := ps.GetByName(ctx, "upstream")
	if err != nil || byName.ID != created.ID {
		t.Errorf("GetByName() = (%+v, %v)", byName, err)
	}

	auth, err := ps.AuthMaterial(ctx, created.ID)
	if err != nil {
		t.Fatalf("AuthMaterial() error = %v", err)
	}
	if auth == nil || auth.AuthBlob != "sk-test" {
		t.Errorf("AuthMaterial() = %+v", auth)
	}

	dup := &models.ProviderEndpoint{Name: "upstream", ProviderType: models.ProviderOllama, Endpoint: "http://localhost:11434"}
	if err := ps.Create(ctx, dup, nil); !errors.Is(err, models.ErrProviderExists) {
		t.Errorf("duplicate Create() error = %v, want ErrProviderExists", err)
	}

	bad := &models.ProviderEndpoint{Name: "bad", ProviderType: "fax", Endpoint: "x"}
	if err := ps.Create(ctx, bad, nil); err == nil {
		t.Error("Create() accepted an unsupported provider type")
	}

	list, err := ps.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "upstream" {
		t.Errorf("List() = %+v", list)
	}
}

func TestProviderUpdateDelete(t *testing.T) {
	ps := NewProviderService(newTestStore(t))
	ctx := context.Background()

	created := createProvider(t, ps, "upstream")

	created.Name = "renamed"
	created.Endpoint = "https://api.example.com"
	if err := ps.Update(ctx, created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := ps.GetByName(ctx, "renamed")
	if err != nil || got.Endpoint != "https://api.example.com" {
		t.Errorf("GetByName() after update = (%+v, %v)", got, err)
	}

	missing := &models.ProviderEndpoint{ID: "nope", Name: "x", ProviderType: models.ProviderOpenAI, Endpoint: "y"}
	if err := ps.Update(ctx, missing); !errors.Is(err, models.ErrProviderNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrProviderNotFound", err)
	}

	if err := ps.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ps.Get(ctx, created.ID); !errors.Is(err, models.ErrProviderNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrProviderNotFound", err)
	}
	if err := ps.Delete(ctx, created.ID); !errors.Is(err, models.ErrProviderNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProviderNotFound", err)
	}
}

func TestProviderModels(t *testing.T) {
	ps := NewProviderService(newTestStore(t))
	ctx := context.Background()

	created := createProvider(t, ps, "upstream")

	// Duplicates and blanks are dropped; output comes back sorted.
	if err := ps.ReplaceModels(ctx, created.ID, []string{"gpt-4", "", "gpt-3.5-turbo", "gpt-4"}); err != nil {
		t.Fatalf("ReplaceModels() error = %v", err)
	}
	got, err := ps.Models(ctx, created.ID)
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	want := []string{"gpt-3.5-turbo", "gpt-4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Models() = %v, want %v", got, want)
	}

	if err := ps.ReplaceModels(ctx, created.ID, []string{"o1"}); err != nil {
		t.Fatalf("ReplaceModels() error = %v", err)
	}
	if got, _ := ps.Models(ctx, created.ID); !reflect.DeepEqual(got, []string{"o1"}) {
		t.Errorf("Models() after replace = %v", got)
	}

	if err := ps.ReplaceModels(ctx, "ghost", []string{"m"}); !errors.Is(err, models.ErrProviderNotFound) {
		t.Errorf("ReplaceModels(ghost) error = %v, want ErrProviderNotFound", err)
	}
}

func TestProviderDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ps := NewProviderService(store)
	ws := NewWorkspaceService(store)
	ms := NewMuxService(store)
	ctx := context.Background()

	provider := createProvider(t, ps, "upstream")
	if err := ps.ReplaceModels(ctx, provider.ID, []string{"gpt-4"}); err != nil {
		t.Fatalf("ReplaceModels() error = %v", err)
	}
	workspace, err := ws.Create(ctx, "unit")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rules := []models.MuxRule{{
		ProviderID:        provider.ID,
		ProviderModelName: "gpt-4",
		MatcherType:       models.MatcherCatchAll,
	}}
	if err := ms.Replace(ctx, workspace.ID, rules); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if err := ps.Delete(ctx, provider.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if names, _ := ps.Models(ctx, provider.ID); len(names) != 0 {
		t.Errorf("models survived provider deletion: %v", names)
	}
	if auth, err := ps.AuthMaterial(ctx, provider.ID); err != nil || auth != nil {
		t.Errorf("auth material survived provider deletion: (%+v, %v)", auth, err)
	}
	left, err := ms.Rules(ctx, workspace.ID)
	if err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("mux rules survived provider deletion: %+v", left)
	}
}
