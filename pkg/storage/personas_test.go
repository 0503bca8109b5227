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

func TestPersonaCreateGet(t *testing.T) {
	store := newTestStore(t)
	ps := NewPersonaService(store)
	ctx := context.Background()

	persona := &models.Persona{
		Name:        "architect",
		Description: "Designs distributed systems and reviews APIs.",
		Embedding:   []float32{0.1, 0.2, 0.3},
	}
	if err := ps.Create(ctx, persona); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if persona.ID == "" {
		t.Error("Create() left id empty")
	}
	if err := ps.Create(ctx, &models.Persona{Name: "architect"}); !errors.Is(err, models.ErrPersonaExists) {
		t.Errorf("duplicate Create() error = %v, want ErrPersonaExists", err)
	}
	if err := ps.Create(ctx, &models.Persona{Name: "  "}); err == nil {
		t.Error("Create() accepted blank name")
	}

	got, err := ps.Get(ctx, "architect")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Description != persona.Description {
		t.Errorf("Description = %q", got.Description)
	}
	if !reflect.DeepEqual(got.Embedding, persona.Embedding) {
		t.Errorf("Embedding = %v, want %v", got.Embedding, persona.Embedding)
	}

	if _, err := ps.Get(ctx, "ghost"); !errors.Is(err, models.ErrPersonaNotFound) {
		t.Errorf("Get(ghost) error = %v, want ErrPersonaNotFound", err)
	}
}

func TestPersonaList(t *testing.T) {
	store := newTestStore(t)
	ps := NewPersonaService(store)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if err := ps.Create(ctx, &models.Persona{Name: name, Embedding: []float32{1}}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	personas, err := ps.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(personas) != 2 || personas[0].Name != "alpha" || personas[1].Name != "zeta" {
		t.Errorf("List() = %+v, want alpha then zeta", personas)
	}
	// List omits embeddings; callers that need them fetch one persona.
	if personas[0].Embedding != nil {
		t.Errorf("List() returned embedding %v", personas[0].Embedding)
	}
}

func TestPersonaUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	ps := NewPersonaService(store)
	ctx := context.Background()

	if err := ps.Create(ctx, &models.Persona{Name: "reviewer", Description: "old", Embedding: []float32{0.5}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := ps.Update(ctx, "reviewer", "Reviews pull requests.", []float32{0.7, 0.1}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := ps.Get(ctx, "reviewer")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Description != "Reviews pull requests." || !reflect.DeepEqual(got.Embedding, []float32{0.7, 0.1}) {
		t.Errorf("after update: %+v", got)
	}

	if err := ps.Update(ctx, "ghost", "x", nil); !errors.Is(err, models.ErrPersonaNotFound) {
		t.Errorf("Update(ghost) error = %v, want ErrPersonaNotFound", err)
	}

	if err := ps.Delete(ctx, "reviewer"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ps.Get(ctx, "reviewer"); !errors.Is(err, models.ErrPersonaNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrPersonaNotFound", err)
	}
	if err := ps.Delete(ctx, "reviewer"); !errors.Is(err, models.ErrPersonaNotFound) {
		t.Errorf("second Delete() error = %v, want ErrPersonaNotFound", err)
	}
}
