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

package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kadirpekel/codegate/pkg/models"
)

type fakePersonas struct {
	personas map[string]*models.Persona
}

func (f *fakePersonas) Get(ctx context.Context, name string) (*models.Persona, error) {
	p, ok := f.personas[name]
	if !ok {
		return nil, models.ErrPersonaNotFound
	}
	return p, nil
}

func TestPersonaScorerDistances(t *testing.T) {
	source := &fakePersonas{personas: map[string]*models.Persona{
		"architect": {Name: "architect", Embedding: []float32{1, 0}},
	}}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"same":     {1, 0},
		"sideways": {0, 1},
		"opposite": {-1, 0},
	}}
	scorer := NewPersonaScorer(source, embedder)

	distances, err := scorer.Distances(context.Background(), "architect", []string{"same", "sideways", "opposite"})
	if err != nil {
		t.Fatalf("Distances() error = %v", err)
	}
	want := []float64{0, 1, 2}
	if len(distances) != len(want) {
		t.Fatalf("Distances() returned %d values, want %d", len(distances), len(want))
	}
	for i := range want {
		if math.Abs(distances[i]-want[i]) > 1e-9 {
			t.Errorf("distances[%d] = %v, want %v", i, distances[i], want[i])
		}
	}
}

func TestPersonaScorerMissingPersona(t *testing.T) {
	scorer := NewPersonaScorer(&fakePersonas{}, &stubEmbedder{})

	_, err := scorer.Distances(context.Background(), "ghost", []string{"hi"})
	if !errors.Is(err, models.ErrPersonaNotFound) {
		t.Errorf("Distances() error = %v, want ErrPersonaNotFound", err)
	}
}

func TestPersonaScorerRequiresEmbedding(t *testing.T) {
	source := &fakePersonas{personas: map[string]*models.Persona{
		"blank": {Name: "blank"},
	}}
	scorer := NewPersonaScorer(source, &stubEmbedder{})

	if _, err := scorer.Distances(context.Background(), "blank", []string{"hi"}); err == nil {
		t.Fatal("Distances() accepted a persona without an embedding")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 0},
		{name: "scaled", a: []float32{2, 0}, b: []float32{1, 0}, want: 0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 3}, want: 1},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, want: 2},
		{name: "dimension mismatch", a: []float32{1, 0}, b: []float32{1}, want: 2},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineDistance(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}
