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
	"fmt"
	"math"

	"github.com/kadirpekel/codegate/pkg/models"
)

// PersonaSource resolves stored personas with embeddings attached.
type PersonaSource interface {
	Get(ctx context.Context, name string) (*models.Persona, error)
}

// PersonaScorer measures how far request texts embed from a persona's
// description. Persona embeddings are computed once at create time and
// read back here; only the request texts embed per call.
type PersonaScorer struct {
	personas PersonaSource
	embedder Embedder
}

func NewPersonaScorer(personas PersonaSource, embedder Embedder) *PersonaScorer {
	return &PersonaScorer{personas: personas, embedder: embedder}
}

// Distances returns one cosine distance per text, in text order.
func (s *PersonaScorer) Distances(ctx context.Context, persona string, texts []string) ([]float64, error) {
	p, err := s.personas.Get(ctx, persona)
	if err != nil {
		return nil, err
	}
	if len(p.Embedding) == 0 {
		return nil, fmt.Errorf("persona %q has no embedding", persona)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed messages: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	distances := make([]float64, len(vectors))
	for i, vec := range vectors {
		distances[i] = CosineDistance(p.Embedding, vec)
	}
	return distances, nil
}

// CosineDistance is 1 minus cosine similarity: 0 for identical
// direction, 1 for orthogonal, 2 for opposite. Mismatched or zero-norm
// vectors count as maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/math.Sqrt(normA*normB)
}
