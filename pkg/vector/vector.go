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

// Package vector backs the package advisory oracle and persona
// similarity scoring. A Store indexes pre-computed embeddings by
// collection; chromem-go serves as the embedded zero-config default and
// Qdrant as the external backend.
package vector

import "context"

// Result is one similarity hit. Score is cosine similarity: higher is
// nearer, 1 means identical direction.
type Result struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Store is an embedding index keyed by collection name. Vectors arrive
// pre-computed; stores never embed on their own.
type Store interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	Name() string
	Close() error
}

// NilStore stands in when no vector backend is configured. Searches
// come back empty, so advisory lookups simply never flag anything.
type NilStore struct{}

func (NilStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error {
	return nil
}

func (NilStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return nil, nil
}

func (NilStore) Name() string { return "nil" }

func (NilStore) Close() error { return nil }
