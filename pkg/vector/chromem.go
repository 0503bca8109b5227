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
	"log/slog"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded store.
type ChromemConfig struct {
	// PersistPath is a directory for write-through persistence. Empty
	// keeps vectors in memory only.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress gzips persisted documents.
	Compress bool `yaml:"compress,omitempty"`
}

// ChromemStore keeps vectors in process with chromem-go. It needs no
// external service, which makes it the default backend: the gateway
// works out of the box and an unseeded store just never flags anything.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	embeddingFunc chromem.EmbeddingFunc
}

// NewChromemStore creates an embedded vector store. With a persist path
// the directory is created on first use and loaded on reopen; writes go
// straight to disk.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB
	var err error

	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store at %s: %w", cfg.PersistPath, err)
		}
		slog.Info("Opened persistent vector store", "path", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
	}

	// Queries and documents carry pre-computed vectors; chromem must
	// never fall back to its own (network-calling) embedding func.
	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectors must be pre-computed")
	}

	return &ChromemStore{
		db:            db,
		collections:   make(map[string]*chromem.Collection),
		embeddingFunc: identityEmbed,
	}, nil
}

func (s *ChromemStore) getCollection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if col, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return col, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert adds or replaces a document. Re-adding an id overwrites it.
func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Metadata:  metadata,
		Embedding: vector,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Search returns the topK nearest documents by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col, err := s.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than the
	// collection holds.
	if n := col.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		})
	}
	return out, nil
}

// Name returns the backend name.
func (s *ChromemStore) Name() string {
	return "chromem"
}

// Close releases resources. Persistence is write-through, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
