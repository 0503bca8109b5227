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
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// QdrantStore keeps vectors in a Qdrant server over gRPC. Collections
// are created on first upsert with cosine distance and the incoming
// vector's dimension. Point ids must be uuids.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to a Qdrant server.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantStore{client: client}, nil
}

// Upsert adds or replaces a point.
func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]string) error {
	if err := s.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
		}
		payload[key] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	// Concurrent upserts can race on the first create.
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Search returns the topK nearest points by cosine similarity.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	searchResult, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	out := make([]Result, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		out = append(out, Result{
			ID:       pointID(point.Id),
			Score:    point.Score,
			Metadata: pointMetadata(point.Payload),
		})
	}
	return out, nil
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func pointMetadata(payload map[string]*qdrant.Value) map[string]string {
	metadata := make(map[string]string, len(payload))
	for key, value := range payload {
		metadata[key] = value.GetStringValue()
	}
	return metadata
}

// Name returns the backend name.
func (s *QdrantStore) Name() string {
	return "qdrant"
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
