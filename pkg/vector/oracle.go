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
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/codegate/pkg/models"
)

// packagesCollection is where advisory records live in the store.
const packagesCollection = "packages"

const (
	defaultOracleTopK = 5
	// defaultMinSimilarity shortlists candidates; the exact-name check
	// below is what actually decides.
	defaultMinSimilarity = 0.8
)

// Embedder is the slice of pkg/embedders the oracle needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record is one advisory row from the packages dataset.
type Record struct {
	Name        string               `yaml:"name"`
	Ecosystem   string               `yaml:"ecosystem"`
	Status      models.PackageStatus `yaml:"status"`
	Description string               `yaml:"description,omitempty"`
}

// Oracle answers which package names are known to be malicious,
// deprecated or archived. Names embed into the same space as the seeded
// records; candidates come back by similarity and are then verified by
// exact name so lookalikes never flag.
type Oracle struct {
	store         Store
	embedder      Embedder
	topK          int
	minSimilarity float32
}

// NewOracle builds an oracle over a seeded (or seedable) store.
func NewOracle(store Store, embedder Embedder) *Oracle {
	return &Oracle{
		store:         store,
		embedder:      embedder,
		topK:          defaultOracleTopK,
		minSimilarity: defaultMinSimilarity,
	}
}

// Seed indexes advisory records, embedding each package name. Ids are
// deterministic per (ecosystem, name), so re-seeding with a newer
// dataset overwrites in place.
func (o *Oracle) Seed(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = strings.ToLower(r.Name)
	}
	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed package names: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedder returned %d vectors for %d packages", len(vectors), len(records))
	}

	for i, r := range records {
		metadata := map[string]string{
			"name":   r.Name,
			"type":   r.Ecosystem,
			"status": string(r.Status),
		}
		if r.Description != "" {
			metadata["description"] = r.Description
		}
		id := recordID(r.Ecosystem, r.Name)
		if err := o.store.Upsert(ctx, packagesCollection, id, vectors[i], metadata); err != nil {
			return fmt.Errorf("failed to index package %s/%s: %w", r.Ecosystem, r.Name, err)
		}
	}
	return nil
}

// Search reports which of the candidate names are present in the
// advisory index. Matching is case-insensitive on the package name.
func (o *Oracle) Search(ctx context.Context, names []string) ([]models.PackageInfo, error) {
	if len(names) == 0 {
		return nil, nil
	}

	queries := make([]string, len(names))
	for i, name := range names {
		queries[i] = strings.ToLower(name)
	}
	vectors, err := o.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed package names: %w", err)
	}
	if len(vectors) != len(names) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d packages", len(vectors), len(names))
	}

	var flagged []models.PackageInfo
	seen := make(map[string]bool)
	for i, name := range names {
		results, err := o.store.Search(ctx, packagesCollection, vectors[i], o.topK)
		if err != nil {
			return nil, fmt.Errorf("package search failed: %w", err)
		}
		for _, r := range results {
			if r.Score < o.minSimilarity {
				continue
			}
			if !strings.EqualFold(r.Metadata["name"], name) {
				continue
			}
			key := r.Metadata["type"] + "/" + strings.ToLower(r.Metadata["name"])
			if seen[key] {
				continue
			}
			seen[key] = true
			flagged = append(flagged, models.PackageInfo{
				Name:        r.Metadata["name"],
				Type:        r.Metadata["type"],
				Status:      models.PackageStatus(r.Metadata["status"]),
				Description: r.Metadata["description"],
			})
		}
	}
	return flagged, nil
}

// recordID derives a stable uuid per package. Qdrant requires uuid (or
// integer) point ids, so the ecosystem/name pair is hashed into one.
func recordID(ecosystem, name string) string {
	key := ecosystem + "/" + strings.ToLower(name)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("codegate:package:"+key)).String()
}

// LoadRecords reads an advisory dataset: a YAML list of {name,
// ecosystem, status, description} entries.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read packages file: %w", err)
	}

	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse packages file %s: %w", path, err)
	}

	for i, r := range records {
		if r.Name == "" || r.Ecosystem == "" {
			return nil, fmt.Errorf("packages file %s: entry %d is missing name or ecosystem", path, i)
		}
		switch r.Status {
		case models.PackageMalicious, models.PackageArchived, models.PackageDeprecated:
		default:
			return nil, fmt.Errorf("packages file %s: entry %d has unknown status %q", path, i, r.Status)
		}
	}
	return records, nil
}
