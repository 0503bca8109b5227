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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
)

// PersonaService persists personas with their description embeddings.
// Embeddings are computed once at create/update time; persona matchers
// read them back for distance scoring.
type PersonaService struct {
	store *Store
}

func NewPersonaService(store *Store) *PersonaService {
	return &PersonaService{store: store}
}

// Create inserts a persona. Names are unique.
func (ps *PersonaService) Create(ctx context.Context, persona *models.Persona) error {
	if strings.TrimSpace(persona.Name) == "" {
		return fmt.Errorf("persona name is required")
	}
	if persona.ID == "" {
		persona.ID = uuid.NewString()
	}

	embedding, err := encodeEmbedding(persona.Embedding)
	if err != nil {
		return err
	}

	tx, err := ps.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		ps.store.q(`SELECT id FROM personas WHERE name = ?`),
		persona.Name).Scan(&existing)
	if err == nil {
		return models.ErrPersonaExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check persona name: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		ps.store.q(`INSERT INTO personas (id, name, description, description_embedding)
            VALUES (?, ?, ?, ?)`),
		persona.ID, persona.Name, persona.Description, embedding)
	if err != nil {
		return fmt.Errorf("failed to create persona: %w", err)
	}
	return tx.Commit()
}

// Get returns a persona with its embedding decoded.
func (ps *PersonaService) Get(ctx context.Context, name string) (*models.Persona, error) {
	var p models.Persona
	var embedding sql.NullString
	err := ps.store.db.QueryRowContext(ctx,
		ps.store.q(`SELECT id, name, description, description_embedding FROM personas WHERE name = ?`),
		name).Scan(&p.ID, &p.Name, &p.Description, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPersonaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &p.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode persona embedding: %w", err)
		}
	}
	return &p, nil
}

// List returns every persona, sorted by name, without embeddings.
func (ps *PersonaService) List(ctx context.Context) ([]models.Persona, error) {
	rows, err := ps.store.db.QueryContext(ctx,
		`SELECT id, name, description FROM personas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	var out []models.Persona
	for rows.Next() {
		var p models.Persona
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update rewrites a persona's description and embedding.
func (ps *PersonaService) Update(ctx context.Context, name, description string, embeddingVec []float32) error {
	embedding, err := encodeEmbedding(embeddingVec)
	if err != nil {
		return err
	}
	res, err := ps.store.db.ExecContext(ctx,
		ps.store.q(`UPDATE personas SET description = ?, description_embedding = ? WHERE name = ?`),
		description, embedding, name)
	if err != nil {
		return fmt.Errorf("failed to update persona: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update persona: %w", err)
	}
	if n == 0 {
		return models.ErrPersonaNotFound
	}
	return nil
}

// Delete removes a persona by name.
func (ps *PersonaService) Delete(ctx context.Context, name string) error {
	res, err := ps.store.db.ExecContext(ctx,
		ps.store.q(`DELETE FROM personas WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	if n == 0 {
		return models.ErrPersonaNotFound
	}
	return nil
}

func encodeEmbedding(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(b), nil
}
