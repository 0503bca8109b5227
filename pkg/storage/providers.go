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
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
)

// ProviderService persists provider endpoints, their credentials and
// their model lists. Deleting an endpoint cascades to credentials,
// models and mux rules.
type ProviderService struct {
	store *Store
}

func NewProviderService(store *Store) *ProviderService {
	return &ProviderService{store: store}
}

// Create inserts an endpoint and, when given, its credential in one
// transaction.
func (ps *ProviderService) Create(ctx context.Context, endpoint *models.ProviderEndpoint, auth *models.ProviderAuthMaterial) error {
	if strings.TrimSpace(endpoint.Name) == "" {
		return fmt.Errorf("provider name is required")
	}
	if !endpoint.ProviderType.Valid() {
		return fmt.Errorf("unsupported provider type: %s", endpoint.ProviderType)
	}
	if endpoint.ID == "" {
		endpoint.ID = uuid.NewString()
	}

	tx, err := ps.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		ps.store.q(`SELECT id FROM provider_endpoints WHERE name = ?`),
		endpoint.Name).Scan(&existing)
	if err == nil {
		return models.ErrProviderExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check provider name: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		ps.store.q(`INSERT INTO provider_endpoints (id, name, description, provider_type, endpoint, auth_type)
            VALUES (?, ?, ?, ?, ?, ?)`),
		endpoint.ID, endpoint.Name, endpoint.Description,
		string(endpoint.ProviderType), endpoint.Endpoint, string(endpoint.AuthType))
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if auth != nil {
		auth.ProviderID = endpoint.ID
		if _, err := tx.ExecContext(ctx, ps.upsertAuthQuery(),
			auth.ProviderID, string(auth.AuthType), auth.AuthBlob); err != nil {
			return fmt.Errorf("failed to store auth material: %w", err)
		}
	}
	return tx.Commit()
}

// Get returns an endpoint by id.
func (ps *ProviderService) Get(ctx context.Context, id string) (*models.ProviderEndpoint, error) {
	query := ps.store.q(`SELECT id, name, description, provider_type, endpoint, auth_type
        FROM provider_endpoints WHERE id = ?`)
	return ps.scanOne(ps.store.db.QueryRowContext(ctx, query, id))
}

// GetByName returns an endpoint by its unique name.
func (ps *ProviderService) GetByName(ctx context.Context, name string) (*models.ProviderEndpoint, error) {
	query := ps.store.q(`SELECT id, name, description, provider_type, endpoint, auth_type
        FROM provider_endpoints WHERE name = ?`)
	return ps.scanOne(ps.store.db.QueryRowContext(ctx, query, name))
}

// List returns every endpoint ordered by name.
func (ps *ProviderService) List(ctx context.Context) ([]models.ProviderEndpoint, error) {
	rows, err := ps.store.db.QueryContext(ctx,
		`SELECT id, name, description, provider_type, endpoint, auth_type
         FROM provider_endpoints ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var out []models.ProviderEndpoint
	for rows.Next() {
		p, err := scanProvider(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update rewrites an endpoint's mutable fields.
func (ps *ProviderService) Update(ctx context.Context, endpoint *models.ProviderEndpoint) error {
	if !endpoint.ProviderType.Valid() {
		return fmt.Errorf("unsupported provider type: %s", endpoint.ProviderType)
	}
	res, err := ps.store.db.ExecContext(ctx,
		ps.store.q(`UPDATE provider_endpoints
            SET name = ?, description = ?, provider_type = ?, endpoint = ?, auth_type = ?
            WHERE id = ?`),
		endpoint.Name, endpoint.Description, string(endpoint.ProviderType),
		endpoint.Endpoint, string(endpoint.AuthType), endpoint.ID)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if n == 0 {
		return models.ErrProviderNotFound
	}
	return nil
}

// Delete removes an endpoint; credentials, models and mux rules go with
// it through the foreign keys.
func (ps *ProviderService) Delete(ctx context.Context, id string) error {
	res, err := ps.store.db.ExecContext(ctx,
		ps.store.q(`DELETE FROM provider_endpoints WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if n == 0 {
		return models.ErrProviderNotFound
	}
	return nil
}

// SetAuthMaterial upserts the endpoint's credential row.
func (ps *ProviderService) SetAuthMaterial(ctx context.Context, auth *models.ProviderAuthMaterial) error {
	_, err := ps.store.db.ExecContext(ctx, ps.upsertAuthQuery(),
		auth.ProviderID, string(auth.AuthType), auth.AuthBlob)
	if err != nil {
		return fmt.Errorf("failed to store auth material: %w", err)
	}
	return nil
}

// AuthMaterial returns the endpoint's credential, or nil when none is
// stored.
func (ps *ProviderService) AuthMaterial(ctx context.Context, providerID string) (*models.ProviderAuthMaterial, error) {
	var auth models.ProviderAuthMaterial
	var authType string
	var blob sql.NullString
	err := ps.store.db.QueryRowContext(ctx,
		ps.store.q(`SELECT provider_endpoint_id, auth_type, auth_blob
            FROM provider_auth_material WHERE provider_endpoint_id = ?`),
		providerID).Scan(&auth.ProviderID, &authType, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth material: %w", err)
	}
	auth.AuthType = models.AuthType(authType)
	auth.AuthBlob = blob.String
	return &auth, nil
}

// ReplaceModels swaps the endpoint's model list atomically.
func (ps *ProviderService) ReplaceModels(ctx context.Context, providerID string, names []string) error {
	tx, err := ps.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists string
	err = tx.QueryRowContext(ctx,
		ps.store.q(`SELECT id FROM provider_endpoints WHERE id = ?`),
		providerID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up provider: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		ps.store.q(`DELETE FROM provider_models WHERE provider_endpoint_id = ?`),
		providerID); err != nil {
		return fmt.Errorf("failed to clear models: %w", err)
	}

	insert := ps.store.q(`INSERT INTO provider_models (provider_endpoint_id, name) VALUES (?, ?)`)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := tx.ExecContext(ctx, insert, providerID, name); err != nil {
			return fmt.Errorf("failed to insert model %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Models returns the endpoint's model names, sorted.
func (ps *ProviderService) Models(ctx context.Context, providerID string) ([]string, error) {
	rows, err := ps.store.db.QueryContext(ctx,
		ps.store.q(`SELECT name FROM provider_models WHERE provider_endpoint_id = ? ORDER BY name`),
		providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListModels returns every (provider, model) pair, for the control
// plane's flat model listing.
func (ps *ProviderService) ListModels(ctx context.Context) ([]models.ProviderModel, error) {
	rows, err := ps.store.db.QueryContext(ctx,
		`SELECT provider_endpoint_id, name FROM provider_models ORDER BY provider_endpoint_id, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []models.ProviderModel
	for rows.Next() {
		var m models.ProviderModel
		if err := rows.Scan(&m.ProviderID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (ps *ProviderService) scanOne(row *sql.Row) (*models.ProviderEndpoint, error) {
	p, err := scanProvider(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProviderNotFound
	}
	return p, err
}

func scanProvider(scan func(dest ...any) error) (*models.ProviderEndpoint, error) {
	var p models.ProviderEndpoint
	var description sql.NullString
	var providerType, authType string
	if err := scan(&p.ID, &p.Name, &description, &providerType, &p.Endpoint, &authType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}
	p.Description = description.String
	p.ProviderType = models.ProviderType(providerType)
	p.AuthType = models.AuthType(authType)
	return &p, nil
}

func (ps *ProviderService) upsertAuthQuery() string {
	switch ps.store.dialect {
	case "postgres":
		return `INSERT INTO provider_auth_material (provider_endpoint_id, auth_type, auth_blob)
            VALUES ($1, $2, $3)
            ON CONFLICT (provider_endpoint_id) DO UPDATE SET auth_type = $2, auth_blob = $3`
	case "mysql":
		return `INSERT INTO provider_auth_material (provider_endpoint_id, auth_type, auth_blob)
            VALUES (?, ?, ?)
            ON DUPLICATE KEY UPDATE auth_type = VALUES(auth_type), auth_blob = VALUES(auth_blob)`
	default: // sqlite
		return `INSERT INTO provider_auth_material (provider_endpoint_id, auth_type, auth_blob)
            VALUES (?, ?, ?)
            ON CONFLICT (provider_endpoint_id) DO UPDATE SET auth_type = excluded.auth_type, auth_blob = excluded.auth_blob`
	}
}
