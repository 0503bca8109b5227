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

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
)

// MuxService persists mux rules. A workspace's rule set is only ever
// replaced whole, in one transaction, with priorities re-numbered dense
// from zero in the order given.
type MuxService struct {
	store *Store
}

func NewMuxService(store *Store) *MuxService {
	return &MuxService{store: store}
}

// Rules returns the workspace's rules in priority order.
func (ms *MuxService) Rules(ctx context.Context, workspaceID string) ([]models.MuxRule, error) {
	rows, err := ms.store.db.QueryContext(ctx,
		ms.store.q(`SELECT id, workspace_id, provider_endpoint_id, provider_model_name,
            matcher_type, matcher_blob, priority
            FROM muxes WHERE workspace_id = ? ORDER BY priority`),
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mux rules: %w", err)
	}
	defer rows.Close()
	return scanMuxRules(rows)
}

// Replace swaps the workspace's rules all-or-nothing. Every referenced
// provider and model must exist; failures leave the old rules in place.
func (ms *MuxService) Replace(ctx context.Context, workspaceID string, rules []models.MuxRule) error {
	tx, err := ms.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists string
	err = tx.QueryRowContext(ctx,
		ms.store.q(`SELECT id FROM workspaces WHERE id = ? AND deleted_at IS NULL`),
		workspaceID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrWorkspaceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up workspace: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		ms.store.q(`DELETE FROM muxes WHERE workspace_id = ?`), workspaceID); err != nil {
		return fmt.Errorf("failed to clear mux rules: %w", err)
	}

	checkProvider := ms.store.q(`SELECT id FROM provider_endpoints WHERE id = ?`)
	checkModel := ms.store.q(`SELECT name FROM provider_models WHERE provider_endpoint_id = ? AND name = ?`)
	insert := ms.store.q(`INSERT INTO muxes
        (id, workspace_id, provider_endpoint_id, provider_model_name, matcher_type, matcher_blob, priority)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for i, rule := range rules {
		var id string
		err := tx.QueryRowContext(ctx, checkProvider, rule.ProviderID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrProviderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up provider: %w", err)
		}

		var name string
		err = tx.QueryRowContext(ctx, checkModel, rule.ProviderID, rule.ProviderModelName).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrModelNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up model: %w", err)
		}

		ruleID := rule.ID
		if ruleID == "" {
			ruleID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, insert,
			ruleID, workspaceID, rule.ProviderID, rule.ProviderModelName,
			string(rule.MatcherType), rule.MatcherBlob, i); err != nil {
			return fmt.Errorf("failed to insert mux rule: %w", err)
		}
	}
	return tx.Commit()
}

// All returns every live workspace's rules keyed by workspace name, in
// priority order, for registry repopulation.
func (ms *MuxService) All(ctx context.Context) (map[string][]models.MuxRule, error) {
	rows, err := ms.store.db.QueryContext(ctx,
		`SELECT w.name, m.id, m.workspace_id, m.provider_endpoint_id, m.provider_model_name,
            m.matcher_type, m.matcher_blob, m.priority
         FROM muxes m JOIN workspaces w ON w.id = m.workspace_id
         WHERE w.deleted_at IS NULL
         ORDER BY w.name, m.priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mux rules: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.MuxRule)
	for rows.Next() {
		var workspace string
		var rule models.MuxRule
		var blob sql.NullString
		var matcherType string
		if err := rows.Scan(&workspace, &rule.ID, &rule.WorkspaceID, &rule.ProviderID,
			&rule.ProviderModelName, &matcherType, &blob, &rule.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan mux rule: %w", err)
		}
		rule.MatcherType = models.MatcherType(matcherType)
		rule.MatcherBlob = blob.String
		out[workspace] = append(out[workspace], rule)
	}
	return out, rows.Err()
}

func scanMuxRules(rows *sql.Rows) ([]models.MuxRule, error) {
	var out []models.MuxRule
	for rows.Next() {
		var rule models.MuxRule
		var blob sql.NullString
		var matcherType string
		if err := rows.Scan(&rule.ID, &rule.WorkspaceID, &rule.ProviderID,
			&rule.ProviderModelName, &matcherType, &blob, &rule.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan mux rule: %w", err)
		}
		rule.MatcherType = models.MatcherType(matcherType)
		rule.MatcherBlob = blob.String
		out = append(out, rule)
	}
	return out, rows.Err()
}
