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
	"fmt"
	"time"
)

// migration is one ordered schema change. Ids must be unique; applied ids
// are recorded in schema_migrations and never re-run.
type migration struct {
	id         string
	statements []string
}

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    id VARCHAR(255) NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id)
)`

// Statements run one at a time for SQLite compatibility. Soft-deleted
// workspaces keep their rows, so the name-uniqueness rule (unique among
// non-deleted) is enforced by the workspace service inside a transaction
// rather than by an index: partial unique indexes are not portable to
// MySQL.
var migrations = []migration{
	{
		id: "001_core_tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS workspaces (
    id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    custom_instructions TEXT,
    deleted_at TIMESTAMP NULL,
    PRIMARY KEY (id)
)`,
			`CREATE INDEX idx_workspaces_name ON workspaces(name)`,
			`CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(255) NOT NULL,
    active_workspace_id VARCHAR(255) NOT NULL,
    last_update TIMESTAMP NOT NULL,
    PRIMARY KEY (id),
    FOREIGN KEY (active_workspace_id) REFERENCES workspaces(id)
)`,
			`CREATE TABLE IF NOT EXISTS provider_endpoints (
    id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    description TEXT,
    provider_type VARCHAR(50) NOT NULL,
    endpoint TEXT NOT NULL,
    auth_type VARCHAR(50) NOT NULL,
    PRIMARY KEY (id)
)`,
			`CREATE TABLE IF NOT EXISTS provider_auth_material (
    provider_endpoint_id VARCHAR(255) NOT NULL,
    auth_type VARCHAR(50) NOT NULL,
    auth_blob TEXT,
    PRIMARY KEY (provider_endpoint_id),
    FOREIGN KEY (provider_endpoint_id) REFERENCES provider_endpoints(id) ON DELETE CASCADE
)`,
			`CREATE TABLE IF NOT EXISTS provider_models (
    provider_endpoint_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    PRIMARY KEY (provider_endpoint_id, name),
    FOREIGN KEY (provider_endpoint_id) REFERENCES provider_endpoints(id) ON DELETE CASCADE
)`,
			`CREATE TABLE IF NOT EXISTS muxes (
    id VARCHAR(255) NOT NULL,
    workspace_id VARCHAR(255) NOT NULL,
    provider_endpoint_id VARCHAR(255) NOT NULL,
    provider_model_name VARCHAR(255) NOT NULL,
    matcher_type VARCHAR(50) NOT NULL,
    matcher_blob TEXT,
    priority INTEGER NOT NULL,
    PRIMARY KEY (id),
    FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE,
    FOREIGN KEY (provider_endpoint_id) REFERENCES provider_endpoints(id) ON DELETE CASCADE
)`,
			`CREATE INDEX idx_muxes_workspace ON muxes(workspace_id, priority)`,
			`CREATE TABLE IF NOT EXISTS prompts (
    id VARCHAR(255) NOT NULL,
    workspace_id VARCHAR(255) NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    provider VARCHAR(255),
    request_text TEXT,
    type VARCHAR(50) NOT NULL,
    client_type VARCHAR(50),
    PRIMARY KEY (id),
    FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
)`,
			`CREATE TABLE IF NOT EXISTS outputs (
    id VARCHAR(255) NOT NULL,
    prompt_id VARCHAR(255) NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    output_text TEXT,
    input_tokens INTEGER,
    output_tokens INTEGER,
    PRIMARY KEY (id),
    FOREIGN KEY (prompt_id) REFERENCES prompts(id) ON DELETE CASCADE
)`,
			`CREATE TABLE IF NOT EXISTS alerts (
    id VARCHAR(255) NOT NULL,
    prompt_id VARCHAR(255) NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    trigger_type VARCHAR(100) NOT NULL,
    trigger_category VARCHAR(50) NOT NULL,
    trigger_string TEXT,
    code_snippet TEXT,
    PRIMARY KEY (id),
    FOREIGN KEY (prompt_id) REFERENCES prompts(id) ON DELETE CASCADE
)`,
			`CREATE INDEX idx_alerts_prompt ON alerts(prompt_id)`,
		},
	},
	{
		id: "002_personas",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS personas (
    id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL UNIQUE,
    description TEXT NOT NULL,
    description_embedding TEXT,
    PRIMARY KEY (id)
)`,
		},
	},
	{
		id: "003_dashboard_indexes",
		statements: []string{
			`CREATE INDEX idx_prompts_workspace ON prompts(workspace_id, timestamp)`,
			`CREATE INDEX idx_alerts_timestamp ON alerts(timestamp)`,
		},
	},
}

// migrate applies pending migrations in declaration order, each in its
// own transaction, and records the applied ids.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration id: %w", err)
		}
		applied[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.id, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	record := s.q(`INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)`)
	if _, err := tx.ExecContext(ctx, record, m.id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
