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
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
)

// DefaultWorkspace is created at startup and can never be archived.
const DefaultWorkspace = "default"

// sessionRowID keys the singleton sessions row that tracks the active
// workspace.
const sessionRowID = "1"

// WorkspaceService persists workspaces and the active-workspace pointer.
// Name uniqueness among non-deleted workspaces is enforced here, inside
// transactions, so it holds on every dialect.
type WorkspaceService struct {
	store *Store
}

func NewWorkspaceService(store *Store) *WorkspaceService {
	return &WorkspaceService{store: store}
}

// EnsureDefault creates the default workspace if missing and activates it
// when no workspace is active yet. Called once at startup, before traffic.
func (ws *WorkspaceService) EnsureDefault(ctx context.Context) error {
	_, err := ws.Get(ctx, DefaultWorkspace)
	if errors.Is(err, models.ErrWorkspaceNotFound) {
		_, err = ws.Create(ctx, DefaultWorkspace)
	}
	if err != nil {
		return err
	}

	if _, err := ws.Active(ctx); errors.Is(err, models.ErrWorkspaceNotFound) {
		if err := ws.Activate(ctx, DefaultWorkspace); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// Create adds a workspace. The name must not collide with a live one;
// archived workspaces do not reserve their name.
func (ws *WorkspaceService) Create(ctx context.Context, name string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}

	tx, err := ws.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT id FROM workspaces WHERE name = ? AND deleted_at IS NULL`),
		name).Scan(&existing)
	if err == nil {
		return nil, models.ErrWorkspaceExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check workspace name: %w", err)
	}

	w := &models.Workspace{ID: uuid.NewString(), Name: name}
	_, err = tx.ExecContext(ctx,
		ws.store.q(`INSERT INTO workspaces (id, name, custom_instructions) VALUES (?, ?, '')`),
		w.ID, w.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return w, nil
}

// Get returns a live workspace by name.
func (ws *WorkspaceService) Get(ctx context.Context, name string) (*models.Workspace, error) {
	query := ws.store.q(`SELECT id, name, custom_instructions, deleted_at
        FROM workspaces WHERE name = ? AND deleted_at IS NULL`)
	return ws.scanOne(ws.store.db.QueryRowContext(ctx, query, name))
}

// GetByID returns a workspace by id, archived or not.
func (ws *WorkspaceService) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	query := ws.store.q(`SELECT id, name, custom_instructions, deleted_at
        FROM workspaces WHERE id = ?`)
	return ws.scanOne(ws.store.db.QueryRowContext(ctx, query, id))
}

// List returns the live workspaces ordered by name.
func (ws *WorkspaceService) List(ctx context.Context) ([]models.Workspace, error) {
	return ws.list(ctx, `SELECT id, name, custom_instructions, deleted_at
        FROM workspaces WHERE deleted_at IS NULL ORDER BY name`)
}

// ListArchived returns the soft-deleted workspaces ordered by name.
func (ws *WorkspaceService) ListArchived(ctx context.Context) ([]models.Workspace, error) {
	return ws.list(ctx, `SELECT id, name, custom_instructions, deleted_at
        FROM workspaces WHERE deleted_at IS NOT NULL ORDER BY name`)
}

// Active returns the workspace the sessions singleton points at.
func (ws *WorkspaceService) Active(ctx context.Context) (*models.Workspace, error) {
	query := ws.store.q(`SELECT w.id, w.name, w.custom_instructions, w.deleted_at
        FROM sessions s JOIN workspaces w ON w.id = s.active_workspace_id
        WHERE s.id = ?`)
	return ws.scanOne(ws.store.db.QueryRowContext(ctx, query, sessionRowID))
}

// Activate points the sessions singleton at the named workspace.
func (ws *WorkspaceService) Activate(ctx context.Context, name string) error {
	tx, err := ws.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT id FROM workspaces WHERE name = ? AND deleted_at IS NULL`),
		name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrWorkspaceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up workspace: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT active_workspace_id FROM sessions WHERE id = ?`),
		sessionRowID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read active workspace: %w", err)
	}
	if current == id {
		return models.ErrWorkspaceAlreadyActive
	}

	if _, err := tx.ExecContext(ctx, ws.upsertSessionQuery(), sessionRowID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to activate workspace: %w", err)
	}
	return tx.Commit()
}

// SetCustomInstructions replaces the workspace's custom-instructions
// text; an empty string clears them.
func (ws *WorkspaceService) SetCustomInstructions(ctx context.Context, name, text string) error {
	res, err := ws.store.db.ExecContext(ctx,
		ws.store.q(`UPDATE workspaces SET custom_instructions = ? WHERE name = ? AND deleted_at IS NULL`),
		text, name)
	if err != nil {
		return fmt.Errorf("failed to update custom instructions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update custom instructions: %w", err)
	}
	if n == 0 {
		return models.ErrWorkspaceNotFound
	}
	return nil
}

// Archive soft-deletes a workspace. The default and the active workspace
// cannot be archived.
func (ws *WorkspaceService) Archive(ctx context.Context, name string) error {
	if name == DefaultWorkspace {
		return models.ErrDefaultWorkspace
	}

	tx, err := ws.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT id FROM workspaces WHERE name = ? AND deleted_at IS NULL`),
		name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrWorkspaceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up workspace: %w", err)
	}

	var active string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT active_workspace_id FROM sessions WHERE id = ?`),
		sessionRowID).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read active workspace: %w", err)
	}
	if active == id {
		return models.ErrWorkspaceActive
	}

	_, err = tx.ExecContext(ctx,
		ws.store.q(`UPDATE workspaces SET deleted_at = ? WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to archive workspace: %w", err)
	}
	return tx.Commit()
}

// Recover clears a workspace's deleted_at. When several archived
// workspaces share the name, the most recently archived one comes back.
func (ws *WorkspaceService) Recover(ctx context.Context, name string) error {
	tx, err := ws.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var live int
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT COUNT(*) FROM workspaces WHERE name = ? AND deleted_at IS NULL`),
		name).Scan(&live)
	if err != nil {
		return fmt.Errorf("failed to check workspace name: %w", err)
	}
	if live > 0 {
		return models.ErrWorkspaceExists
	}

	var id string
	err = tx.QueryRowContext(ctx,
		ws.store.q(`SELECT id FROM workspaces WHERE name = ? AND deleted_at IS NOT NULL
            ORDER BY deleted_at DESC LIMIT 1`),
		name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrWorkspaceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		ws.store.q(`UPDATE workspaces SET deleted_at = NULL WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to recover workspace: %w", err)
	}
	return tx.Commit()
}

func (ws *WorkspaceService) list(ctx context.Context, query string) ([]models.Workspace, error) {
	rows, err := ws.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (ws *WorkspaceService) scanOne(row *sql.Row) (*models.Workspace, error) {
	w, err := scanWorkspace(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWorkspaceNotFound
	}
	return w, err
}

func scanWorkspace(scan func(dest ...any) error) (*models.Workspace, error) {
	var w models.Workspace
	var instructions sql.NullString
	var deletedAt sql.NullTime
	if err := scan(&w.ID, &w.Name, &instructions, &deletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	w.CustomInstructions = instructions.String
	if deletedAt.Valid {
		t := deletedAt.Time
		w.DeletedAt = &t
	}
	return &w, nil
}

func (ws *WorkspaceService) upsertSessionQuery() string {
	switch ws.store.dialect {
	case "postgres":
		return `INSERT INTO sessions (id, active_workspace_id, last_update)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO UPDATE SET active_workspace_id = $2, last_update = $3`
	case "mysql":
		return `INSERT INTO sessions (id, active_workspace_id, last_update)
            VALUES (?, ?, ?)
            ON DUPLICATE KEY UPDATE active_workspace_id = VALUES(active_workspace_id), last_update = VALUES(last_update)`
	default: // sqlite
		return `INSERT INTO sessions (id, active_workspace_id, last_update)
            VALUES (?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET active_workspace_id = excluded.active_workspace_id, last_update = excluded.last_update`
	}
}
