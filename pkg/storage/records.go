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
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/codegate/pkg/models"
)

// RecordService persists what flowed through the pipeline: prompts,
// output streams and alerts. Prompt text arrives post-redaction and
// output text pre-restoration, so no row ever holds cleartext secrets.
type RecordService struct {
	store *Store
}

func NewRecordService(store *Store) *RecordService {
	return &RecordService{store: store}
}

// Message is one dashboard conversation entry: a prompt and the output
// streams recorded against it.
type Message struct {
	Prompt  models.Prompt   `json:"prompt"`
	Outputs []models.Output `json:"outputs,omitempty"`
}

// RecordPrompt inserts a prompt row, assigning id and timestamp when the
// caller left them empty.
func (rs *RecordService) RecordPrompt(ctx context.Context, prompt *models.Prompt) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	if prompt.Timestamp.IsZero() {
		prompt.Timestamp = time.Now().UTC()
	}
	_, err := rs.store.db.ExecContext(ctx,
		rs.store.q(`INSERT INTO prompts (id, workspace_id, timestamp, provider, request_text, type, client_type)
            VALUES (?, ?, ?, ?, ?, ?, ?)`),
		prompt.ID, prompt.WorkspaceID, prompt.Timestamp, prompt.Provider,
		prompt.RequestText, string(prompt.Type), prompt.ClientType)
	if err != nil {
		return fmt.Errorf("failed to record prompt: %w", err)
	}
	return nil
}

// RecordOutput inserts an output row for a recorded prompt.
func (rs *RecordService) RecordOutput(ctx context.Context, output *models.Output) error {
	if output.ID == "" {
		output.ID = uuid.NewString()
	}
	if output.Timestamp.IsZero() {
		output.Timestamp = time.Now().UTC()
	}
	_, err := rs.store.db.ExecContext(ctx,
		rs.store.q(`INSERT INTO outputs (id, prompt_id, timestamp, output_text, input_tokens, output_tokens)
            VALUES (?, ?, ?, ?, ?, ?)`),
		output.ID, output.PromptID, output.Timestamp, output.OutputText,
		nullableInt(output.InputTokens), nullableInt(output.OutputTokens))
	if err != nil {
		return fmt.Errorf("failed to record output: %w", err)
	}
	return nil
}

// RecordAlerts inserts the request's alerts in one transaction.
func (rs *RecordService) RecordAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := rs.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := rs.store.q(`INSERT INTO alerts (id, prompt_id, timestamp, trigger_type, trigger_category, trigger_string, code_snippet)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i := range alerts {
		a := &alerts[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Timestamp.IsZero() {
			a.Timestamp = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, insert,
			a.ID, a.PromptID, a.Timestamp, a.TriggerType,
			string(a.TriggerCategory), a.TriggerString, a.CodeSnippet); err != nil {
			return fmt.Errorf("failed to record alert: %w", err)
		}
	}
	return tx.Commit()
}

// Alerts returns a workspace's alerts, newest first. An empty category
// returns all severities.
func (rs *RecordService) Alerts(ctx context.Context, workspaceID string, category models.AlertCategory) ([]models.Alert, error) {
	query := `SELECT a.id, a.prompt_id, a.timestamp, a.trigger_type, a.trigger_category, a.trigger_string, a.code_snippet
        FROM alerts a JOIN prompts p ON p.id = a.prompt_id
        WHERE p.workspace_id = ?`
	args := []any{workspaceID}
	if category != "" {
		query += ` AND a.trigger_category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY a.timestamp DESC`

	rows, err := rs.store.db.QueryContext(ctx, rs.store.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		var triggerCategory string
		var triggerString, codeSnippet sql.NullString
		if err := rows.Scan(&a.ID, &a.PromptID, &a.Timestamp, &a.TriggerType,
			&triggerCategory, &triggerString, &codeSnippet); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.TriggerCategory = models.AlertCategory(triggerCategory)
		a.TriggerString = triggerString.String
		a.CodeSnippet = codeSnippet.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Messages returns a workspace's prompts with their outputs, newest
// prompt first. A limit of 0 returns everything.
func (rs *RecordService) Messages(ctx context.Context, workspaceID string, limit int) ([]Message, error) {
	query := `SELECT id, workspace_id, timestamp, provider, request_text, type, client_type
        FROM prompts WHERE workspace_id = ? ORDER BY timestamp DESC`
	args := []any{workspaceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := rs.store.db.QueryContext(ctx, rs.store.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var p models.Prompt
		var provider, requestText, clientType sql.NullString
		var promptType string
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Timestamp, &provider,
			&requestText, &promptType, &clientType); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		p.Provider = provider.String
		p.RequestText = requestText.String
		p.Type = models.PromptType(promptType)
		p.ClientType = clientType.String
		messages = append(messages, Message{Prompt: p})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		outputs, err := rs.outputsFor(ctx, messages[i].Prompt.ID)
		if err != nil {
			return nil, err
		}
		messages[i].Outputs = outputs
	}
	return messages, nil
}

// GetPrompt returns one prompt row.
func (rs *RecordService) GetPrompt(ctx context.Context, id string) (*models.Prompt, error) {
	var p models.Prompt
	var provider, requestText, clientType sql.NullString
	var promptType string
	err := rs.store.db.QueryRowContext(ctx,
		rs.store.q(`SELECT id, workspace_id, timestamp, provider, request_text, type, client_type
            FROM prompts WHERE id = ?`), id).
		Scan(&p.ID, &p.WorkspaceID, &p.Timestamp, &provider, &requestText, &promptType, &clientType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	p.Provider = provider.String
	p.RequestText = requestText.String
	p.Type = models.PromptType(promptType)
	p.ClientType = clientType.String
	return &p, nil
}

func (rs *RecordService) outputsFor(ctx context.Context, promptID string) ([]models.Output, error) {
	rows, err := rs.store.db.QueryContext(ctx,
		rs.store.q(`SELECT id, prompt_id, timestamp, output_text, input_tokens, output_tokens
            FROM outputs WHERE prompt_id = ? ORDER BY timestamp`),
		promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	var out []models.Output
	for rows.Next() {
		var o models.Output
		var text sql.NullString
		var inputTokens, outputTokens sql.NullInt64
		if err := rows.Scan(&o.ID, &o.PromptID, &o.Timestamp, &text, &inputTokens, &outputTokens); err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		o.OutputText = text.String
		o.InputTokens = intPtr(inputTokens)
		o.OutputTokens = intPtr(outputTokens)
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
