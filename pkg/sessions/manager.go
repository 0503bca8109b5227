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

package sessions

import (
	"encoding/json"
	"fmt"
)

// SensitiveData is the payload stored behind a placeholder: the original
// value plus what kind of thing it was, for alerting.
type SensitiveData struct {
	Original string `json:"original"`
	Service  string `json:"service,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Manager is the typed wrapper redaction steps use. It fails closed: a
// value that cannot be stored yields no placeholder, so callers redact
// with nothing rather than leaking the original.
type Manager struct {
	store *Store
}

func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

// Store records data for the session and returns its placeholder.
func (m *Manager) Store(sessionID string, data SensitiveData) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("cannot store sensitive data without a session id")
	}
	if data.Original == "" {
		return "", fmt.Errorf("cannot store empty sensitive data")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode sensitive data: %w", err)
	}
	return m.store.AddMapping(sessionID, string(payload)), nil
}

// GetOriginal resolves a placeholder back to the original value.
func (m *Manager) GetOriginal(sessionID, placeholder string) (string, bool) {
	data, ok := m.Get(sessionID, placeholder)
	if !ok {
		return "", false
	}
	return data.Original, true
}

// Get resolves a placeholder to the full stored payload.
func (m *Manager) Get(sessionID, placeholder string) (SensitiveData, bool) {
	payload, ok := m.store.GetMapping(sessionID, placeholder)
	if !ok {
		return SensitiveData{}, false
	}
	var data SensitiveData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return SensitiveData{}, false
	}
	return data, true
}

// GetBySession returns every stored payload of the session keyed by
// placeholder, nil when the session does not exist.
func (m *Manager) GetBySession(sessionID string) map[string]SensitiveData {
	payloads := m.store.GetBySession(sessionID)
	if payloads == nil {
		return nil
	}
	out := make(map[string]SensitiveData, len(payloads))
	for placeholder, payload := range payloads {
		var data SensitiveData
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			continue
		}
		out[placeholder] = data
	}
	return out
}

// CleanupSession destroys the session's mappings. Idempotent.
func (m *Manager) CleanupSession(sessionID string) {
	m.store.CleanupSession(sessionID)
}
