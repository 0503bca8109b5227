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

// Package sessions keeps redacted originals alive for exactly one
// request/response round-trip. Redaction steps store a sensitive value and
// get back a random placeholder; unredaction steps resolve placeholders in
// the provider's output; terminal cleanup destroys the whole session so no
// original outlives its request.
package sessions

import (
	"sync"

	"github.com/google/uuid"
)

// Store maps session ids to placeholder → payload entries. Placeholders
// are random UUIDs so they never collide with legitimate request text.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]map[string]string)}
}

// AddMapping stores payload under a fresh placeholder and returns it.
func (s *Store) AddMapping(sessionID, payload string) string {
	placeholder := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = make(map[string]string)
		s.sessions[sessionID] = session
	}
	session[placeholder] = payload
	return placeholder
}

func (s *Store) GetMapping(sessionID, placeholder string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.sessions[sessionID][placeholder]
	return payload, ok
}

// GetBySession returns a copy of the session's mappings, nil when the
// session does not exist.
func (s *Store) GetBySession(sessionID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(session))
	for placeholder, payload := range session {
		out[placeholder] = payload
	}
	return out
}

// CleanupSession destroys one session. Idempotent.
func (s *Store) CleanupSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
}

// Cleanup destroys every session.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]map[string]string)
}
