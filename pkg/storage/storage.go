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

// Package storage persists the gateway's relational state: workspaces and
// the active-workspace session row, provider endpoints with their
// credentials and model lists, mux rules, recorded prompts and outputs,
// alerts and personas.
//
// One Store wraps the *sql.DB; per-concern services share it. Concurrency
// is handled by database-level locking (transactions), never by Go
// mutexes. Migrations run before any service touches the database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store owns the database handle and the dialect-specific query shaping
// every service relies on.
type Store struct {
	db      *sql.DB
	dialect string
}

// New wraps an open database handle and applies pending migrations.
// Supported dialects: sqlite (default), mysql, postgres.
func New(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &Store{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Open opens a database by dialect and DSN and applies migrations. For
// sqlite the foreign-key pragma is forced on: enforcement is
// per-connection and the pool would otherwise hand out connections
// without it.
func Open(dialect, dsn string) (*Store, error) {
	driver := dialect
	if dialect == "sqlite" {
		driver = "sqlite3"
		if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=on"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	store, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// q rewrites ? placeholders for the postgres dialect; the other dialects
// take the query as written.
func (s *Store) q(query string) string {
	if s.dialect == "postgres" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// convertToPostgresPlaceholders converts ? to $1, $2, etc. in a single pass.
func convertToPostgresPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 20)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString(fmt.Sprintf("$%d", paramNum))
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}
