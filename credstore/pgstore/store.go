// Copyright 2025 ChatBridge
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

// Package pgstore persists credential bundles in PostgreSQL (the
// RELATIONAL storage kind for postgres:// DSNs).
package pgstore

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"chatbridge/platform/credstore"
)

// Store keeps one row per session key in the credential_bundles table.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New connects to PostgreSQL and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, credstore.NewStoreError("pgstore", "New", "failed to open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, credstore.NewStoreError("pgstore", "New", "failed to ping database", err)
	}

	s := &Store{
		db:     db,
		logger: log.New(os.Stdout, "[CREDSTORE_PG] ", log.LstdFlags),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. Schema initialization is
// skipped; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(os.Stdout, "[CREDSTORE_PG] ", log.LstdFlags),
	}
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS credential_bundles (
		session_key VARCHAR(255) PRIMARY KEY,
		data BYTEA NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return credstore.NewStoreError("pgstore", "initSchema", "failed to create schema", err)
	}
	return nil
}

// Load reads the bundle for a session key. A missing row yields a fresh
// empty bundle.
func (s *Store) Load(ctx context.Context, sessionKey string) (*credstore.Bundle, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM credential_bundles WHERE session_key = $1`,
		sessionKey,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return &credstore.Bundle{}, nil
	}
	if err != nil {
		return nil, credstore.NewStoreError("pgstore", "Load", "failed to query bundle", err)
	}
	return &credstore.Bundle{Data: data}, nil
}

// Save upserts the bundle for a session key.
func (s *Store) Save(ctx context.Context, sessionKey string, bundle *credstore.Bundle) error {
	query := `
		INSERT INTO credential_bundles (session_key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, sessionKey, []byte(bundle.Data), time.Now().UTC()); err != nil {
		return credstore.NewStoreError("pgstore", "Save", "failed to upsert bundle", err)
	}
	return nil
}

// Delete removes the bundle row. A missing row is a no-op.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credential_bundles WHERE session_key = $1`,
		sessionKey,
	); err != nil {
		return credstore.NewStoreError("pgstore", "Delete", "failed to delete bundle", err)
	}
	return nil
}

// Kind returns the backend kind.
func (s *Store) Kind() credstore.Kind {
	return credstore.KindRelational
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
