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

package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"chatbridge/platform/credstore"
)

// PostgresStore reads the tenant catalog from PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore connects to the catalog database and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping tenant database: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: log.New(os.Stdout, "[TENANT_STORE] ", log.LstdFlags),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing handle. Schema
// initialization is skipped; used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.New(os.Stdout, "[TENANT_STORE] ", log.LstdFlags),
	}
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tenants (
		id VARCHAR(255) PRIMARY KEY,
		storage_kind VARCHAR(32) NOT NULL DEFAULT 'FILE',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_active ON tenants(active);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tenant schema: %w", err)
	}
	return nil
}

// FindActiveTenants returns every tenant with the active flag set.
func (s *PostgresStore) FindActiveTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, storage_kind, active FROM tenants WHERE active = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		var kind string
		if err := rows.Scan(&t.ID, &kind, &t.Active); err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		t.StorageKind = credstore.ParseKind(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenant rows error: %w", err)
	}
	return out, nil
}

// FindTenant returns one tenant, or ErrNotFound.
func (s *PostgresStore) FindTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var t Tenant
	var kind string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, storage_kind, active FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&t.ID, &kind, &t.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	t.StorageKind = credstore.ParseKind(kind)
	return &t, nil
}

// SetActive mirrors a connection open/close to the catalog. Unknown
// tenants return ErrNotFound.
func (s *PostgresStore) SetActive(ctx context.Context, tenantID string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET active = $2, updated_at = NOW() WHERE id = $1`,
		tenantID, active,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant active flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
