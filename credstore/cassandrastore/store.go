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

// Package cassandrastore persists credential bundles in Cassandra or
// Scylla (the WIDE_COLUMN storage kind).
package cassandrastore

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gocql/gocql"

	"chatbridge/platform/credstore"
)

// Store keeps one row per session key in the credential_bundles table
// of the configured keyspace.
type Store struct {
	session  *gocql.Session
	keyspace string
	logger   *log.Logger
}

// New connects to the cluster and ensures the table exists. The
// keyspace must already exist; keyspace management is an operator
// concern.
func New(ctx context.Context, hosts []string, keyspace string) (*Store, error) {
	if keyspace == "" {
		keyspace = "chatbridge"
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, credstore.NewStoreError("cassandrastore", "New", "failed to create session", err)
	}

	s := &Store{
		session:  session,
		keyspace: keyspace,
		logger:   log.New(os.Stdout, "[CREDSTORE_CASSANDRA] ", log.LstdFlags),
	}
	if err := s.initSchema(ctx); err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS credential_bundles (
		session_key text PRIMARY KEY,
		data blob,
		updated_at timestamp
	)
	`
	if err := s.session.Query(query).WithContext(ctx).Exec(); err != nil {
		return credstore.NewStoreError("cassandrastore", "initSchema", "failed to create table", err)
	}
	return nil
}

// Load reads the bundle for a session key. A missing row yields a fresh
// empty bundle.
func (s *Store) Load(ctx context.Context, sessionKey string) (*credstore.Bundle, error) {
	var data []byte
	err := s.session.Query(
		`SELECT data FROM credential_bundles WHERE session_key = ?`,
		sessionKey,
	).WithContext(ctx).Scan(&data)
	if err == gocql.ErrNotFound {
		return &credstore.Bundle{}, nil
	}
	if err != nil {
		return nil, credstore.NewStoreError("cassandrastore", "Load", "failed to select bundle", err)
	}
	return &credstore.Bundle{Data: data}, nil
}

// Save overwrites the bundle for a session key.
func (s *Store) Save(ctx context.Context, sessionKey string, bundle *credstore.Bundle) error {
	err := s.session.Query(
		`INSERT INTO credential_bundles (session_key, data, updated_at) VALUES (?, ?, ?)`,
		sessionKey, []byte(bundle.Data), time.Now().UTC(),
	).WithContext(ctx).Exec()
	if err != nil {
		return credstore.NewStoreError("cassandrastore", "Save", "failed to insert bundle", err)
	}
	return nil
}

// Delete removes the bundle row. A missing row is a no-op.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	err := s.session.Query(
		`DELETE FROM credential_bundles WHERE session_key = ?`,
		sessionKey,
	).WithContext(ctx).Exec()
	if err != nil {
		return credstore.NewStoreError("cassandrastore", "Delete", "failed to delete bundle", err)
	}
	return nil
}

// Kind returns the backend kind.
func (s *Store) Kind() credstore.Kind {
	return credstore.KindWideColumn
}

// Close closes the cluster session.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}
