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

// Package selector resolves a tenant's storage kind to a concrete
// credential store. Resolution happens once per connection creation; a
// backend that is misconfigured or unreachable downgrades to the file
// backend with a warning so the tenant can still operate.
package selector

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"chatbridge/platform/credstore"
	"chatbridge/platform/credstore/cassandrastore"
	"chatbridge/platform/credstore/filestore"
	"chatbridge/platform/credstore/mongostore"
	"chatbridge/platform/credstore/mysqlstore"
	"chatbridge/platform/credstore/pgstore"
	"chatbridge/platform/credstore/redisstore"
)

// Config carries the connection settings for every backend. Only the
// settings for kinds actually assigned to tenants need to be present.
type Config struct {
	FileRoot          string
	RedisURL          string
	RelationalDSN     string
	MongoURI          string
	MongoDatabase     string
	CassandraHosts    []string
	CassandraKeyspace string
}

// Selector opens credential stores on demand. It is safe for concurrent
// use; each Open returns an independent store.
type Selector struct {
	cfg    Config
	logger *log.Logger
}

// New creates a selector.
func New(cfg Config) *Selector {
	return &Selector{
		cfg:    cfg,
		logger: log.New(os.Stdout, "[CREDSTORE] ", log.LstdFlags),
	}
}

// Open resolves kind to a live store. Any failure falls back to the
// file backend; the returned error is non-nil only when even the file
// backend cannot be created.
func (s *Selector) Open(ctx context.Context, kind credstore.Kind) (credstore.Store, error) {
	store, err := s.open(ctx, kind)
	if err == nil {
		return store, nil
	}

	s.logger.Printf("Warning: %s backend unavailable (%v), falling back to file backend", kind, err)
	return filestore.New(s.cfg.FileRoot)
}

func (s *Selector) open(ctx context.Context, kind credstore.Kind) (credstore.Store, error) {
	switch kind {
	case credstore.KindFile:
		return filestore.New(s.cfg.FileRoot)

	case credstore.KindKeyValue:
		if s.cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL not configured")
		}
		return redisstore.New(ctx, s.cfg.RedisURL)

	case credstore.KindRelational:
		dsn := s.cfg.RelationalDSN
		switch {
		case dsn == "":
			return nil, fmt.Errorf("relational DSN not configured")
		case strings.HasPrefix(dsn, "mysql://"):
			return mysqlstore.New(ctx, dsn)
		default:
			return pgstore.New(ctx, dsn)
		}

	case credstore.KindDocument:
		if s.cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo URI not configured")
		}
		return mongostore.New(ctx, s.cfg.MongoURI, s.cfg.MongoDatabase)

	case credstore.KindWideColumn:
		if len(s.cfg.CassandraHosts) == 0 {
			return nil, fmt.Errorf("cassandra hosts not configured")
		}
		return cassandrastore.New(ctx, s.cfg.CassandraHosts, s.cfg.CassandraKeyspace)

	default:
		return nil, fmt.Errorf("unknown storage kind: %s", kind)
	}
}
