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

// Package redisstore persists credential bundles in Redis, one key per
// session (the KEY_VALUE storage kind).
package redisstore

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"chatbridge/platform/credstore"
)

// Store keeps bundles as plain string values keyed by
// "creds:<sessionKey>".
type Store struct {
	client *redis.Client
	logger *log.Logger
}

// New connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, credstore.NewStoreError("redisstore", "New", "failed to parse Redis URL", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, credstore.NewStoreError("redisstore", "New", "failed to ping Redis", err)
	}

	return &Store{
		client: client,
		logger: log.New(os.Stdout, "[CREDSTORE_REDIS] ", log.LstdFlags),
	}, nil
}

// Load reads the bundle for a session key. A missing key yields a fresh
// empty bundle.
func (s *Store) Load(ctx context.Context, sessionKey string) (*credstore.Bundle, error) {
	val, err := s.client.Get(ctx, key(sessionKey)).Result()
	if err == redis.Nil {
		return &credstore.Bundle{}, nil
	}
	if err != nil {
		return nil, credstore.NewStoreError("redisstore", "Load", "failed to get bundle", err)
	}
	return &credstore.Bundle{Data: []byte(val)}, nil
}

// Save overwrites the bundle for a session key.
func (s *Store) Save(ctx context.Context, sessionKey string, bundle *credstore.Bundle) error {
	if err := s.client.Set(ctx, key(sessionKey), string(bundle.Data), 0).Err(); err != nil {
		return credstore.NewStoreError("redisstore", "Save", "failed to set bundle", err)
	}
	return nil
}

// Delete removes the bundle. A missing key is a no-op (DEL of a missing
// key succeeds with count 0).
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	if err := s.client.Del(ctx, key(sessionKey)).Err(); err != nil {
		return credstore.NewStoreError("redisstore", "Delete", "failed to delete bundle", err)
	}
	return nil
}

// Kind returns the backend kind.
func (s *Store) Kind() credstore.Kind {
	return credstore.KindKeyValue
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(sessionKey string) string {
	return "creds:" + sessionKey
}
