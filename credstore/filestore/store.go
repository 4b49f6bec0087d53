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

// Package filestore persists credential bundles as a file tree, one
// directory per session key. It needs no external service, which makes
// it the fallback backend when a configured one cannot be reached.
package filestore

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"chatbridge/platform/credstore"
)

const credsFileName = "creds.json"

// Store writes bundles under a base directory.
type Store struct {
	base   string
	logger *log.Logger
}

// New creates a file store rooted at base, creating it if needed.
func New(base string) (*Store, error) {
	if base == "" {
		base = "data"
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, credstore.NewStoreError("filestore", "New", "failed to create base directory", err)
	}
	return &Store{
		base:   base,
		logger: log.New(os.Stdout, "[CREDSTORE_FILE] ", log.LstdFlags),
	}, nil
}

// Load reads the bundle for a session key. A missing key yields a fresh
// empty bundle.
func (s *Store) Load(ctx context.Context, sessionKey string) (*credstore.Bundle, error) {
	path, err := s.path(sessionKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &credstore.Bundle{}, nil
	}
	if err != nil {
		return nil, credstore.NewStoreError("filestore", "Load", "failed to read bundle", err)
	}

	return &credstore.Bundle{Data: data}, nil
}

// Save writes the bundle atomically (temp file + rename) so a crash
// mid-write never leaves a torn bundle behind.
func (s *Store) Save(ctx context.Context, sessionKey string, bundle *credstore.Bundle) error {
	path, err := s.path(sessionKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return credstore.NewStoreError("filestore", "Save", "failed to create session directory", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bundle.Data, 0o600); err != nil {
		return credstore.NewStoreError("filestore", "Save", "failed to write bundle", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return credstore.NewStoreError("filestore", "Save", "failed to replace bundle", err)
	}
	return nil
}

// Delete removes the session directory. A missing key is a no-op.
func (s *Store) Delete(ctx context.Context, sessionKey string) error {
	path, err := s.path(sessionKey)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return credstore.NewStoreError("filestore", "Delete", "failed to remove session directory", err)
	}
	return nil
}

// Kind returns the backend kind.
func (s *Store) Kind() credstore.Kind {
	return credstore.KindFile
}

// Close is a no-op for the file backend.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(sessionKey string) (string, error) {
	if sessionKey == "" || strings.Contains(sessionKey, "..") {
		return "", credstore.NewStoreError("filestore", "path", "invalid session key: "+sessionKey, nil)
	}
	return filepath.Join(s.base, filepath.FromSlash(sessionKey), credsFileName), nil
}
