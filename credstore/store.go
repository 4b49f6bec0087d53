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

package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind selects a credential storage backend for a tenant.
type Kind string

const (
	KindFile       Kind = "FILE"
	KindKeyValue   Kind = "KEY_VALUE"
	KindRelational Kind = "RELATIONAL"
	KindDocument   Kind = "DOCUMENT"
	KindWideColumn Kind = "WIDE_COLUMN"
)

// ParseKind maps a stored storage-kind string to a Kind. Unrecognized
// values resolve to KindFile so a tenant with a bad row can still run.
func ParseKind(s string) Kind {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindKeyValue:
		return KindKeyValue
	case KindRelational:
		return KindRelational
	case KindDocument:
		return KindDocument
	case KindWideColumn:
		return KindWideColumn
	default:
		return KindFile
	}
}

// Bundle is the opaque per-tenant credential state. Its serialized form
// is owned by the protocol client; stores persist it as a blob and never
// inspect it. Replaying the same Save twice is harmless.
type Bundle struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// Empty reports whether the bundle carries no credential state, i.e. the
// tenant has never authenticated (or was purged).
func (b *Bundle) Empty() bool {
	return b == nil || len(b.Data) == 0
}

// Store persists credential bundles keyed by session key. All backends
// satisfy the same semantics: Load of a missing key returns a fresh empty
// bundle, Delete of a missing key is a no-op. Implementations must be
// safe for concurrent use.
type Store interface {
	Load(ctx context.Context, sessionKey string) (*Bundle, error)
	Save(ctx context.Context, sessionKey string, bundle *Bundle) error
	Delete(ctx context.Context, sessionKey string) error
	Kind() Kind
	Close() error
}

// SessionKey derives the storage key for a tenant under the configured
// namespace root, e.g. "sessions/tenant-42".
func SessionKey(root, tenantID string) string {
	if root == "" {
		root = "sessions"
	}
	return root + "/" + tenantID
}

// StoreError wraps a backend failure with enough context to log it
// without losing the cause.
type StoreError struct {
	Backend   string
	Operation string
	Message   string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %s (cause: %v)", e.Backend, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Backend, e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation, message string, cause error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
