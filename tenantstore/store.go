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

// Package tenantstore is the session layer's view of the tenant
// catalog. Tenant CRUD lives elsewhere; this package only reads
// identities and mirrors the per-tenant active flag.
package tenantstore

import (
	"context"
	"errors"

	"chatbridge/platform/credstore"
)

// ErrNotFound is returned when a tenant ID is unknown.
var ErrNotFound = errors.New("tenant not found")

// Tenant is one chat-network instance as the session layer sees it.
type Tenant struct {
	ID          string
	StorageKind credstore.Kind
	Active      bool
}

// Store reads tenants and mirrors their connection status.
type Store interface {
	// FindActiveTenants returns every tenant whose active flag is set;
	// these are the tenants startup recovery reconnects.
	FindActiveTenants(ctx context.Context) ([]Tenant, error)

	// FindTenant returns one tenant, or ErrNotFound.
	FindTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// SetActive mirrors a connection open/close to the catalog.
	SetActive(ctx context.Context, tenantID string, active bool) error
}
