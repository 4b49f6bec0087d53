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
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

// NewMemoryStore creates a memory store seeded with the given tenants.
func NewMemoryStore(tenants ...Tenant) *MemoryStore {
	m := &MemoryStore{tenants: make(map[string]Tenant)}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

// Put adds or replaces a tenant.
func (m *MemoryStore) Put(t Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

// FindActiveTenants returns active tenants in stable ID order.
func (m *MemoryStore) FindActiveTenants(ctx context.Context) ([]Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Tenant
	for _, t := range m.tenants {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindTenant returns one tenant, or ErrNotFound.
func (m *MemoryStore) FindTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// SetActive updates the active flag. Unknown tenants return ErrNotFound.
func (m *MemoryStore) SetActive(ctx context.Context, tenantID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	t.Active = active
	m.tenants[tenantID] = t
	return nil
}
