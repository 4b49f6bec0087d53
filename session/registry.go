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

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatbridge/platform/credstore"
	"chatbridge/platform/credstore/selector"
	"chatbridge/platform/metacache"
	"chatbridge/platform/pairing"
	"chatbridge/platform/protocol"
	"chatbridge/platform/shared/logger"
	"chatbridge/platform/tenantstore"
)

// DefaultRenewalInterval is how long a connection stays up before the
// supervisor proactively recreates it.
const DefaultRenewalInterval = 20 * time.Minute

// ErrNotRunning is returned by Stop and Logout when the tenant has no
// supervised session.
var ErrNotRunning = errors.New("session: tenant has no active session")

// ErrSessionOpen is returned when a pairing code is requested for a
// session that already completed authentication.
var ErrSessionOpen = errors.New("session: already authenticated and open")

// Options configures a Registry. Client, Stores and Tenants are
// required; everything else has working defaults.
type Options struct {
	Client  protocol.Client
	Stores  *selector.Selector
	Tenants tenantstore.Store

	// Pairing receives QR and connected events. When set, the registry
	// installs itself as the coordinator's connection provider.
	Pairing *pairing.Coordinator

	// Groups is the shared group metadata cache. Defaults to a fresh
	// cache with the standard TTL.
	Groups *metacache.Cache

	// Policy is the reconnect backoff policy. A zero BaseDelay selects
	// DefaultPolicy.
	Policy Policy

	// RenewalInterval bounds connection staleness. Zero selects
	// DefaultRenewalInterval; negative disables renewal.
	RenewalInterval time.Duration

	// CredentialRoot namespaces session keys in credential storage.
	CredentialRoot string

	Metrics *Metrics
}

// Registry maps tenant IDs to their supervisors and enforces at most
// one live connection per tenant. Creation for the same tenant is
// serialized on a per-tenant lock; different tenants never contend.
type Registry struct {
	opts Options
	log  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Supervisor
	locks    map[string]*sync.Mutex
}

// NewRegistry creates a registry and wires it into the pairing
// coordinator when one is provided.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Client == nil {
		return nil, errors.New("session: protocol client is required")
	}
	if opts.Stores == nil {
		return nil, errors.New("session: credential store selector is required")
	}
	if opts.Tenants == nil {
		return nil, errors.New("session: tenant store is required")
	}
	if opts.Groups == nil {
		opts.Groups = metacache.New(0)
	}
	if opts.Policy.BaseDelay == 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.RenewalInterval == 0 {
		opts.RenewalInterval = DefaultRenewalInterval
	}

	r := &Registry{
		opts:     opts,
		log:      logger.New("session"),
		sessions: make(map[string]*Supervisor),
		locks:    make(map[string]*sync.Mutex),
	}
	if opts.Pairing != nil {
		opts.Pairing.SetProvider(r)
	}
	return r, nil
}

// GetOrCreate returns the tenant's live supervisor, creating one when
// none exists or the previous one terminated. Concurrent calls for the
// same tenant yield the same supervisor and exactly one connection.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string) (*Supervisor, error) {
	lock := r.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	existing := r.sessions[tenantID]
	r.mu.Unlock()

	if existing != nil {
		select {
		case <-existing.Done():
			// Stale entry; fall through and recreate.
			r.removeSupervisor(existing)
		default:
			return existing, nil
		}
	}

	tenant, err := r.opts.Tenants.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tenant %s: %w", tenantID, err)
	}

	store, err := r.opts.Stores.Open(ctx, tenant.StorageKind)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store for tenant %s: %w", tenantID, err)
	}

	sup := newSupervisor(supervisorConfig{
		tenantID:   tenantID,
		sessionKey: credstore.SessionKey(r.opts.CredentialRoot, tenantID),
		client:     r.opts.Client,
		creds:      store,
		tenants:    r.opts.Tenants,
		pairing:    r.opts.Pairing,
		groups:     r.opts.Groups,
		policy:     r.opts.Policy,
		renewal:    r.opts.RenewalInterval,
		metrics:    r.opts.Metrics,
		log:        r.log,
		onRemove:   r.removeSupervisor,
	})

	r.mu.Lock()
	r.sessions[tenantID] = sup
	r.mu.Unlock()

	r.opts.Metrics.sessionStarted()
	r.log.Info(tenantID, "", "Session supervision started", map[string]interface{}{
		"storage_kind": string(store.Kind()),
	})
	sup.start()
	return sup, nil
}

// Get returns the tenant's supervisor without creating one.
func (r *Registry) Get(tenantID string) (*Supervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sup, ok := r.sessions[tenantID]
	return sup, ok
}

// Count returns the number of supervised tenants.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// TenantIDs returns the IDs of every supervised tenant.
func (r *Registry) TenantIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stop ends a tenant's session silently, keeping stored credentials so
// the session can resume later.
func (r *Registry) Stop(ctx context.Context, tenantID string) error {
	sup, ok := r.Get(tenantID)
	if !ok {
		return ErrNotRunning
	}
	return sup.Stop(ctx)
}

// Logout invalidates a tenant's session upstream and purges its
// credentials.
func (r *Registry) Logout(ctx context.Context, tenantID string) error {
	sup, ok := r.Get(tenantID)
	if !ok {
		return ErrNotRunning
	}
	return sup.Logout(ctx)
}

// StopAll ends every supervised session, used at process shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	for _, id := range r.TenantIDs() {
		if err := r.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
			r.log.Warn(id, "", "Failed to stop session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// PairingHandle implements pairing.ConnectionProvider. It returns the
// tenant's pre-open transport handle, starting a connection when none
// exists. Requesting a pairing handle for an open session is an error.
func (r *Registry) PairingHandle(ctx context.Context, tenantID string) (protocol.Handle, error) {
	sup, err := r.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sup.Status() == StatusOpen {
		return nil, ErrSessionOpen
	}
	return sup.WaitForHandle(ctx)
}

// PurgeCredentials implements pairing.ConnectionProvider. It deletes
// the tenant's stored credential bundle directly from its backend.
func (r *Registry) PurgeCredentials(ctx context.Context, tenantID string) error {
	tenant, err := r.opts.Tenants.FindTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to look up tenant %s: %w", tenantID, err)
	}

	store, err := r.opts.Stores.Open(ctx, tenant.StorageKind)
	if err != nil {
		return fmt.Errorf("failed to open credential store for tenant %s: %w", tenantID, err)
	}
	defer func() { _ = store.Close() }()

	return store.Delete(ctx, credstore.SessionKey(r.opts.CredentialRoot, tenantID))
}

func (r *Registry) tenantLock(tenantID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[tenantID] = lock
	}
	return lock
}

// removeSupervisor drops a registry entry, but only if it still maps
// to the given supervisor; a replacement created in the meantime is
// left alone.
func (r *Registry) removeSupervisor(sup *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[sup.TenantID()] == sup {
		delete(r.sessions, sup.TenantID())
	}
}
