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
	"sync"
	"testing"
	"time"

	"chatbridge/platform/pairing"
	"chatbridge/platform/protocol"
	"chatbridge/platform/protocol/simulator"
	"chatbridge/platform/tenantstore"
)

// TestConcurrentGetOrCreateSingleConnection verifies racing callers
// share one supervisor and exactly one transport is created.
func TestConcurrentGetOrCreateSingleConnection(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T1")

	const callers = 10
	supervisors := make([]*Supervisor, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sup, err := env.registry.GetOrCreate(context.Background(), "T1")
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			supervisors[i] = sup
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if supervisors[i] != supervisors[0] {
			t.Fatal("Concurrent GetOrCreate returned different supervisors")
		}
	}

	waitFor(t, 2*time.Second, func() bool { return env.client.ConnectCount() >= 1 },
		"no transport created")
	time.Sleep(100 * time.Millisecond)
	if got := env.client.ConnectCount(); got != 1 {
		t.Errorf("Expected exactly 1 transport, got %d", got)
	}
	if env.registry.Count() != 1 {
		t.Errorf("Expected 1 registry entry, got %d", env.registry.Count())
	}
}

// TestGetOrCreateAfterTermination verifies a terminated entry is
// replaced by a fresh supervisor.
func TestGetOrCreateAfterTermination(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T2")

	sup1, err := env.registry.GetOrCreate(context.Background(), "T2")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	h := env.waitHandle(1)
	h.EmitClose(protocol.CloseLoggedOut, nil)
	<-sup1.Done()

	sup2, err := env.registry.GetOrCreate(context.Background(), "T2")
	if err != nil {
		t.Fatalf("GetOrCreate after termination failed: %v", err)
	}
	if sup2 == sup1 {
		t.Error("Expected a fresh supervisor after termination")
	}
	waitFor(t, 2*time.Second, func() bool { return env.client.ConnectCount() >= 2 },
		"no new transport for recreated session")
}

// TestGetOrCreateUnknownTenant verifies unknown tenants surface the
// catalog's not-found error.
func TestGetOrCreateUnknownTenant(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T1")

	_, err := env.registry.GetOrCreate(context.Background(), "nope")
	if !errors.Is(err, tenantstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestStopAndLogoutWithoutSession verifies both report ErrNotRunning.
func TestStopAndLogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T1")

	if err := env.registry.Stop(context.Background(), "T1"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop: expected ErrNotRunning, got %v", err)
	}
	if err := env.registry.Logout(context.Background(), "T1"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Logout: expected ErrNotRunning, got %v", err)
	}
}

// TestLogoutPurgesCredentials verifies logout invalidates upstream and
// deletes the stored bundle.
func TestLogoutPurgesCredentials(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T3")

	sup, err := env.registry.GetOrCreate(context.Background(), "T3")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	h := env.waitHandle(1)
	h.EmitOpen()
	waitFor(t, 2*time.Second, func() bool { return sup.Status() == StatusOpen }, "not OPEN")

	h.EmitCredentials([]byte(`{"session":"state"}`))
	waitFor(t, 2*time.Second, func() bool { return !env.loadBundle("T3").Empty() },
		"credentials not persisted")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.registry.Logout(ctx, "T3"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if !env.loadBundle("T3").Empty() {
		t.Error("Expected credentials to be purged on logout")
	}
	if _, ok := env.registry.Get("T3"); ok {
		t.Error("Expected registry entry to be removed")
	}
}

// TestRequestPairingCode verifies the phone pairing flow end to end
// through the coordinator and registry.
func TestRequestPairingCode(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T4")

	code, err := env.pairing.RequestPairingCode(context.Background(), "T4", "+14155552671")
	if err != nil {
		t.Fatalf("RequestPairingCode failed: %v", err)
	}
	if code != "ABCD-1234" {
		t.Errorf("Expected scripted code, got %q", code)
	}
}

// TestRequestPairingCodeInvalidPhone verifies validation happens before
// any session state is created.
func TestRequestPairingCodeInvalidPhone(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T4")

	_, err := env.pairing.RequestPairingCode(context.Background(), "T4", "not-a-number")
	if !errors.Is(err, pairing.ErrInvalidPhone) {
		t.Fatalf("Expected ErrInvalidPhone, got %v", err)
	}
	if _, ok := env.registry.Get("T4"); ok {
		t.Error("Invalid phone must not create session state")
	}
	if env.client.ConnectCount() != 0 {
		t.Error("Invalid phone must not open a transport")
	}
}

// TestRequestPairingCodeFailurePurges verifies a rejected pairing
// attempt purges the tenant's credentials.
func TestRequestPairingCodeFailurePurges(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T5")

	if _, err := env.registry.GetOrCreate(context.Background(), "T5"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	h := env.waitHandle(1)
	h.EmitCredentials([]byte(`{"partial":"state"}`))
	waitFor(t, 2*time.Second, func() bool { return !env.loadBundle("T5").Empty() },
		"credentials not persisted")

	h.SetPairingErr(errors.New("pairing rejected"))

	_, err := env.pairing.RequestPairingCode(context.Background(), "T5", "+14155552671")
	if err == nil {
		t.Fatal("Expected pairing failure")
	}
	if !env.loadBundle("T5").Empty() {
		t.Error("Expected credentials to be purged after failed pairing")
	}
}

// TestPairingCodeOnOpenSession verifies requesting a code for an
// already authenticated session fails with ErrSessionOpen.
func TestPairingCodeOnOpenSession(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil, "T6")

	sup, err := env.registry.GetOrCreate(context.Background(), "T6")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	h := env.waitHandle(1)
	h.EmitOpen()
	waitFor(t, 2*time.Second, func() bool { return sup.Status() == StatusOpen }, "not OPEN")

	_, err = env.pairing.RequestPairingCode(context.Background(), "T6", "+14155552671")
	if !errors.Is(err, ErrSessionOpen) {
		t.Errorf("Expected ErrSessionOpen, got %v", err)
	}
}

// TestRecoveryReconnectsActiveTenants verifies startup recovery
// restores every active tenant and skips inactive ones.
func TestRecoveryReconnectsActiveTenants(t *testing.T) {
	env := newTestEnv(t, simulator.Options{}, nil)

	env.tenants.Put(tenantstore.Tenant{ID: "A1", Active: true})
	env.tenants.Put(tenantstore.Tenant{ID: "A2", Active: true})
	env.tenants.Put(tenantstore.Tenant{ID: "B1", Active: false})

	recovery := NewRecovery(env.registry, env.tenants, 10*time.Millisecond)
	if err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("Recovery failed: %v", err)
	}

	if env.registry.Count() != 2 {
		t.Errorf("Expected 2 recovered sessions, got %d", env.registry.Count())
	}
	if _, ok := env.registry.Get("B1"); ok {
		t.Error("Inactive tenant must not be recovered")
	}
}

// TestRecoveryContinuesPastFailures verifies one tenant's failure does
// not abort recovery of the rest.
func TestRecoveryContinuesPastFailures(t *testing.T) {
	seed := tenantstore.NewMemoryStore(
		tenantstore.Tenant{ID: "A1", Active: true},
		tenantstore.Tenant{ID: "A2", Active: true},
	)
	// Listed as active but failing FindTenant, which makes GetOrCreate
	// fail for this tenant only.
	broken := &flakyTenantStore{MemoryStore: seed, failFor: "A1"}

	env := newTestEnv(t, simulator.Options{}, func(o *Options) {
		o.Tenants = broken
	})

	recovery := NewRecovery(env.registry, broken, 10*time.Millisecond)
	if err := recovery.Run(context.Background()); err != nil {
		t.Fatalf("Recovery failed: %v", err)
	}

	if _, ok := env.registry.Get("A2"); !ok {
		t.Error("Healthy tenant was not recovered")
	}
	if _, ok := env.registry.Get("A1"); ok {
		t.Error("Broken tenant should not have a session")
	}
}

// flakyTenantStore fails FindTenant for one tenant ID.
type flakyTenantStore struct {
	*tenantstore.MemoryStore
	failFor string
}

func (f *flakyTenantStore) FindTenant(ctx context.Context, tenantID string) (*tenantstore.Tenant, error) {
	if tenantID == f.failFor {
		return nil, errors.New("catalog unavailable")
	}
	return f.MemoryStore.FindTenant(ctx, tenantID)
}
