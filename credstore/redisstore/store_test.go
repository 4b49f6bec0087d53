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

package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"chatbridge/platform/credstore"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := New(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

// TestLoadMissingKey verifies a never-saved key yields an empty bundle.
func TestLoadMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	bundle, err := store.Load(context.Background(), "sessions/unknown")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bundle.Empty() {
		t.Error("Expected empty bundle for missing key")
	}
}

// TestSaveLoadRoundtrip verifies a saved bundle is read back intact and
// stored under the expected key.
func TestSaveLoadRoundtrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	data := []byte(`{"noise_key":"abc"}`)

	if err := store.Save(ctx, "sessions/T1", &credstore.Bundle{Data: data}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := mr.Get("creds:sessions/T1")
	if err != nil {
		t.Fatalf("Expected key creds:sessions/T1 in Redis: %v", err)
	}
	if stored != string(data) {
		t.Errorf("Stored %q, expected %q", stored, data)
	}

	bundle, err := store.Load(ctx, "sessions/T1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(bundle.Data) != string(data) {
		t.Errorf("Loaded %q, expected %q", bundle.Data, data)
	}
}

// TestDelete verifies delete removes the key and tolerates missing keys.
func TestDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sessions/T1", &credstore.Bundle{Data: []byte(`x`)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "sessions/T1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("creds:sessions/T1") {
		t.Error("Expected key to be deleted")
	}

	if err := store.Delete(ctx, "sessions/never-existed"); err != nil {
		t.Errorf("Delete of missing key must be a no-op, got %v", err)
	}
}

// TestNewBadURL verifies a malformed URL is rejected.
func TestNewBadURL(t *testing.T) {
	if _, err := New(context.Background(), "not-a-url"); err == nil {
		t.Error("Expected error for malformed Redis URL")
	}
}

// TestKind verifies the reported storage kind.
func TestKind(t *testing.T) {
	store, _ := newTestStore(t)
	if store.Kind() != credstore.KindKeyValue {
		t.Errorf("Expected KEY_VALUE, got %s", store.Kind())
	}
}
