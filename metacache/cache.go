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

// Package metacache caches chat-group descriptors with a TTL. Expired
// entries are treated as absent immediately; physical eviction is lazy
// (on read or via Cleanup).
package metacache

import (
	"context"
	"sync"
	"time"

	"chatbridge/platform/protocol"
)

// DefaultTTL matches the upstream network's group metadata freshness
// window.
const DefaultTTL = time.Hour

type entry struct {
	group     protocol.Group
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a TTL cache of group descriptors keyed by group ID.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	stats   Stats
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// New creates a cache with the given TTL. A non-positive TTL uses
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// UpsertMany stores full group descriptors from a bulk sync, resetting
// their TTL.
func (c *Cache) UpsertMany(groups []protocol.Group) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range groups {
		if g.ID == "" {
			continue
		}
		c.entries[g.ID] = &entry{group: g, expiresAt: now.Add(c.ttl)}
	}
}

// MergePartial folds a partial patch into an existing cached descriptor.
// A patch for an unknown or expired group is a no-op; partials never
// create entries.
func (c *Cache) MergePartial(id string, patch protocol.Group) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || e.expired(now) {
		return
	}

	merged := e.group
	if patch.Subject != "" {
		merged.Subject = patch.Subject
	}
	if patch.Owner != "" {
		merged.Owner = patch.Owner
	}
	if patch.Participants != 0 {
		merged.Participants = patch.Participants
	}
	if patch.Announce {
		merged.Announce = patch.Announce
	}
	c.entries[id] = &entry{group: merged, expiresAt: now.Add(c.ttl)}
}

// Get returns the cached descriptor for a group, or false when the
// group is unknown or its entry has expired.
func (c *Cache) Get(id string) (protocol.Group, bool) {
	now := time.Now()
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok || e.expired(now) {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return protocol.Group{}, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return e.group, true
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup evicts expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, id)
			evicted++
		}
	}
	c.stats.Evictions += int64(evicted)
	return evicted
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (c *Cache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// GetStats returns a copy of the performance counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
