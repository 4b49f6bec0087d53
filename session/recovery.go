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
	"fmt"
	"time"

	"chatbridge/platform/shared/logger"
	"chatbridge/platform/tenantstore"
)

// DefaultRecoveryPace is the delay between consecutive reconnects
// during startup recovery, keeping the process from opening a
// connection storm against the remote endpoint.
const DefaultRecoveryPace = time.Second

// Recovery re-establishes connections for every tenant flagged active
// in the catalog, typically at process start.
type Recovery struct {
	registry *Registry
	tenants  tenantstore.Store
	pace     time.Duration
	log      *logger.Logger
}

// NewRecovery creates a recovery runner. A non-positive pace uses
// DefaultRecoveryPace.
func NewRecovery(registry *Registry, tenants tenantstore.Store, pace time.Duration) *Recovery {
	if pace <= 0 {
		pace = DefaultRecoveryPace
	}
	return &Recovery{
		registry: registry,
		tenants:  tenants,
		pace:     pace,
		log:      logger.New("recovery"),
	}
}

// Run reconnects all active tenants sequentially with pacing. One
// tenant failing to reconnect is logged and does not abort recovery of
// the rest. Run returns early only when the catalog itself is
// unreadable or ctx is cancelled.
func (r *Recovery) Run(ctx context.Context) error {
	start := time.Now()

	tenants, err := r.tenants.FindActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active tenants: %w", err)
	}

	recovered := 0
	for i, tenant := range tenants {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pace):
			}
		}

		if _, err := r.registry.GetOrCreate(ctx, tenant.ID); err != nil {
			r.log.Warn(tenant.ID, "", "Failed to recover session", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		recovered++
	}

	r.log.InfoWithDuration("", "", "Startup recovery completed",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"tenants":   len(tenants),
			"recovered": recovered,
		})
	return nil
}
