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

/*
Package session supervises one long-lived chat-network connection per
tenant.

# Overview

Each tenant gets a Supervisor running a single goroutine that owns the
connection's state machine:

	CONNECTING -> AWAITING_AUTH -> OPEN -> (CLOSING) ->
	    {RECONNECTING -> CONNECTING} | LOGGED_OUT

The Supervisor loads credentials, opens the transport, consumes its
event stream in order, persists credential updates, mirrors the
tenant's active flag to the catalog, and classifies every close into a
disposition: retry with exponential backoff, immediate restart,
terminal with credential purge, or silent stop.

The Registry enforces at most one live connection per tenant.
Concurrent GetOrCreate calls for the same tenant serialize on a
per-tenant lock and share one supervisor.

# Usage

Wire a registry from its collaborators:

	registry, err := session.NewRegistry(session.Options{
	    Client:  client,
	    Stores:  selector.New(storeCfg),
	    Tenants: tenants,
	    Pairing: coordinator,
	})
	if err != nil {
	    log.Fatalf("Failed to create registry: %v", err)
	}

Start or fetch a tenant's session:

	sup, err := registry.GetOrCreate(ctx, "tenant-123")

Recover all active tenants at startup with pacing:

	recovery := session.NewRecovery(registry, tenants, session.DefaultRecoveryPace)
	if err := recovery.Run(ctx); err != nil {
	    log.Printf("Recovery aborted: %v", err)
	}

# Reconnect Policy

Backoff is exponential: 5s base, doubling per attempt, capped at 300s.
Logged-out and bad-session closes are terminal; a caller-initiated
stop ends the session without touching stored credentials; restart and
renewal closes reconnect immediately with no delay. The attempt
counter resets to zero on every successful open.
*/
package session
