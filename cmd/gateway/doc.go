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
Command gateway runs the ChatBridge session gateway.

The gateway supervises one long-lived chat-network connection per
tenant: it authenticates sessions (QR scan or phone pairing code),
persists credential bundles across pluggable storage backends,
reconnects dropped sessions with exponential backoff, and recovers all
previously active tenants at startup.

# Usage

	gateway

# Environment Variables

Optional:
  - CHATBRIDGE_PORT: HTTP server port (default: 8080)
  - CHATBRIDGE_CONFIG: YAML configuration file path
  - CHATBRIDGE_CLIENT_TYPE: protocol client implementation (default: simulator)
  - CHATBRIDGE_CLIENT_OPTIONS: client options as key=value,key=value
  - CHATBRIDGE_JWT_SECRET: Bearer token secret; empty disables auth
  - CHATBRIDGE_CREDENTIAL_ROOT: credential namespace (default: sessions)
  - CHATBRIDGE_RENEWAL_INTERVAL: proactive renewal interval (default: 20m)
  - CHATBRIDGE_RECOVERY_PACE: delay between startup reconnects (default: 1s)
  - DATABASE_URL: PostgreSQL DSN for the tenant catalog and RELATIONAL storage
  - CHATBRIDGE_REDIS_URL: Redis URL for KEY_VALUE storage
  - CHATBRIDGE_MONGO_URI / CHATBRIDGE_MONGO_DATABASE: DOCUMENT storage
  - CHATBRIDGE_CASSANDRA_HOSTS / CHATBRIDGE_CASSANDRA_KEYSPACE: WIDE_COLUMN storage
  - CHATBRIDGE_AWS_REGION: region for secret:// reference resolution

# API

	GET  /health
	GET  /metrics
	POST /v1/instances/{id}/connect
	GET  /v1/instances/{id}/status
	GET  /v1/instances/{id}/qr            (server-sent events)
	POST /v1/instances/{id}/pairing-code  {"phone": "+14155552671"}
	POST /v1/instances/{id}/logout
	POST /v1/instances/{id}/close
*/
package main
