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

package gateway

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chatbridge/platform/config"
	"chatbridge/platform/credstore/selector"
	"chatbridge/platform/metacache"
	"chatbridge/platform/pairing"
	"chatbridge/platform/protocol"
	"chatbridge/platform/session"
	"chatbridge/platform/tenantstore"
)

// Run is the exported entry point for the gateway service. It loads
// configuration, wires the session registry and its collaborators,
// kicks off startup recovery, and serves HTTP until the process exits.
func Run() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CHATBRIDGE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.HasSecretRefs() {
		sm, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{
			Region: os.Getenv("CHATBRIDGE_AWS_REGION"),
		})
		if err != nil {
			log.Fatalf("Failed to create secrets manager: %v", err)
		}
		if err := config.ResolveSecrets(ctx, cfg, sm); err != nil {
			log.Fatalf("Failed to resolve secrets: %v", err)
		}
	}

	client, err := protocol.DefaultFactory().Create(cfg.Client.Type, cfg.Client.Options)
	if err != nil {
		log.Fatalf("Failed to create protocol client %q: %v", cfg.Client.Type, err)
	}

	var tenants tenantstore.Store
	if cfg.Tenants.DatabaseURL != "" {
		pg, err := tenantstore.NewPostgresStore(ctx, cfg.Tenants.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect tenant catalog: %v", err)
		}
		tenants = pg
	} else {
		log.Println("Warning: no tenant database configured, using in-memory catalog")
		tenants = tenantstore.NewMemoryStore()
	}

	coordinator := pairing.NewCoordinator()
	groups := metacache.New(0)
	groups.StartCleanup(ctx, 10*time.Minute)

	registry, err := session.NewRegistry(session.Options{
		Client:          client,
		Stores:          selector.New(cfg.Storage.SelectorConfig()),
		Tenants:         tenants,
		Pairing:         coordinator,
		Groups:          groups,
		RenewalInterval: cfg.Session.RenewalInterval.Std(),
		CredentialRoot:  cfg.Session.CredentialRoot,
		Metrics:         session.NewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		log.Fatalf("Failed to create session registry: %v", err)
	}

	// Reconnect previously active tenants in the background so the
	// HTTP surface comes up immediately.
	recovery := session.NewRecovery(registry, tenants, cfg.Session.RecoveryPace.Std())
	go func() {
		if err := recovery.Run(ctx); err != nil {
			log.Printf("Startup recovery aborted: %v", err)
		}
	}()

	server := NewServer(Options{
		Registry:       registry,
		Pairing:        coordinator,
		Tenants:        tenants,
		JWTSecret:      cfg.Server.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	log.Printf("ChatBridge gateway starting on port %s", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, server.Handler()))
}
