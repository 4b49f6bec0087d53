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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret identifier to its key-value payload.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretID string) (map[string]string, error)
}

// secretScheme prefixes configuration values that refer to a managed
// secret instead of holding the value inline: secret://<id>#<key>.
const secretScheme = "secret://"

// HasSecretRefs reports whether any configuration value is a secret
// reference that still needs resolving.
func (c *Config) HasSecretRefs() bool {
	for _, v := range []string{
		c.Server.JWTSecret,
		c.Storage.RedisURL,
		c.Storage.RelationalDSN,
		c.Storage.MongoURI,
		c.Tenants.DatabaseURL,
	} {
		if strings.HasPrefix(v, secretScheme) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces secret references in the storage and tenant
// sections with their resolved values. Values without the secret://
// scheme are left untouched.
func ResolveSecrets(ctx context.Context, cfg *Config, sm SecretsManager) error {
	fields := []*string{
		&cfg.Server.JWTSecret,
		&cfg.Storage.RedisURL,
		&cfg.Storage.RelationalDSN,
		&cfg.Storage.MongoURI,
		&cfg.Tenants.DatabaseURL,
	}
	for _, field := range fields {
		resolved, err := resolveSecretRef(ctx, sm, *field)
		if err != nil {
			return err
		}
		*field = resolved
	}
	return nil
}

func resolveSecretRef(ctx context.Context, sm SecretsManager, value string) (string, error) {
	if !strings.HasPrefix(value, secretScheme) {
		return value, nil
	}

	ref := strings.TrimPrefix(value, secretScheme)
	secretID, key := ref, "value"
	if idx := strings.LastIndex(ref, "#"); idx != -1 {
		secretID, key = ref[:idx], ref[idx+1:]
	}

	secret, err := sm.GetSecret(ctx, secretID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret reference %s: %w", maskSecretID(secretID), err)
	}
	resolved, ok := secret[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", maskSecretID(secretID), key)
	}
	return resolved, nil
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute // Cache secrets for 5 minutes by default
	}

	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager
// The secret value is expected to be a JSON object with string values
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	// Check cache first
	s.mu.RLock()
	entry, exists := s.cache[secretID]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskSecretID(secretID))

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}

	result, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskSecretID(secretID), err)
	}

	var secretValue string
	if result.SecretString != nil {
		secretValue = *result.SecretString
	} else {
		return nil, fmt.Errorf("secret %s has no string value", maskSecretID(secretID))
	}

	// Parse JSON secret; a plain string becomes {"value": <string>}
	// so single-value secrets like a bare DSN still resolve.
	var payload map[string]string
	if err := json.Unmarshal([]byte(secretValue), &payload); err != nil {
		payload = map[string]string{
			"value": secretValue,
		}
	}

	s.mu.Lock()
	s.cache[secretID] = &secretCacheEntry{
		value:     payload,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return payload, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretID string) {
	s.mu.Lock()
	delete(s.cache, secretID)
	s.mu.Unlock()
	s.logger.Printf("Invalidated cache for secret %s", maskSecretID(secretID))
}

// InvalidateAll clears the entire secret cache
func (s *AWSSecretsManager) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]*secretCacheEntry)
	s.mu.Unlock()
	s.logger.Println("Invalidated all cached secrets")
}

// LocalSecretsManager implements SecretsManager with an in-process map.
// Useful for development and tests without AWS Secrets Manager.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates a local secrets manager for development
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, secretID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[secretID]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", secretID)
}

// SetSecret stores a secret locally (for testing/development)
func (s *LocalSecretsManager) SetSecret(secretID string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretID] = value
}

// maskSecretID masks the secret identifier for logging (shows only last 8 characters)
func maskSecretID(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}
