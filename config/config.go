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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chatbridge/platform/credstore/selector"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings such as "20m" or "1.5s". Bare integers are accepted as
// nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the value like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	ns, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// Config is the full gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Tenants TenantsConfig `yaml:"tenants"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ClientConfig selects the protocol client implementation. Type is a
// factory registration name; Options are passed to the client creator.
type ClientConfig struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options"`
}

// SessionConfig tunes session supervision.
type SessionConfig struct {
	CredentialRoot  string   `yaml:"credential_root"`
	RenewalInterval Duration `yaml:"renewal_interval"`
	RecoveryPace    Duration `yaml:"recovery_pace"`
}

// StorageConfig holds connection settings for the credential store
// backends. Values may be secret references, resolved before use.
type StorageConfig struct {
	FileRoot          string   `yaml:"file_root"`
	RedisURL          string   `yaml:"redis_url"`
	RelationalDSN     string   `yaml:"relational_dsn"`
	MongoURI          string   `yaml:"mongo_uri"`
	MongoDatabase     string   `yaml:"mongo_database"`
	CassandraHosts    []string `yaml:"cassandra_hosts"`
	CassandraKeyspace string   `yaml:"cassandra_keyspace"`
}

// TenantsConfig configures the tenant catalog connection. An empty
// DatabaseURL selects the in-memory catalog, for development only.
type TenantsConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// SelectorConfig converts the storage section into the credential
// store selector's configuration.
func (s StorageConfig) SelectorConfig() selector.Config {
	return selector.Config{
		FileRoot:          s.FileRoot,
		RedisURL:          s.RedisURL,
		RelationalDSN:     s.RelationalDSN,
		MongoURI:          s.MongoURI,
		MongoDatabase:     s.MongoDatabase,
		CassandraHosts:    s.CassandraHosts,
		CassandraKeyspace: s.CassandraKeyspace,
	}
}

// Load reads configuration from a YAML file when path is non-empty,
// falling back to environment variables otherwise.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from CHATBRIDGE_* environment
// variables, with sensible defaults for local development.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("CHATBRIDGE_PORT", "8080"),
			JWTSecret:      os.Getenv("CHATBRIDGE_JWT_SECRET"),
			AllowedOrigins: splitNonEmpty(os.Getenv("CHATBRIDGE_ALLOWED_ORIGINS")),
		},
		Client: ClientConfig{
			Type:    getEnvOrDefault("CHATBRIDGE_CLIENT_TYPE", "simulator"),
			Options: parseOptions(os.Getenv("CHATBRIDGE_CLIENT_OPTIONS")),
		},
		Session: SessionConfig{
			CredentialRoot: getEnvOrDefault("CHATBRIDGE_CREDENTIAL_ROOT", "sessions"),
		},
		Storage: StorageConfig{
			FileRoot:          getEnvOrDefault("CHATBRIDGE_FILE_ROOT", "data"),
			RedisURL:          os.Getenv("CHATBRIDGE_REDIS_URL"),
			RelationalDSN:     firstNonEmpty(os.Getenv("CHATBRIDGE_RELATIONAL_DSN"), os.Getenv("DATABASE_URL")),
			MongoURI:          os.Getenv("CHATBRIDGE_MONGO_URI"),
			MongoDatabase:     os.Getenv("CHATBRIDGE_MONGO_DATABASE"),
			CassandraHosts:    splitNonEmpty(os.Getenv("CHATBRIDGE_CASSANDRA_HOSTS")),
			CassandraKeyspace: os.Getenv("CHATBRIDGE_CASSANDRA_KEYSPACE"),
		},
		Tenants: TenantsConfig{
			DatabaseURL: firstNonEmpty(os.Getenv("CHATBRIDGE_TENANT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		},
	}

	renewal, err := parseDurationEnv("CHATBRIDGE_RENEWAL_INTERVAL", 20*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Session.RenewalInterval = Duration(renewal)

	pace, err := parseDurationEnv("CHATBRIDGE_RECOVERY_PACE", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Session.RecoveryPace = Duration(pace)

	return cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port must be set")
	}
	if c.Client.Type == "" {
		return fmt.Errorf("client type must be set")
	}
	if c.Session.RenewalInterval < 0 {
		return fmt.Errorf("renewal interval must not be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitNonEmpty(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseOptions parses "key=value,key=value" into a map.
func parseOptions(value string) map[string]string {
	opts := make(map[string]string)
	for _, pair := range splitNonEmpty(value) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			opts[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return opts
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %q", key, value)
	}
	return d, nil
}
