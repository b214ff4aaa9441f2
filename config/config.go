package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backend identifiers accepted in storage.backend.
const (
	BackendSQLite   = "sqlite"
	BackendHTTPSQL  = "httpsql"
	BackendPostgres = "postgres"
	BackendNATSKV   = "natskv"
)

const envPrefix = "SYNC_STORAGE"

// Config represents the complete application configuration.
type Config struct {
	Listen  ListenConfig  `json:"listen"`
	Auth    AuthConfig    `json:"auth"`
	Storage StorageConfig `json:"storage"`
	Limits  LimitsConfig  `json:"limits"`
	Metrics MetricsConfig `json:"metrics"`
	Health  HealthConfig  `json:"health"`
	Log     LogConfig     `json:"log"`
}

// ListenConfig defines the HTTP edge listener.
type ListenConfig struct {
	Addr string `json:"addr"`
	// CORSOrigins lists the origins allowed to call the API from a
	// browser; "*" allows any. Empty disables CORS handling.
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// AuthConfig defines the bearer token gate and scope-header defaults.
type AuthConfig struct {
	Token            string `json:"token,omitempty"`
	DefaultTenant    string `json:"default_tenant,omitempty"`
	DefaultNamespace string `json:"default_namespace,omitempty"`
}

// StorageConfig selects a backend and carries its settings.
type StorageConfig struct {
	Backend  string         `json:"backend"`
	SQLite   SQLiteConfig   `json:"sqlite,omitempty"`
	HTTPSQL  HTTPSQLConfig  `json:"httpsql,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
	NATSKV   NATSKVConfig   `json:"natskv,omitempty"`
}

// SQLiteConfig holds settings for the embedded backend.
type SQLiteConfig struct {
	Path string `json:"path,omitempty"`
}

// HTTPSQLConfig holds settings for the remote SQL-over-HTTP backend.
type HTTPSQLConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// PostgresConfig holds settings for the Postgres backend.
type PostgresConfig struct {
	DSN string `json:"dsn,omitempty"`
}

// NATSKVConfig holds settings for the JetStream KV backend.
type NATSKVConfig struct {
	URL      string `json:"url,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// LimitsConfig carries the request-shaping bounds. Zero values fall back
// to the documented defaults at wiring time.
type LimitsConfig struct {
	MaxKeyLength     int `json:"max_key_length,omitempty"`
	MaxValueBytes    int `json:"max_value_bytes,omitempty"`
	MaxBatchSize     int `json:"max_batch_size,omitempty"`
	MaxListLimit     int `json:"max_list_limit,omitempty"`
	DefaultListLimit int `json:"default_list_limit,omitempty"`
}

// MetricsConfig defines the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// HealthConfig defines backend probing.
type HealthConfig struct {
	IntervalSeconds int `json:"interval_seconds,omitempty"`
}

// LogConfig defines slog output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text, json
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "sync-storage.db"},
			NATSKV:  NATSKVConfig{URL: "nats://localhost:4222", Bucket: "sync_storage"},
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Health:  HealthConfig{IntervalSeconds: 15},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, an optional JSON file and
// environment overrides, then validates it. An empty path skips the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %s failed: %w", path, err)
		}
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("config.Load: invalid JSON structure: %w", err)
		}
		decoder := json.NewDecoder(strings.NewReader(string(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse %s failed: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies SYNC_STORAGE_* environment variables on top of
// the file layer.
func applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		suffix string
		target *string
	}{
		{"LISTEN_ADDR", &cfg.Listen.Addr},
		{"AUTH_TOKEN", &cfg.Auth.Token},
		{"DEFAULT_TENANT", &cfg.Auth.DefaultTenant},
		{"DEFAULT_NAMESPACE", &cfg.Auth.DefaultNamespace},
		{"BACKEND", &cfg.Storage.Backend},
		{"SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"HTTPSQL_URL", &cfg.Storage.HTTPSQL.BaseURL},
		{"HTTPSQL_TOKEN", &cfg.Storage.HTTPSQL.AuthToken},
		{"POSTGRES_DSN", &cfg.Storage.Postgres.DSN},
		{"NATS_URL", &cfg.Storage.NATSKV.URL},
		{"NATS_BUCKET", &cfg.Storage.NATSKV.Bucket},
		{"NATS_USERNAME", &cfg.Storage.NATSKV.Username},
		{"NATS_PASSWORD", &cfg.Storage.NATSKV.Password},
		{"NATS_TOKEN", &cfg.Storage.NATSKV.Token},
		{"METRICS_PATH", &cfg.Metrics.Path},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, o := range overrides {
		key := envPrefix + "_" + o.suffix
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if err := validateEnvVar(key, value); err != nil {
			return err
		}
		*o.target = value
	}

	intOverrides := []struct {
		suffix string
		target *int
	}{
		{"METRICS_PORT", &cfg.Metrics.Port},
		{"HEALTH_INTERVAL_SECONDS", &cfg.Health.IntervalSeconds},
		{"MAX_KEY_LENGTH", &cfg.Limits.MaxKeyLength},
		{"MAX_VALUE_BYTES", &cfg.Limits.MaxValueBytes},
		{"MAX_BATCH_SIZE", &cfg.Limits.MaxBatchSize},
		{"MAX_LIST_LIMIT", &cfg.Limits.MaxListLimit},
		{"DEFAULT_LIST_LIMIT", &cfg.Limits.DefaultListLimit},
	}
	for _, o := range intOverrides {
		key := envPrefix + "_" + o.suffix
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config.Load: %s must be an integer: %w", key, err)
		}
		*o.target = n
	}

	if value := os.Getenv(envPrefix + "_CORS_ORIGINS"); value != "" {
		if err := validateEnvVar(envPrefix+"_CORS_ORIGINS", value); err != nil {
			return err
		}
		origins := strings.Split(value, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Listen.CORSOrigins = origins
	}

	if value := os.Getenv(envPrefix + "_METRICS_ENABLED"); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config.Load: %s must be a boolean: %w", envPrefix+"_METRICS_ENABLED", err)
		}
		cfg.Metrics.Enabled = enabled
	}

	return nil
}

// Validate checks the configuration for use.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return errors.New("listen.addr is required")
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite backend")
		}
	case BackendHTTPSQL:
		if c.Storage.HTTPSQL.BaseURL == "" {
			return errors.New("storage.httpsql.base_url is required for the httpsql backend")
		}
		if !strings.HasPrefix(c.Storage.HTTPSQL.BaseURL, "http://") &&
			!strings.HasPrefix(c.Storage.HTTPSQL.BaseURL, "https://") {
			return fmt.Errorf("storage.httpsql.base_url %q must be an http(s) URL", c.Storage.HTTPSQL.BaseURL)
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres backend")
		}
	case BackendNATSKV:
		if c.Storage.NATSKV.URL == "" {
			return errors.New("storage.natskv.url is required for the natskv backend")
		}
		if c.Storage.NATSKV.Bucket == "" {
			return errors.New("storage.natskv.bucket is required for the natskv backend")
		}
	default:
		return fmt.Errorf("storage.backend %q must be one of sqlite, httpsql, postgres, natskv", c.Storage.Backend)
	}

	limits := []struct {
		name  string
		value int
	}{
		{"limits.max_key_length", c.Limits.MaxKeyLength},
		{"limits.max_value_bytes", c.Limits.MaxValueBytes},
		{"limits.max_batch_size", c.Limits.MaxBatchSize},
		{"limits.max_list_limit", c.Limits.MaxListLimit},
		{"limits.default_list_limit", c.Limits.DefaultListLimit},
	}
	for _, l := range limits {
		if l.value < 0 {
			return fmt.Errorf("%s must not be negative", l.name)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
		}
		if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.Health.IntervalSeconds < 0 {
		return errors.New("health.interval_seconds must not be negative")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}

// String returns an indented JSON rendering with secrets redacted, for
// startup logging.
func (c *Config) String() string {
	clone := *c
	if clone.Auth.Token != "" {
		clone.Auth.Token = "[REDACTED]"
	}
	if clone.Storage.HTTPSQL.AuthToken != "" {
		clone.Storage.HTTPSQL.AuthToken = "[REDACTED]"
	}
	if clone.Storage.NATSKV.Password != "" {
		clone.Storage.NATSKV.Password = "[REDACTED]"
	}
	if clone.Storage.NATSKV.Token != "" {
		clone.Storage.NATSKV.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}
