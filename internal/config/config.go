// ABOUTME: Configuration loading and parsing for vss-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and overrides

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/store"
)

// Config represents the complete vss-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Migration MigrationConfig `yaml:"migration" toml:"migration"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr" toml:"http_addr"`
	ReadHeaderTimeout time.Duration `yaml:"-" toml:"-"`

	ReadHeaderTimeoutRaw string `yaml:"read_header_timeout" toml:"read_header_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve TLS with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Backend  string         `yaml:"backend" toml:"backend"`
	Driver   string         `yaml:"driver" toml:"driver"`
	Path     string         `yaml:"path" toml:"path"`
	URL      string         `yaml:"url" toml:"url"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb" toml:"dynamodb"`
}

// DynamoDBConfig holds DynamoDB table settings
type DynamoDBConfig struct {
	Table       string `yaml:"table" toml:"table"`
	Region      string `yaml:"region" toml:"region"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	CreateTable bool   `yaml:"create_table" toml:"create_table"`
}

// AuthConfig holds client token and admin key configuration
type AuthConfig struct {
	PublicKey      string        `yaml:"public_key" toml:"public_key"`
	SelfHosted     bool          `yaml:"self_hosted" toml:"self_hosted"`
	AdminKey       string        `yaml:"admin_key" toml:"admin_key"`
	TokenCacheSize int           `yaml:"token_cache_size" toml:"token_cache_size"`
	Leeway         time.Duration `yaml:"-" toml:"-"`
	TokenCacheTTL  time.Duration `yaml:"-" toml:"-"`

	LeewayRaw        string `yaml:"leeway" toml:"leeway"`
	TokenCacheTTLRaw string `yaml:"token_cache_ttl" toml:"token_cache_ttl"`
}

// MigrationConfig holds backfill defaults
type MigrationConfig struct {
	SourceURL      string        `yaml:"source_url" toml:"source_url"`
	StartIndex     int           `yaml:"start_index" toml:"start_index"`
	BatchSize      int           `yaml:"batch_size" toml:"batch_size"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with every default applied and no file or
// environment input.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:             "0.0.0.0:3000",
			ReadHeaderTimeoutRaw: "10s",
		},
		Tailscale: TailscaleConfig{
			Hostname: "vss-gateway",
		},
		Database: DatabaseConfig{
			Backend: store.BackendSQLite,
			Driver:  store.DriverModernc,
			Path:    "./vss.db",
			DynamoDB: DynamoDBConfig{
				Table: "vss_db",
			},
		},
		Auth: AuthConfig{
			TokenCacheSize:   10000,
			LeewayRaw:        "60s",
			TokenCacheTTLRaw: "5m",
		},
		Migration: MigrationConfig{
			BatchSize:         100,
			RequestTimeoutRaw: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location.
// Priority: VSS_CONFIG env var > XDG_CONFIG_HOME/vss/gateway.yaml > ~/.config/vss/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("VSS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "vss", "gateway.yaml")
}

// Resolve loads the configuration for a process. An explicit path must
// exist. With no path the default location is used, and a missing default
// file yields defaults plus environment overrides.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	cfg, err := Load(DefaultPath())
	if errors.Is(err, fs.ErrNotExist) {
		return FromEnv()
	}
	return cfg, err
}

// FromEnv builds a Config from defaults and environment overrides only.
func FromEnv() (*Config, error) {
	return finish(Default())
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// finish applies env overrides, parses durations and validates
func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the deployment environment variables on cfg.
// DATABASE_URL alone selects the postgres backend.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Backend = store.BackendPostgres
	}
	if v := os.Getenv("VSS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTH_KEY"); v != "" {
		cfg.Auth.PublicKey = v
	}
	if v := os.Getenv("SELF_HOST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SELF_HOST %q: %w", v, err)
		}
		cfg.Auth.SelfHosted = b
	}
	if v := os.Getenv("ADMIN_KEY"); v != "" {
		cfg.Auth.AdminKey = v
	}
	if v := os.Getenv("MIGRATION_URL"); v != "" {
		cfg.Migration.SourceURL = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"MIGRATION_START_INDEX", &cfg.Migration.StartIndex},
		{"MIGRATION_BATCH_SIZE", &cfg.Migration.BatchSize},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s %q: %w", e.name, v, err)
		}
		*e.dst = n
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Backend {
	case store.BackendSQLite, store.BackendBolt:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the %s backend", c.Database.Backend)
		}
	case store.BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	case store.BackendDynamoDB:
		if c.Database.DynamoDB.Table == "" {
			return fmt.Errorf("database.dynamodb.table is required for the dynamodb backend")
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("database.backend %q is not one of sqlite, postgres, bolt, dynamodb, memory", c.Database.Backend)
	}

	if !c.Auth.SelfHosted {
		if c.Auth.PublicKey == "" {
			return fmt.Errorf("auth.public_key is required unless auth.self_hosted is set")
		}
		if _, err := auth.ParsePublicKey(c.Auth.PublicKey); err != nil {
			return fmt.Errorf("auth.public_key: %w", err)
		}
	}

	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("migration.batch_size must be positive, got %d", c.Migration.BatchSize)
	}
	if c.Migration.StartIndex < 0 {
		return fmt.Errorf("migration.start_index must not be negative, got %d", c.Migration.StartIndex)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"auth.leeway", cfg.Auth.LeewayRaw, &cfg.Auth.Leeway},
		{"auth.token_cache_ttl", cfg.Auth.TokenCacheTTLRaw, &cfg.Auth.TokenCacheTTL},
		{"migration.request_timeout", cfg.Migration.RequestTimeoutRaw, &cfg.Migration.RequestTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// StoreConfig converts the database section for store.Open.
func (c *Config) StoreConfig() store.BackendConfig {
	return store.BackendConfig{
		Backend: c.Database.Backend,
		Driver:  c.Database.Driver,
		Path:    c.Database.Path,
		URL:     c.Database.URL,
		Dynamo: store.DynamoConfig{
			Table:       c.Database.DynamoDB.Table,
			Region:      c.Database.DynamoDB.Region,
			Endpoint:    c.Database.DynamoDB.Endpoint,
			CreateTable: c.Database.DynamoDB.CreateTable,
		},
	}
}
