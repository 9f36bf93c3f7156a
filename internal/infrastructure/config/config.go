package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Platform  PlatformConfig  `yaml:"platform" toml:"platform"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Scheme    SchemeConfig    `yaml:"scheme" toml:"scheme"`
	Profile   ProfileConfig   `yaml:"profile" toml:"profile"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit" toml:"rateLimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host           string   `envconfig:"HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" default:"*" yaml:"allowedOrigins" toml:"allowedOrigins"`
}

// PlatformConfig describes the mini-app backend the installer downloads from.
type PlatformConfig struct {
	BaseURL         string `envconfig:"MINIAPP_BASE_URL" yaml:"baseUrl" toml:"baseUrl"`
	ProjectID       string `envconfig:"MINIAPP_PROJECT_ID" yaml:"projectId" toml:"projectId"`
	SubscriptionKey string `envconfig:"MINIAPP_SUBSCRIPTION_KEY" yaml:"subscriptionKey" toml:"subscriptionKey"`
	HostVersion     string `envconfig:"MINIAPP_HOST_VERSION" default:"1.0.0" yaml:"hostVersion" toml:"hostVersion"`
	Preview         bool   `envconfig:"MINIAPP_PREVIEW" default:"false" yaml:"preview" toml:"preview"`
	TimeoutSeconds  int    `envconfig:"MINIAPP_TIMEOUT_SECONDS" default:"30" yaml:"timeoutSeconds" toml:"timeoutSeconds"`
	MaxRetries      int    `envconfig:"MINIAPP_MAX_RETRIES" default:"3" yaml:"maxRetries" toml:"maxRetries"`
	RequestsPerSec  int    `envconfig:"MINIAPP_RPS" default:"10" yaml:"requestsPerSecond" toml:"requestsPerSecond"`
}

// Timeout returns the per-request timeout.
func (p PlatformConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Secure store backends.
const (
	SecureFile   = "file"
	SecureSQLite = "sqlite"
	SecureMemory = "memory"
)

// Manifest cache backends.
const (
	ManifestPebble = "pebble"
	ManifestMemory = "memory"
)

// StorageConfig locates persisted state.
type StorageConfig struct {
	DataDir         string `envconfig:"MINIAPP_DATA_DIR" default:"./data" yaml:"dataDir" toml:"dataDir"`
	SecureBackend   string `envconfig:"MINIAPP_SECURE_BACKEND" default:"file" yaml:"secureBackend" toml:"secureBackend"`
	ManifestBackend string `envconfig:"MINIAPP_MANIFEST_BACKEND" default:"pebble" yaml:"manifestBackend" toml:"manifestBackend"`
	KeyFile         string `envconfig:"MINIAPP_KEY_FILE" yaml:"keyFile" toml:"keyFile"`
	Scope           string `envconfig:"MINIAPP_SCOPE" default:"default" yaml:"scope" toml:"scope"`
}

// AssetDir is where mini-app bundles are cached.
func (s StorageConfig) AssetDir() string { return filepath.Join(s.DataDir, "miniapps") }

// SecureDir is the file backend's item directory.
func (s StorageConfig) SecureDir() string { return filepath.Join(s.DataDir, "secure") }

// SecureDB is the sqlite backend's database file.
func (s StorageConfig) SecureDB() string { return filepath.Join(s.DataDir, "secure.db") }

// ManifestDir is the pebble directory of the manifest cache.
func (s StorageConfig) ManifestDir() string { return filepath.Join(s.DataDir, "manifests") }

// SealKeyFile returns the key file, defaulting to one inside DataDir.
func (s StorageConfig) SealKeyFile() string {
	if s.KeyFile != "" {
		return s.KeyFile
	}
	if s.SecureBackend == SecureSQLite {
		return filepath.Join(s.DataDir, "secure.key")
	}
	return filepath.Join(s.DataDir, "identity.age")
}

// SchemeConfig holds custom scheme naming.
type SchemeConfig struct {
	Prefix   string `envconfig:"MINIAPP_SCHEME_PREFIX" default:"mscheme." yaml:"prefix" toml:"prefix"`
	RootFile string `envconfig:"MINIAPP_ROOT_FILE" default:"index.html" yaml:"rootFile" toml:"rootFile"`
}

// ProfileConfig points at the static host profile.
type ProfileConfig struct {
	File string `envconfig:"MINIAPP_PROFILE_FILE" yaml:"file" toml:"file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads the environment and then applies the file at path on top.
// Keys present in the file win over the environment. The format follows the
// extension: .yaml, .yml or .toml.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config file format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Storage.SecureBackend {
	case SecureFile, SecureSQLite, SecureMemory:
	default:
		return fmt.Errorf("unknown secure store backend %q", c.Storage.SecureBackend)
	}
	switch c.Storage.ManifestBackend {
	case ManifestPebble, ManifestMemory:
	default:
		return fmt.Errorf("unknown manifest backend %q", c.Storage.ManifestBackend)
	}
	if c.Storage.Scope == "" {
		return fmt.Errorf("storage scope must not be empty")
	}
	if !strings.HasSuffix(c.Scheme.Prefix, ".") {
		return fmt.Errorf("scheme prefix %q must end with a dot", c.Scheme.Prefix)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "127.0.0.1",
			AllowedOrigins: []string{"*"},
		},
		Platform: PlatformConfig{
			HostVersion:    "1.0.0",
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RequestsPerSec: 10,
		},
		Storage: StorageConfig{
			DataDir:         "./data",
			SecureBackend:   SecureFile,
			ManifestBackend: ManifestPebble,
			Scope:           "default",
		},
		Scheme: SchemeConfig{
			Prefix:   "mscheme.",
			RootFile: "index.html",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
