package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "mscheme.", cfg.Scheme.Prefix)
	assert.Equal(t, "index.html", cfg.Scheme.RootFile)
	assert.Equal(t, SecureFile, cfg.Storage.SecureBackend)
	assert.Equal(t, ManifestPebble, cfg.Storage.ManifestBackend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("MINIAPP_SCOPE", "ci")
	cfg := LoadOrDefault()
	assert.Equal(t, "ci", cfg.Storage.Scope)
	assert.Equal(t, "index.html", cfg.Scheme.RootFile)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"MINIAPP_BASE_URL":       "https://api.example.com",
		"MINIAPP_PROJECT_ID":     "proj-1",
		"MINIAPP_PREVIEW":        "true",
		"MINIAPP_DATA_DIR":       "/var/lib/miniapp",
		"MINIAPP_SECURE_BACKEND": "sqlite",
		"MINIAPP_SCHEME_PREFIX":  "host.",
		"LOG_LEVEL":              "debug",
		"RATE_LIMIT_ENABLED":     "false",
		"CORS_ORIGINS":           "http://a.test,http://b.test",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://api.example.com", cfg.Platform.BaseURL)
	assert.Equal(t, "proj-1", cfg.Platform.ProjectID)
	assert.True(t, cfg.Platform.Preview)
	assert.Equal(t, "/var/lib/miniapp", cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/miniapp", "secure.key"), cfg.Storage.SealKeyFile())
	assert.Equal(t, "host.", cfg.Scheme.Prefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  baseUrl: https://yaml.example.com
  projectId: yaml-project
storage:
  manifestBackend: memory
  scope: install-7
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://yaml.example.com", cfg.Platform.BaseURL)
	assert.Equal(t, "yaml-project", cfg.Platform.ProjectID)
	assert.Equal(t, ManifestMemory, cfg.Storage.ManifestBackend)
	assert.Equal(t, "install-7", cfg.Storage.Scope)
	assert.Equal(t, "8000", cfg.Server.Port, "keys absent from the file keep their value")
}

func TestLoadFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[scheme]
prefix = "demo."

[rateLimit]
requestsPerSecond = 5
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "demo.", cfg.Scheme.Prefix)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "host.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o644))
	_, err = LoadFile(ini)
	assert.ErrorContains(t, err, "unsupported")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  secureBackend: vault\n"), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorContains(t, err, "vault")
}
