// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
database:
  backend: "sqlite"
  driver: "sqlite3"
  path: "./chat.db"
  key: "convs"

model:
  provider: "gateway"
  url: "https://gateway.example.com"
  agent_id: "agent-7"
  request_timeout: "10s"

availability:
  check: "http"
  poll_interval: "1m"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "./chat.db", cfg.Database.Path)
	assert.Equal(t, "convs", cfg.Database.Key)
	assert.Equal(t, ProviderGateway, cfg.Model.Provider)
	assert.Equal(t, "agent-7", cfg.Model.AgentID)
	assert.Equal(t, 10*time.Second, cfg.Model.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.Availability.PollInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unset fields keep defaults
	assert.Equal(t, 40*time.Millisecond, cfg.Model.EchoDelay)
	assert.Equal(t, "coven-chat", cfg.Model.Sender)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "chat.toml", `
[database]
backend = "file"
path = "/tmp/coven-chat"

[model]
provider = "echo"
echo_delay = "5ms"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Database.Backend)
	assert.Equal(t, "/tmp/coven-chat", cfg.Database.Path)
	assert.Equal(t, 5*time.Millisecond, cfg.Model.EchoDelay)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "saved_conversations", cfg.Database.Key)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_COVEN_TOKEN", "secret-token")
	t.Setenv("TEST_GATEWAY_URL", "http://gw:8080")

	path := writeConfig(t, "chat.yaml", `
model:
  provider: "gateway"
  url: "${TEST_GATEWAY_URL}"
  token: "${TEST_COVEN_TOKEN}"
  agent_id: "${TEST_UNSET_VAR}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gw:8080", cfg.Model.URL)
	assert.Equal(t, "secret-token", cfg.Model.Token)
	assert.Empty(t, cfg.Model.AgentID)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
availability:
  poll_interval: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "chat.yaml", "database: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ProviderEcho, cfg.Model.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault_InvalidFileStillFails(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
model:
  provider: "llama"
`)
	_, err := LoadOrDefault(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := Default()
	assert.Equal(t, BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join("/data", "coven", "chat.db"), cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Model.RequestTimeout)
	assert.Equal(t, 40*time.Millisecond, cfg.Model.EchoDelay)
	assert.Zero(t, cfg.Availability.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COVEN_CHAT_CONFIG", "/etc/coven/chat.toml")
	assert.Equal(t, "/etc/coven/chat.toml", DefaultPath())

	t.Setenv("COVEN_CHAT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "coven", "chat.yaml"), DefaultPath())
}

func TestMarshalFile_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = ProviderGateway
	cfg.Availability.PollIntervalRaw = "15s"

	data, err := cfg.MarshalFile()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "request_timeout: 30s"))

	path := writeConfig(t, "chat.yaml", string(data))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderGateway, loaded.Model.Provider)
	assert.Equal(t, 15*time.Second, loaded.Availability.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Database.Backend = "postgres" }, "database.backend"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "pgx" }, "database.driver"},
		{"missing sqlite path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing file path", func(c *Config) { c.Database.Backend = BackendFile; c.Database.Path = "" }, "database.path"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "llama" }, "model.provider"},
		{"gateway without url", func(c *Config) { c.Model.Provider = ProviderGateway; c.Model.URL = "" }, "model.url"},
		{"gateway bad scheme", func(c *Config) { c.Model.Provider = ProviderGateway; c.Model.URL = "ftp://x" }, "http or https"},
		{"grpc without addr", func(c *Config) { c.Model.Provider = ProviderGateway; c.Availability.Check = CheckGRPC }, "grpc_addr"},
		{"unknown check", func(c *Config) { c.Availability.Check = "ping" }, "availability.check"},
		{"negative poll", func(c *Config) { c.Availability.PollInterval = -time.Second }, "poll_interval"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Database.Backend = BackendMemory
		cfg.Database.Path = ""
		assert.NoError(t, cfg.Validate())
	})
}
