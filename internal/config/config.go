// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Database backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Model providers.
const (
	ProviderEcho    = "echo"
	ProviderGateway = "gateway"
)

// Availability check modes.
const (
	CheckHTTP = "http"
	CheckGRPC = "grpc"
)

// Config represents the complete coven-chat configuration
type Config struct {
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Model        ModelConfig        `yaml:"model" toml:"model"`
	Availability AvailabilityConfig `yaml:"availability" toml:"availability"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects where conversations are persisted
type DatabaseConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // sqlite, file or memory
	Driver  string `yaml:"driver" toml:"driver"`   // sqlite (pure Go) or sqlite3 (cgo)
	Path    string `yaml:"path" toml:"path"`       // database file, or directory for the file backend
	Key     string `yaml:"key" toml:"key"`
}

// ModelConfig selects and configures the model provider
type ModelConfig struct {
	Provider string `yaml:"provider" toml:"provider"`
	URL      string `yaml:"url" toml:"url"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	AgentID  string `yaml:"agent_id" toml:"agent_id"`
	Sender   string `yaml:"sender" toml:"sender"`
	Token    string `yaml:"token" toml:"token"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	EchoDelay      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	EchoDelayRaw      string `yaml:"echo_delay" toml:"echo_delay"`
}

// AvailabilityConfig controls how model readiness is probed
type AvailabilityConfig struct {
	Check        string        `yaml:"check" toml:"check"` // http or grpc
	PollInterval time.Duration `yaml:"-" toml:"-"`         // zero disables background polling

	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists: an echo model
// and a SQLite database under the user's data directory.
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Backend: BackendSQLite,
			Driver:  "sqlite",
			Path:    filepath.Join(DataDir(), "chat.db"),
			Key:     "saved_conversations",
		},
		Model: ModelConfig{
			Provider:          ProviderEcho,
			URL:               "http://localhost:8080",
			Sender:            "coven-chat",
			RequestTimeoutRaw: "30s",
			EchoDelayRaw:      "40ms",
		},
		Availability: AvailabilityConfig{
			Check: CheckHTTP,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
	// Defaults always parse
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are read as TOML, everything else as YAML. Fields
// missing from the file keep their Default values.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// DefaultPath returns the path to the coven-chat config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

// DataDir returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

// MarshalFile renders c as a YAML config file.
func (c *Config) MarshalFile() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.Driver != "sqlite" && c.Database.Driver != "sqlite3" {
			return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
		}
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case BackendFile:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("database.backend must be sqlite, file or memory, got %q", c.Database.Backend)
	}

	switch c.Model.Provider {
	case ProviderEcho:
	case ProviderGateway:
		if c.Model.URL == "" {
			return fmt.Errorf("model.url is required for the gateway provider")
		}
		u, err := url.Parse(c.Model.URL)
		if err != nil {
			return fmt.Errorf("model.url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("model.url must use http or https scheme")
		}
	default:
		return fmt.Errorf("model.provider must be echo or gateway, got %q", c.Model.Provider)
	}

	switch c.Availability.Check {
	case CheckHTTP:
	case CheckGRPC:
		if c.Model.Provider == ProviderGateway && c.Model.GRPCAddr == "" {
			return fmt.Errorf("model.grpc_addr is required when availability.check is grpc")
		}
	default:
		return fmt.Errorf("availability.check must be http or grpc, got %q", c.Availability.Check)
	}

	if c.Availability.PollInterval < 0 {
		return fmt.Errorf("availability.poll_interval must not be negative")
	}

	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Model.RequestTimeoutRaw != "" {
		cfg.Model.RequestTimeout, err = time.ParseDuration(cfg.Model.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Model.RequestTimeoutRaw, err)
		}
	}

	if cfg.Model.EchoDelayRaw != "" {
		cfg.Model.EchoDelay, err = time.ParseDuration(cfg.Model.EchoDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing echo_delay %q: %w", cfg.Model.EchoDelayRaw, err)
		}
	}

	if cfg.Availability.PollIntervalRaw != "" {
		cfg.Availability.PollInterval, err = time.ParseDuration(cfg.Availability.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Availability.PollIntervalRaw, err)
		}
	}

	return nil
}
