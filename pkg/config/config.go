// Package config loads gateway configuration from YAML files with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultPort                 = 3000
	DefaultCommandPrefix        = "!"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultQRExpiry             = 60 * time.Second
	DefaultBridgeURL            = "ws://127.0.0.1:8765/session"
	DefaultRateLimitPerMinute   = 20
)

// Config represents the complete gateway configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Owner    OwnerConfig   `yaml:"owner"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Data     DataConfig    `yaml:"data"`
	Bus      BusConfig     `yaml:"bus"`
	Session  SessionConfig `yaml:"session"`
	Commands CommandConfig `yaml:"commands"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP control plane
type ServerConfig struct {
	Port int `yaml:"port"`
}

// OwnerConfig identifies the single trusted operator identity
type OwnerConfig struct {
	// ID is the chat-network address allowed to run admin-only commands.
	ID string `yaml:"id"`
}

// BridgeConfig locates the chat-protocol bridge endpoint
type BridgeConfig struct {
	URL string `yaml:"url"`
}

// DataConfig controls where persistent state lives
type DataConfig struct {
	// Dir holds the credential blob, the SQLite database and logs.
	Dir string `yaml:"dir"`
}

// BusConfig controls the optional external event bus
type BusConfig struct {
	// NATSURL enables mirroring session events to NATS when non-empty.
	NATSURL string `yaml:"nats_url"`
}

// SessionConfig tunes the lifecycle state machine
type SessionConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	QRExpiry             time.Duration `yaml:"qr_expiry"`
}

// CommandConfig tunes the dispatch router and built-in commands
type CommandConfig struct {
	Prefix string `yaml:"prefix"`

	// WeatherAPIKey enables the weather command; absent key degrades only
	// that command.
	WeatherAPIKey string `yaml:"weather_api_key"`

	// RateLimitPerMinute caps command dispatches per sender. Zero disables.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort},
		Bridge: BridgeConfig{URL: DefaultBridgeURL},
		Data:   DataConfig{Dir: defaultDataDir()},
		Session: SessionConfig{
			MaxReconnectAttempts: DefaultMaxReconnectAttempts,
			ReconnectBaseDelay:   DefaultReconnectBaseDelay,
			QRExpiry:             DefaultQRExpiry,
		},
		Commands: CommandConfig{
			Prefix:             DefaultCommandPrefix,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ".tohang"
	}
	return filepath.Join(home, ".tohang")
}

// Load loads configuration from default locations with proper precedence:
// defaults, then ~/.tohang/config.yaml, then ./tohang.yaml, then environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".tohang", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	if err := loadAndMerge(cfg, "tohang.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_OWNER_ID")); v != "" {
		cfg.Owner.ID = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_BRIDGE_URL")); v != "" {
		cfg.Bridge.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_DATA_DIR")); v != "" {
		cfg.Data.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_NATS_URL")); v != "" {
		cfg.Bus.NATSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); v != "" {
		cfg.Commands.WeatherAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_COMMAND_PREFIX")); v != "" {
		cfg.Commands.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_MAX_RECONNECT_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxReconnectAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOHANG_RECONNECT_BASE_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.ReconnectBaseDelay = d
		}
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Bridge.URL) == "" {
		return fmt.Errorf("bridge.url cannot be empty")
	}
	if !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
		return fmt.Errorf("bridge.url must use ws:// or wss://, got %q", c.Bridge.URL)
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data.dir cannot be empty")
	}
	if strings.TrimSpace(c.Commands.Prefix) == "" {
		return fmt.Errorf("commands.prefix cannot be empty")
	}
	if c.Session.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("session.max_reconnect_attempts must be positive")
	}
	if c.Session.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("session.reconnect_base_delay must be positive")
	}
	if c.Session.QRExpiry <= 0 {
		return fmt.Errorf("session.qr_expiry must be positive")
	}
	if c.Commands.RateLimitPerMinute < 0 {
		return fmt.Errorf("commands.rate_limit_per_minute cannot be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}

// CredentialsPath returns the location of the persisted credential blob.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.Data.Dir, "sessions", "session.json")
}

// DatabasePath returns the location of the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.Dir, "tohang.db")
}

// LogDir returns the structured log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.Data.Dir, "logs")
}
