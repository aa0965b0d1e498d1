// Package config provides configuration management for TeamsBridge.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teamsbridge/teamsbridge/pkg/duration"
)

// Duration is an alias for the shared duration.Duration type.
type Duration = duration.Duration

// Config represents the complete TeamsBridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bot     BotConfig     `yaml:"bot"`
	Graph   GraphConfig   `yaml:"graph"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address      string   `yaml:"address"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// BotConfig contains the Bot Framework registration credentials and
// messaging behavior. Leaving AppID and AppPassword empty puts the
// adapter in emulator mode: inbound requests are not authenticated and
// outbound requests carry no bearer token.
type BotConfig struct {
	AppID         string   `yaml:"app_id"`
	AppPassword   string   `yaml:"app_password"`
	ServiceURL    string   `yaml:"service_url"`
	CommandPrefix string   `yaml:"command_prefix"`
	RateLimit     int      `yaml:"rate_limit"`
	RateWindow    Duration `yaml:"rate_window"`
}

// GraphConfig contains Microsoft Graph directory lookup settings.
// Lookups are disabled when TenantID is empty.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0:3141",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Bot: BotConfig{
			CommandPrefix: "!",
			RateLimit:     10,
			RateWindow:    Duration(1 * time.Minute),
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TEAMSBRIDGE_HTTP_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("TEAMSBRIDGE_APP_ID"); v != "" {
		c.Bot.AppID = v
	}
	if v := os.Getenv("TEAMSBRIDGE_APP_PASSWORD"); v != "" {
		c.Bot.AppPassword = v
	}
	if v := os.Getenv("TEAMSBRIDGE_SERVICE_URL"); v != "" {
		c.Bot.ServiceURL = v
	}
	if v := os.Getenv("TEAMSBRIDGE_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("TEAMSBRIDGE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("TEAMSBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	// Credentials must come as a pair; one without the other is a
	// misconfiguration, not emulator mode.
	if (c.Bot.AppID == "") != (c.Bot.AppPassword == "") {
		return fmt.Errorf("bot.app_id and bot.app_password must be set together")
	}
	if c.Graph.TenantID != "" {
		if c.Graph.ClientID == "" || c.Graph.ClientSecret == "" {
			return fmt.Errorf("graph.client_id and graph.client_secret are required when graph.tenant_id is set")
		}
	}
	if c.Bot.RateLimit < 0 {
		return fmt.Errorf("bot.rate_limit must not be negative")
	}
	return nil
}

// EmulatorMode reports whether the adapter runs without Bot Framework
// credentials.
func (c *Config) EmulatorMode() bool {
	return c.Bot.AppID == "" && c.Bot.AppPassword == ""
}
