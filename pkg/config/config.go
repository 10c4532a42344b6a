// Package config resolves cmdkit settings from defaults, the config.yaml
// file in the configuration directory, and CMDKIT_* environment variables,
// in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Environment variables read directly rather than through struct tags.
const (
	// EnvConfigDir selects the configuration directory. It wins over the
	// --config-dir flag.
	EnvConfigDir = "CMDKIT_CONFIG_DIR"

	// DefaultCommandPathVar is the variable RegisterEnv reads by default.
	DefaultCommandPathVar = "CMDKIT_COMMAND_PATH"

	// FileName is the configuration file inside the configuration directory.
	FileName = "config.yaml"
)

// Config holds the resolved settings.
type Config struct {
	ConfigDir      string `yaml:"-"`
	CommandPathVar string `yaml:"command_path_var" env:"CMDKIT_COMMAND_PATH_VAR"`
	HostName       string `yaml:"host_name" env:"CMDKIT_HOST_NAME"`
	HostIntegrated bool   `yaml:"host_integrated" env:"CMDKIT_HOST_INTEGRATED"`
	HistoryDepth   int    `yaml:"history_depth" env:"CMDKIT_HISTORY_DEPTH"`
	DatabasePath   string `yaml:"database_path" env:"CMDKIT_DATABASE_PATH"` // relative to ConfigDir; empty keeps telemetry in memory
	LogLevel       string `yaml:"log_level" env:"CMDKIT_LOG_LEVEL"`
	Debug          bool   `yaml:"debug" env:"CMDKIT_DEBUG"`
	OTelEndpoint   string `yaml:"otel_endpoint" env:"CMDKIT_OTEL_ENDPOINT"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		CommandPathVar: DefaultCommandPathVar,
		HostName:       "standalone",
		HistoryDepth:   100,
		DatabasePath:   "telemetry.db",
		LogLevel:       "info",
	}
}

// Load resolves the configuration. dir is the --config-dir flag value; the
// CMDKIT_CONFIG_DIR variable wins over it and ~/.cmdkit is the fallback. The
// directory is created, and a default config.yaml written, when missing.
func Load(dir string) (*Config, error) {
	resolved, err := resolveDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := Default()
	path := filepath.Join(resolved, FileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.ConfigDir = resolved

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.CommandPathVar == "" {
		return errors.New("command_path_var cannot be empty")
	}
	if c.HistoryDepth < 0 {
		return fmt.Errorf("history_depth must be >= 0, got %d", c.HistoryDepth)
	}
	return nil
}

// DatabaseFile returns the absolute telemetry database path, or "" when
// telemetry is kept in memory.
func (c *Config) DatabaseFile() string {
	if c.DatabasePath == "" {
		return ""
	}
	if filepath.IsAbs(c.DatabasePath) {
		return c.DatabasePath
	}
	return filepath.Join(c.ConfigDir, c.DatabasePath)
}

func resolveDir(dir string) (string, error) {
	if envDir := os.Getenv(EnvConfigDir); envDir != "" {
		return envDir, nil
	}
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".cmdkit"), nil
}

func writeDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}
