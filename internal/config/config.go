package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the task broker server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	Transport  TransportConfig  `toml:"transport"`
	Log        LogConfig        `toml:"log"`
	Reclaimer  ReclaimerConfig  `toml:"reclaimer"`
	Recurrence RecurrenceConfig `toml:"recurrence"`
}

// DatabaseConfig selects and connects to the transactional store.
type DatabaseConfig struct {
	Dialect string `toml:"dialect"` // "postgres" or "sqlite"
	URL     string `toml:"url"`     // DSN / connection string
}

// RedisConfig points at the distributed lock backend the scheduler's
// jobs use. URL is optional: when unset, jobs run lockless under a
// single-replica assumption.
type RedisConfig struct {
	URL string `toml:"url"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port (default: 21452). Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address (default: "0.0.0.0"). Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// ReclaimerConfig configures the LeaseReclaimer background job.
type ReclaimerConfig struct {
	PeriodSeconds int `toml:"period_seconds"`
	TimeoutHours  int `toml:"timeout_hours"`
}

// RecurrenceConfig configures the RecurrenceMaterializer background job
// for due occurrences.
type RecurrenceConfig struct {
	PeriodSeconds int `toml:"period_seconds"`
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (cmd/taskbrokerd passes the
//     TASKBROKER_CONFIG value here)
//  2. TASKBROKER_CONFIG environment variable
//  3. ./taskbroker.toml (current directory)
//  4. ~/.config/taskbroker/taskbroker.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	// Start with defaults
	cfg := &Config{
		Database: DatabaseConfig{
			Dialect: "sqlite",
			URL:     "taskbroker.db",
		},
		Server: ServerConfig{
			Name:    "taskbrokerd",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "21452",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level: "info",
		},
		Reclaimer: ReclaimerConfig{
			PeriodSeconds: 60,
			TimeoutHours:  24,
		},
		Recurrence: RecurrenceConfig{
			PeriodSeconds: 60,
		},
	}

	// Layer config file values on top of defaults
	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	// Layer environment variables on top (always win)
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil // no config file found; rely on defaults + env
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	// 1. Explicit path from the caller
	if explicit != "" {
		return explicit // caller wants this file; let DecodeFile report if missing
	}

	// 2. TASKBROKER_CONFIG env var
	if p := os.Getenv("TASKBROKER_CONFIG"); p != "" {
		return p
	}

	// 3. ./taskbroker.toml in current directory
	if _, err := os.Stat("taskbroker.toml"); err == nil {
		return "taskbroker.toml"
	}

	// 4. ~/.config/taskbroker/taskbroker.toml
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/taskbroker/taskbroker.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("DATABASE_DIALECT", &c.Database.Dialect)
	envOverride("DATABASE_URL", &c.Database.URL)
	envOverride("REDIS_URL", &c.Redis.URL)

	// Transport
	envOverride("TASKBROKER_TRANSPORT", &c.Transport.Mode)
	envOverride("TASKBROKER_PORT", &c.Transport.Port)
	envOverride("TASKBROKER_HOST", &c.Transport.Host)
	envOverride("TASKBROKER_CORS_ORIGINS", &c.Transport.CORSOrigins)

	// Logging
	envOverride("TASKBROKER_LOG_LEVEL", &c.Log.Level)

	// Reclaimer
	if v := os.Getenv("TASK_TIMEOUT_HOURS"); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			c.Reclaimer.TimeoutHours = hours
		}
	}
	if v := os.Getenv("RECLAIMER_PERIOD_SECONDS"); v != "" {
		var seconds int
		if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil && seconds > 0 {
			c.Reclaimer.PeriodSeconds = seconds
		}
	}

	// Recurrence
	if v := os.Getenv("RECURRENCE_PERIOD_SECONDS"); v != "" {
		var seconds int
		if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil && seconds > 0 {
			c.Recurrence.PeriodSeconds = seconds
		}
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	switch c.Database.Dialect {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid database dialect: %q (must be \"postgres\" or \"sqlite\")", c.Database.Dialect)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required: set database.url in config file, or DATABASE_URL env var")
	}

	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}

	return nil
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
