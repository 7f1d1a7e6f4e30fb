// Package config loads the devtree configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Sysfs    SysfsConfig    `yaml:"sysfs"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SysfsConfig locates the device trees.
type SysfsConfig struct {
	SysPath string `yaml:"sys_path"`
	DevPath string `yaml:"dev_path"`
	RunPath string `yaml:"run_path"`
}

// MonitorConfig contains event monitor settings.
type MonitorConfig struct {
	// Source is "udev" (records processed by the udev daemon) or "kernel".
	Source     string   `yaml:"source"`
	Subsystems []string `yaml:"subsystems"` // "subsystem" or "subsystem/devtype"
	Tags       []string `yaml:"tags"`

	// PollTimeout bounds each wait for socket readiness so the watcher
	// notices Stop without an event arriving.
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// DatabaseConfig contains the sqlite settings shared by policy and journal.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Sysfs: SysfsConfig{
			SysPath: "/sys",
			DevPath: "/dev",
			RunPath: "/run/udev",
		},
		Monitor: MonitorConfig{
			Source:      "udev",
			PollTimeout: 500 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path: "/var/lib/devtree/devtree.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVTREE_SYS_PATH"); v != "" {
		cfg.Sysfs.SysPath = v
	}
	if v := os.Getenv("DEVTREE_DEV_PATH"); v != "" {
		cfg.Sysfs.DevPath = v
	}
	if v := os.Getenv("DEVTREE_RUN_PATH"); v != "" {
		cfg.Sysfs.RunPath = v
	}
	if v := os.Getenv("DEVTREE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DEVTREE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for values the rest of the program
// cannot work with.
func (c *Config) Validate() error {
	if c.Sysfs.SysPath == "" {
		return fmt.Errorf("sysfs.sys_path is required")
	}
	switch c.Monitor.Source {
	case "udev", "kernel":
	default:
		return fmt.Errorf("monitor.source must be \"udev\" or \"kernel\", got %q", c.Monitor.Source)
	}
	if c.Monitor.PollTimeout <= 0 {
		return fmt.Errorf("monitor.poll_timeout must be positive")
	}
	for _, s := range c.Monitor.Subsystems {
		if s == "" || strings.HasPrefix(s, "/") || strings.Count(s, "/") > 1 {
			return fmt.Errorf("monitor.subsystems: invalid entry %q", s)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}
