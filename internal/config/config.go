// Package config loads synkd's configuration from:
//  1. ~/.synkd/config.toml (file)
//  2. Environment variables (override file values)
//
// Environment variables:
//   - SYNKD_SOCKET_PATH: control socket path override
//   - SYNKD_DEFAULT_SHELL: shell used for new PTYs
//   - SYNKD_INITIAL_POOL_SIZE, SYNKD_MAX_POOL_SIZE, SYNKD_MAX_ACTIVE: pool sizing
//   - SYNKD_LOG_LEVEL: zerolog level name
//   - SYNKD_CONFIG_DIR: override config directory (for testing)
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the daemon.
type Config struct {
	// SocketPath is the control socket's unix domain socket path.
	SocketPath string `toml:"socket_path"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `toml:"log_level"`

	// DefaultShell is the shell spawned for every new PTY; agent CLIs are
	// launched inside it (empty uses $SHELL, falling back to /bin/bash).
	DefaultShell string `toml:"default_shell"`

	Pool PoolConfig `toml:"pool"`
}

// PoolConfig mirrors ptypool.Config's tuning knobs, expressed as the
// on-disk/env-overridable shape; (*Config).PoolConfig() translates it into
// a ptypool.Config.
type PoolConfig struct {
	InitialPoolSize       int `toml:"initial_pool_size"`
	MaxPoolSize           int `toml:"max_pool_size"`
	MaxActive             int `toml:"max_active"`
	RecycleEnabled        bool `toml:"recycle_enabled"`
	MaxPTYAgeSeconds      int `toml:"max_pty_age_seconds"`
	WarmupDelayMillis     int `toml:"warmup_delay_millis"`
	WarmupTimeoutSeconds  int `toml:"warmup_timeout_seconds"`
	RecycleReadyTimeoutSeconds int `toml:"recycle_ready_timeout_seconds"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SocketPath:   defaultSocketPath(),
		LogLevel:     "info",
		DefaultShell: "",
		Pool: PoolConfig{
			InitialPoolSize:            2,
			MaxPoolSize:                4,
			MaxActive:                  12,
			RecycleEnabled:             true,
			MaxPTYAgeSeconds:           1800,
			WarmupDelayMillis:          100,
			WarmupTimeoutSeconds:       5,
			RecycleReadyTimeoutSeconds: 2,
		},
	}
}

func defaultSocketPath() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "synkd.sock")
	}
	uid := "0"
	if u, err := user.Current(); err == nil {
		uid = u.Uid
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("synkd-%s.sock", uid))
}

// ConfigDir returns the configuration directory path, creating it if
// necessary. Respects SYNKD_CONFIG_DIR for testing.
func ConfigDir() (string, error) {
	if testDir := os.Getenv("SYNKD_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0700); err != nil {
			return "", fmt.Errorf("could not create config directory: %w", err)
		}
		return testDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".synkd")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return dir, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads configuration from file and applies environment variable
// overrides. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	_ = cfg.loadFromFile()

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	_, err = toml.DecodeFile(configPath, c)
	return err
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SYNKD_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if v := os.Getenv("SYNKD_DEFAULT_SHELL"); v != "" {
		c.DefaultShell = v
	}
	if v := os.Getenv("SYNKD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SYNKD_INITIAL_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.InitialPoolSize = n
		}
	}
	if v := os.Getenv("SYNKD_MAX_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.MaxPoolSize = n
		}
	}
	if v := os.Getenv("SYNKD_MAX_ACTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.MaxActive = n
		}
	}
}

// Save writes configuration to the config file as TOML.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}

	return nil
}
