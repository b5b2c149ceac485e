// Package config loads agent settings from an optional YAML file and
// CELERIX_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-agent/internal/vault"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "CELERIX_CONFIG"

type Config struct {
	DataDir    string `yaml:"data_dir" env:"CELERIX_DATA_DIR"`
	ListenAddr string `yaml:"listen_addr" env:"CELERIX_LISTEN_ADDR"`
	LogLevel   string `yaml:"log_level" env:"CELERIX_LOG_LEVEL"`
	// MasterKey is a hex AES-256 key sealing the stored secret. Empty
	// keeps the secret in the clear.
	MasterKey string `yaml:"master_key" env:"CELERIX_MASTER_KEY"`
	// Inventory is the YAML file seeding the managed site.
	Inventory string `yaml:"inventory" env:"CELERIX_INVENTORY"`

	Collector CollectorConfig `yaml:"collector" envPrefix:"CELERIX_COLLECTOR_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"CELERIX_AUTH_"`
	Site      SiteConfig      `yaml:"site" envPrefix:"CELERIX_SITE_"`

	// Housekeeping overrides the subtype patterns never logged.
	Housekeeping []string `yaml:"housekeeping" env:"CELERIX_HOUSEKEEPING" envSeparator:","`
}

// CollectorConfig points the outbound client at the collector.
type CollectorConfig struct {
	Host           string        `yaml:"host" env:"HOST"`
	Version        string        `yaml:"version" env:"VERSION"`
	Insecure       bool          `yaml:"insecure" env:"INSECURE"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	LogTimeout     time.Duration `yaml:"log_timeout" env:"LOG_TIMEOUT"`
}

type AuthConfig struct {
	// MaxSkew bounds inbound timestamp drift. Zero disables the check.
	MaxSkew time.Duration `yaml:"max_skew" env:"MAX_SKEW"`
}

type SiteConfig struct {
	Name string `yaml:"name" env:"NAME"`
	URL  string `yaml:"url" env:"URL"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		ListenAddr: "127.0.0.1:7080",
		LogLevel:   "info",
		Collector: CollectorConfig{
			Version:        "v1",
			RequestTimeout: 15 * time.Second,
			LogTimeout:     2 * time.Second,
		},
		Auth: AuthConfig{MaxSkew: 5 * time.Minute},
	}
}

// Load builds the configuration. path may be empty, in which case
// CELERIX_CONFIG is consulted; with neither set only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.MasterKey != "" {
		if _, err := vault.ParseKey(c.MasterKey); err != nil {
			errs = append(errs, fmt.Errorf("master_key: %w", err))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.MaxSkew < 0 {
		errs = append(errs, errors.New("auth.max_skew must not be negative"))
	}
	return errors.Join(errs...)
}

// MasterKeyBytes decodes MasterKey, returning nil when it is unset.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.MasterKey == "" {
		return nil, nil
	}
	return vault.ParseKey(c.MasterKey)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", name, err)
	}
	return level, nil
}

// NewLogger returns the process logger for the configured level.
func (c *Config) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
