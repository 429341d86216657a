// Package config loads engine configuration from YAML files and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/store"
)

// Config is the full engine configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig configures the HTTP API. RateLimitRPS of 0 disables rate
// limiting on the mutating endpoints.
type ServerConfig struct {
	ListenAddr     string  `yaml:"listen_addr" mapstructure:"listen_addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// StoreConfig configures job-state persistence
type StoreConfig struct {
	Type         string `yaml:"type" mapstructure:"type"`
	Path         string `yaml:"path" mapstructure:"path"`
	DSN          string `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// RetryConfig configures the retry policy
type RetryConfig struct {
	MaxAttempts       int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSec int      `yaml:"initial_backoff_sec" mapstructure:"initial_backoff_sec"`
	MaxBackoffSec     int      `yaml:"max_backoff_sec" mapstructure:"max_backoff_sec"`
	Multiplier        float64  `yaml:"multiplier" mapstructure:"multiplier"`
	NonRetryable      []string `yaml:"non_retryable" mapstructure:"non_retryable"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns the built-in configuration
func Default() *Config {
	policy := models.DefaultRetryPolicy()

	nonRetryable := make([]string, 0, len(policy.NonRetryable))
	for _, kind := range policy.NonRetryable {
		nonRetryable = append(nonRetryable, string(kind))
	}

	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "runbeat.db",
		},
		Retry: RetryConfig{
			MaxAttempts:       policy.MaxAttempts,
			InitialBackoffSec: int(policy.InitialBackoff / time.Second),
			MaxBackoffSec:     int(policy.MaxBackoff / time.Second),
			Multiplier:        policy.Multiplier,
			NonRetryable:      nonRetryable,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads configuration from the given file, or from the default search
// paths when path is empty. Missing files are not an error; defaults apply.
// Environment variables prefixed RUNBEAT_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".runbeat"))
		}
		v.AddConfigPath("/etc/runbeat")
	}

	v.SetEnvPrefix("RUNBEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the built-in configuration to path as YAML
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// RetryPolicy converts the retry section into an engine policy
func (c *Config) RetryPolicy() models.RetryPolicy {
	kinds := make([]models.ErrorKind, 0, len(c.Retry.NonRetryable))
	for _, name := range c.Retry.NonRetryable {
		kinds = append(kinds, models.ErrorKind(name))
	}

	return models.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: time.Duration(c.Retry.InitialBackoffSec) * time.Second,
		MaxBackoff:     time.Duration(c.Retry.MaxBackoffSec) * time.Second,
		Multiplier:     c.Retry.Multiplier,
		NonRetryable:   kinds,
	}
}

// StoreConfig converts the store section into a store configuration
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:         c.Store.Type,
		Path:         c.Store.Path,
		DSN:          c.Store.DSN,
		MaxOpenConns: c.Store.MaxOpenConns,
		MaxIdleConns: c.Store.MaxIdleConns,
	}
}
