// Package config loads settings for the server and the CLI from an optional
// YAML file and PIPEGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverNATS     = "nats"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr       string `mapstructure:"addr"`
		Token      string `mapstructure:"token"`
		RequestLog bool   `mapstructure:"request_log"`
	} `mapstructure:"server"`
	Storage struct {
		Driver      string `mapstructure:"driver"`
		DatabaseURL string `mapstructure:"database_url"`
		NATSURL     string `mapstructure:"nats_url"`
	} `mapstructure:"storage"`
	Backend struct {
		BaseURL     string        `mapstructure:"base_url"`
		Token       string        `mapstructure:"token"`
		TokenType   string        `mapstructure:"token_type"`
		WorkspaceID int64         `mapstructure:"workspace_id"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"backend"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads path when non-empty, then applies the environment on top.
// PIPEGRAPH_STORAGE_DRIVER overrides storage.driver, and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PIPEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("config: storage.database_url is required for the postgres driver")
		}
	case DriverNATS:
		if c.Storage.NATSURL == "" {
			return errors.New("config: storage.nats_url is required for the nats driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.token", "")
	v.SetDefault("server.request_log", true)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.nats_url", "")
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.token_type", "Bearer")
	v.SetDefault("backend.workspace_id", 1)
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
