package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/servhub/internal/history"
	"github.com/loykin/servhub/internal/logger"
	"github.com/loykin/servhub/internal/store"
)

// Config is the top-level TOML structure of the servhub config file.
type Config struct {
	ServersDir string               `toml:"servers_dir" mapstructure:"servers_dir"`
	LogDir     string               `toml:"log_dir" mapstructure:"log_dir"`
	Listen     string               `toml:"listen" mapstructure:"listen"`
	BasePath   string               `toml:"base_path" mapstructure:"base_path"`
	Metrics    string               `toml:"metrics_listen" mapstructure:"metrics_listen"`
	Log        logger.Config        `toml:"log" mapstructure:"log"`
	Store      store.Config         `toml:"store" mapstructure:"store"`
	History    []history.SinkConfig `toml:"history" mapstructure:"history"`
	Health     HealthConfig         `toml:"health" mapstructure:"health"`
}

// HealthConfig overrides the health-check schedule. Zero values fall back
// to the lifecycle defaults (10s grace, 5s retry, 5m ceiling).
type HealthConfig struct {
	Grace   time.Duration `toml:"grace" mapstructure:"grace"`
	Retry   time.Duration `toml:"retry" mapstructure:"retry"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// Load reads a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServersDir == "" {
		c.ServersDir = "servers"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
}
