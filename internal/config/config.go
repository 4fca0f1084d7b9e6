// Package config loads the YAML configuration shared by diagramctl and the
// server, with environment overrides for secrets and deployment settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid 配置值不合法
var ErrInvalid = errors.New("invalid config")

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultSpacing  = 200.0
	DefaultAddr     = ":8080"
)

// Config 全局配置
type Config struct {
	Sync   SyncConfig   `yaml:"sync"`
	Layout LayoutConfig `yaml:"layout"`
	AI     AIConfig     `yaml:"ai"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

type SyncConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type LayoutConfig struct {
	Spacing float64 `yaml:"spacing"`
}

// AIConfig AI 辅助解析；Enabled=false 时不会调用远端
type AIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// StoreConfig driver: sqlite3 | mysql | sqlserver | memory
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default 可直接使用的默认配置
func Default() *Config {
	return &Config{
		Sync:   SyncConfig{Debounce: DefaultDebounce},
		Layout: LayoutConfig{Spacing: DefaultSpacing},
		Store:  StoreConfig{Driver: "memory"},
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: DefaultAddr},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AI.APIKey = getEnv("DASHSCOPE_API_KEY", c.AI.APIKey)
	c.Store.DSN = getEnv("DIAGRAM_STORE_DSN", c.Store.DSN)
	c.Log.Level = getEnv("DIAGRAM_LOG_LEVEL", c.Log.Level)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("%w: sync.debounce must not be negative", ErrInvalid)
	}
	if c.Layout.Spacing <= 0 {
		return fmt.Errorf("%w: layout.spacing must be positive", ErrInvalid)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "mysql", "sqlserver":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalid, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("%w: ai.enabled requires an api key (DASHSCOPE_API_KEY)", ErrInvalid)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
