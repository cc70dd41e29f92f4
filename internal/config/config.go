// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire daemon configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Updater UpdaterConfig `mapstructure:"updater" yaml:"updater"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	ExecutablePath string   `mapstructure:"executable_path" yaml:"executable_path"`
	ProfileDir     string   `mapstructure:"profile_dir" yaml:"profile_dir"`
	Args           []string `mapstructure:"args" yaml:"args"`
}

// UpdaterConfig tunes the refresh loop.
type UpdaterConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// RedisConfig configures the optional credential mirror.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Key      string        `mapstructure:"key" yaml:"key"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "potokend")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.executable_path", "")
	v.SetDefault("browser.profile_dir", "")

	// -- Updater --
	v.SetDefault("updater.interval", time.Hour)

	// -- Server --
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:4416")

	// -- Redis --
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "potokend:credential")
	v.SetDefault("redis.ttl", 2*time.Hour)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("redis.password", "POTOKEND_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Updater.Interval <= 0 {
		return fmt.Errorf("updater.interval must be a positive duration")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the mirror settings.
func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if r.Key == "" {
		return fmt.Errorf("key is required")
	}
	if r.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}
