// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "potokend", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, time.Hour, cfg.Updater.Interval)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:4416", cfg.Server.Addr)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "potokend:credential", cfg.Redis.Key)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		err := cfg.Validate()
		assert.NoError(t, err, "A valid config should not produce a validation error")

		cfgInvalidInterval := *cfg
		cfgInvalidInterval.Updater.Interval = 0
		err = cfgInvalidInterval.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "updater.interval must be a positive duration")

		cfgMissingAddr := *cfg
		cfgMissingAddr.Server.Addr = ""
		err = cfgMissingAddr.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server.addr is required")

		cfgServerDisabled := cfgMissingAddr
		cfgServerDisabled.Server.Enabled = false
		assert.NoError(t, cfgServerDisabled.Validate(), "disabled server does not need an address")
	})

	t.Run("Redis Validation", func(t *testing.T) {
		validRedis := RedisConfig{
			Enabled: true,
			Addr:    "localhost:6379",
			Key:     "potokend:credential",
			TTL:     2 * time.Hour,
		}
		assert.NoError(t, validRedis.Validate())

		disabledRedis := validRedis
		disabledRedis.Enabled = false
		disabledRedis.Addr = ""
		assert.NoError(t, disabledRedis.Validate(), "disabled mirror config should always be valid")

		missingAddr := validRedis
		missingAddr.Addr = ""
		err := missingAddr.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "addr is required")

		missingKey := validRedis
		missingKey.Key = ""
		err = missingKey.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "key is required")

		negativeTTL := validRedis
		negativeTTL.TTL = -time.Second
		err = negativeTTL.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ttl must not be negative")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
updater:
  interval: 30m
browser:
  headless: false
  executable_path: /usr/bin/chromium
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		err := v.ReadConfig(bytes.NewBuffer(yamlBytes))
		require.NoError(t, err)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 30*time.Minute, cfg.Updater.Interval)
		assert.False(t, cfg.Browser.Headless)
		assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecutablePath)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("updater.interval", "0s") // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "updater.interval must be a positive duration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("redis.enabled", true)

		testPassword := "redis-secret-456"
		t.Setenv("POTOKEND_REDIS_PASSWORD", testPassword)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, testPassword, cfg.Redis.Password)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/potokend.log
server:
  addr: ":9090"
redis:
  enabled: true
  ttl: 45m
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(bytes.NewBufferString(yamlInput))
	require.NoError(t, err)

	var cfg Config
	err = v.Unmarshal(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/var/log/potokend.log", cfg.Logger.LogFile)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 45*time.Minute, cfg.Redis.TTL)
}
