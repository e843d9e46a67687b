package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.NotNil(cfg.Server)
	assert.NotNil(cfg.Auction)
	assert.NotNil(cfg.Instrumentation)
	assert.NotNil(cfg.Inspect)

	assert.Equal("0.0.0.0:5000", cfg.Server.ListenAddress)
	assert.Equal(4, cfg.Server.Workers)
	assert.Equal(60*time.Second, cfg.Auction.Window)
	assert.False(cfg.Inspect.Enabled())

	cfg.SetRoot("/foo")
	assert.Equal("/foo/config/config.toml", cfg.ConfigFile())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())
	assert.NoError(t, TestConfig().ValidateBasic())

	testCases := []struct {
		name   string
		tamper func(*Config)
	}{
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "5000" }},
		{"negative workers", func(c *Config) { c.Server.Workers = -1 }},
		{"negative max peers", func(c *Config) { c.Server.MaxPeers = -1 }},
		{"zero datagram size", func(c *Config) { c.Server.MaxDatagramSize = 0 }},
		{"zero window", func(c *Config) { c.Auction.Window = 0 }},
		{"prometheus without namespace", func(c *Config) {
			c.Instrumentation.Prometheus = true
			c.Instrumentation.Namespace = ""
		}},
		{"negative connections", func(c *Config) { c.Inspect.MaxOpenConnections = -1 }},
		{"bad inspect address", func(c *Config) { c.Inspect.ListenAddress = "nope" }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.tamper(cfg)
			require.Error(t, cfg.ValidateBasic())
		})
	}
}

func TestInspectConfigCors(t *testing.T) {
	cfg := DefaultInspectConfig()
	assert.False(t, cfg.IsCorsEnabled())
	cfg.CORSAllowedOrigins = []string{"*"}
	assert.True(t, cfg.IsCorsEnabled())
}
