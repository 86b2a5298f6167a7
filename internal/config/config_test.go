package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		HTTPPort: 8080,
		GRPCPort: 9090,
		LogLevel: "info",
		Redis:    RedisConfig{Addr: "localhost:6379"},
		LLM:      LLMConfig{Provider: "anthropic"},
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Scheduler.MaxNestingDepth)
	assert.Equal(t, 0, cfg.Scheduler.GraphRepeatLimit)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port zero", func(c *Config) { c.HTTPPort = 0 }},
		{"grpc port too high", func(c *Config) { c.GRPCPort = 70000 }},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"negative nesting depth", func(c *Config) { c.Scheduler.MaxNestingDepth = -1 }},
		{"negative repeat limit", func(c *Config) { c.Scheduler.GraphRepeatLimit = -1 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown llm provider with key", func(c *Config) {
			c.LLM.APIKey = "k"
			c.LLM.Provider = "openai"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAllowsMissingLLMKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = ""
	assert.NoError(t, cfg.Validate())
}
