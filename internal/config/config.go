package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the floworc daemon
type Config struct {
	// Server configuration
	HTTPPort int    `env:"FLOWORC_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"FLOWORC_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// LLM configuration
	LLM LLMConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// How long archived run results are retained. Zero keeps them forever.
	ArchiveTTL time.Duration `env:"REDIS_ARCHIVE_TTL" envDefault:"168h"`
}

// SchedulerConfig holds the run execution defaults
type SchedulerConfig struct {
	// MaxNestingDepth bounds the nested-run call stack; zero disables the guard.
	MaxNestingDepth int `env:"SCHEDULER_MAX_NESTING_DEPTH" envDefault:"8"`

	// GraphRepeatLimit is how many times one graph may already appear on the
	// call stack before a further invocation is refused as re-entry.
	GraphRepeatLimit int `env:"SCHEDULER_GRAPH_REPEAT_LIMIT" envDefault:"0"`

	// ConcurrencyLimit caps concurrent node executions per run; zero is unbounded.
	ConcurrencyLimit int `env:"SCHEDULER_CONCURRENCY_LIMIT" envDefault:"0"`

	HealthCheckInterval time.Duration `env:"SCHEDULER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	StallThreshold      time.Duration `env:"SCHEDULER_STALL_THRESHOLD" envDefault:"10m"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	// NodeExecutionTimeout bounds a single node attempt when the node's
	// retry policy declares no timeout of its own.
	NodeExecutionTimeout time.Duration `env:"TIMEOUT_NODE_EXECUTION" envDefault:"300s"`
	ShutdownTimeout      time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Scheduler.MaxNestingDepth < 0 {
		return fmt.Errorf("max nesting depth must not be negative")
	}
	if c.Scheduler.GraphRepeatLimit < 0 {
		return fmt.Errorf("graph repeat limit must not be negative")
	}

	// The LLM executor is optional; when a key is set the provider must be known.
	if c.LLM.APIKey != "" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
