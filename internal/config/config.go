// Package config loads the OpenViking service configuration via viper:
// defaults, an optional YAML config file (OPENVIKING_CONFIG_FILE), and
// OPENVIKING_* environment variables, in ascending precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               int    `mapstructure:"port"`
	LogLevel           string `mapstructure:"log_level"`  // debug | info | warn | error
	LogFormat          string `mapstructure:"log_format"` // json | text
	DataDir            string `mapstructure:"data_dir"`   // root for embedded FS/vector/record data
	RequestTimeoutSec  int    `mapstructure:"request_timeout_sec"`  // HTTP read/write; 0 = server default
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"` // graceful shutdown wait

	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// RootAPIKey enables the admin endpoints; absence disables them
	// (OPENVIKING_ROOT_API_KEY).
	RootAPIKey string `mapstructure:"root_api_key"`

	// AGFSURL selects the byte-addressed storage backend; empty falls back
	// to the local embedded FS under DataDir (OPENVIKING_AGFS_URL).
	AGFSURL string `mapstructure:"agfs_url"`

	// Vector backend selection (OPENVIKING_VECTOR_BACKEND) and tuning.
	VectorBackend    string `mapstructure:"vector_backend"` // local | http | vikingdb | volcengine
	VectorURL        string `mapstructure:"vector_url"`
	VectorPath       string `mapstructure:"vector_path"`
	VectorCollection string `mapstructure:"vector_collection"`
	VectorDimension  int    `mapstructure:"vector_dimension"`
	VectorAccessKey  string `mapstructure:"vector_access_key"`
	VectorSecretKey  string `mapstructure:"vector_secret_key"`
	VectorRegion     string `mapstructure:"vector_region"`
	// VectorRedisAddr enables the cache-aside layer for hot queries on
	// remote vector backends.
	VectorRedisAddr   string `mapstructure:"vector_redis_addr"`
	VectorCacheTTLSec int    `mapstructure:"vector_cache_ttl_sec"`

	// Retrieval tuning.
	HotnessAlpha        float64 `mapstructure:"hotness_alpha"`
	HotnessHalfLifeDays float64 `mapstructure:"hotness_half_life_days"`
	EmbeddingCacheSize  int     `mapstructure:"embedding_cache_size"`

	// MemoryDedupThreshold is the cosine similarity at or above which an
	// extracted memory is skipped as a duplicate.
	MemoryDedupThreshold float64 `mapstructure:"memory_dedup_threshold"`

	// Per-account request rate limiting; 0 disables.
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`

	// Recorder settings.
	RecorderEnabled   bool   `mapstructure:"recorder_enabled"`
	RecorderFile      string `mapstructure:"recorder_file"` // empty = auto under DataDir/records
	RecorderBatchSize int    `mapstructure:"recorder_batch_size"`
	RecorderFlushMS   int    `mapstructure:"recorder_flush_ms"`
	RecorderQueueSize int    `mapstructure:"recorder_queue_size"`

	// Trace collector event budget per request.
	TraceMaxEvents int `mapstructure:"trace_max_events"`

	// Body size limit for POST/PUT ingest requests.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Metrics endpoint authentication; false = public scraping.
	MetricsAuthEnabled bool `mapstructure:"metrics_auth_enabled"`

	// OpenTelemetry tracing (ambient, distinct from the per-request collector).
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingServiceName  string  `mapstructure:"tracing_service_name"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`
}

// Load reads defaults, the optional config file, and OPENVIKING_* env
// vars. A missing config file is fine; a present-but-broken one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("port", 8318)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("shutdown_timeout_sec", 15)
	v.SetDefault("allowed_origins", []string{"http://localhost:5173"})

	// Every key needs a default (even an empty one) for env-only values to
	// survive Unmarshal.
	v.SetDefault("root_api_key", "")
	v.SetDefault("agfs_url", "")

	v.SetDefault("vector_backend", "local")
	v.SetDefault("vector_url", "")
	v.SetDefault("vector_path", "")
	v.SetDefault("vector_collection", "context")
	v.SetDefault("vector_dimension", 256)
	v.SetDefault("vector_access_key", "")
	v.SetDefault("vector_secret_key", "")
	v.SetDefault("vector_region", "")
	v.SetDefault("vector_redis_addr", "")
	v.SetDefault("vector_cache_ttl_sec", 30)

	v.SetDefault("hotness_alpha", 0.2)
	v.SetDefault("hotness_half_life_days", 7.0)
	v.SetDefault("embedding_cache_size", 2048)
	v.SetDefault("memory_dedup_threshold", 0.9)

	v.SetDefault("rate_limit_per_sec", 0)
	v.SetDefault("rate_limit_burst", 0)

	v.SetDefault("recorder_enabled", false)
	v.SetDefault("recorder_file", "")
	v.SetDefault("recorder_batch_size", 64)
	v.SetDefault("recorder_flush_ms", 1000)
	v.SetDefault("recorder_queue_size", 4096)

	v.SetDefault("trace_max_events", 500)
	v.SetDefault("max_body_bytes", 8*1024*1024)

	v.SetDefault("metrics_auth_enabled", false)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_service_name", "openviking")
	v.SetDefault("tracing_sampling_rate", 1.0)

	v.SetEnvPrefix("OPENVIKING")
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	} else {
		v.SetConfigName("openviking")
		v.AddConfigPath("/etc/openviking/")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// OPENVIKING_ALLOWED_ORIGINS is often a comma-separated string from
	// the environment; normalize either shape and trim whitespace.
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		parts := strings.Split(cfg.AllowedOrigins[0], ",")
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, p := range parts {
			if o := strings.TrimSpace(p); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.MemoryDedupThreshold <= 0 || cfg.MemoryDedupThreshold > 1 {
		return nil, fmt.Errorf("memory_dedup_threshold must be in (0, 1], got %v", cfg.MemoryDedupThreshold)
	}
	if cfg.HotnessAlpha < 0 || cfg.HotnessAlpha > 1 {
		return nil, fmt.Errorf("hotness_alpha must be in [0, 1], got %v", cfg.HotnessAlpha)
	}
	return &cfg, nil
}

// RecorderFlushInterval converts the millisecond knob into a duration.
func (c *Config) RecorderFlushInterval() time.Duration {
	return time.Duration(c.RecorderFlushMS) * time.Millisecond
}

// VectorCacheTTL converts the second knob into a duration.
func (c *Config) VectorCacheTTL() time.Duration {
	return time.Duration(c.VectorCacheTTLSec) * time.Second
}
