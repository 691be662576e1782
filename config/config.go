package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/actioncache/observe"
)

// Config is the complete cache configuration.
type Config struct {
	Enabled     bool           `mapstructure:"enabled"`
	Codec       string         `mapstructure:"codec"`        // json|msgpack
	WritePolicy string         `mapstructure:"write_policy"` // fail_closed|fail_open
	Merge       MergeConfig    `mapstructure:"merge"`
	Store       StoreConfig    `mapstructure:"store"`
	Health      HealthConfig   `mapstructure:"health"`
	Observe     observe.Config `mapstructure:"observe"`
}

// MergeConfig selects the merge strategy.
type MergeConfig struct {
	Strategy string   `mapstructure:"strategy"` // paranoid|overwrite
	Preserve []string `mapstructure:"preserve"` // live fields kept by overwrite
}

// StoreConfig selects and configures the cache backend.
type StoreConfig struct {
	Backend    string         `mapstructure:"backend"` // worthless|memory|lru|redis|memcache
	DefaultTTL time.Duration  `mapstructure:"default_ttl"`
	MaxTTL     time.Duration  `mapstructure:"max_ttl"`
	LRUSize    int            `mapstructure:"lru_size"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Memcache   MemcacheConfig `mapstructure:"memcache"`
	Breaker    BreakerConfig  `mapstructure:"breaker"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	Prefix         string        `mapstructure:"prefix"`
	LocalCacheSize int           `mapstructure:"local_cache_size"`
	LocalCacheTTL  time.Duration `mapstructure:"local_cache_ttl"`
}

// MemcacheConfig configures the memcache backend.
type MemcacheConfig struct {
	Servers []string      `mapstructure:"servers"`
	Timeout time.Duration `mapstructure:"timeout"`
	Prefix  string        `mapstructure:"prefix"`
}

// BreakerConfig configures the circuit breaker around remote backends.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// HealthConfig configures backend health checks.
type HealthConfig struct {
	LatencyThreshold time.Duration `mapstructure:"latency_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// setDefaults registers every key so that environment variables can
// override keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("codec", "json")
	v.SetDefault("write_policy", "fail_closed")
	v.SetDefault("merge.strategy", "paranoid")
	v.SetDefault("merge.preserve", []string{})

	v.SetDefault("store.backend", "worthless")
	v.SetDefault("store.default_ttl", time.Duration(0))
	v.SetDefault("store.max_ttl", time.Duration(0))
	v.SetDefault("store.lru_size", 10_000)
	v.SetDefault("store.redis.url", "")
	v.SetDefault("store.redis.prefix", "")
	v.SetDefault("store.redis.local_cache_size", 0)
	v.SetDefault("store.redis.local_cache_ttl", time.Minute)
	v.SetDefault("store.memcache.servers", []string{})
	v.SetDefault("store.memcache.timeout", time.Duration(0))
	v.SetDefault("store.memcache.prefix", "")
	v.SetDefault("store.breaker.enabled", false)
	v.SetDefault("store.breaker.max_failures", 5)
	v.SetDefault("store.breaker.reset_timeout", 30*time.Second)

	v.SetDefault("health.latency_threshold", 250*time.Millisecond)
	v.SetDefault("health.timeout", 10*time.Second)

	v.SetDefault("observe.service_name", "actioncache")
	v.SetDefault("observe.version", "")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.metrics.enabled", false)
	v.SetDefault("observe.metrics.exporter", "none")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")
}

// Load loads configuration from a file and environment variables.
// envPrefix names the variables (e.g. "ACTIONCACHE" -> ACTIONCACHE_STORE_BACKEND).
// If configPath is empty, only defaults and the environment are used.
func Load(configPath, envPrefix string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(configPath, envPrefix string) *Config {
	cfg, err := Load(configPath, envPrefix)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
