package config

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/actioncache/codec"
	"github.com/jonwraymond/actioncache/interceptor"
	"github.com/jonwraymond/actioncache/merge"
	"github.com/jonwraymond/actioncache/store"
)

// ErrInvalidConfig indicates a configuration value is missing or out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Validate checks names and ranges. Backend connectivity is checked by Build.
func (c *Config) Validate() error {
	if _, err := codec.Lookup(c.Codec); err != nil {
		return err
	}
	if _, err := merge.Lookup(c.Merge.Strategy, c.Merge.Preserve...); err != nil {
		return err
	}
	if _, err := interceptor.ParseWritePolicy(c.WritePolicy); err != nil {
		return err
	}

	s := c.Store
	if s.DefaultTTL < 0 || s.MaxTTL < 0 {
		return fmt.Errorf("%w: store ttl must not be negative", ErrInvalidConfig)
	}
	switch s.Backend {
	case "", "worthless", "memory":
	case "lru":
		if s.LRUSize < 0 {
			return fmt.Errorf("%w: store.lru_size must not be negative", ErrInvalidConfig)
		}
	case "redis":
		if s.Redis.URL == "" {
			return fmt.Errorf("%w: store.redis.url is required for the redis backend", ErrInvalidConfig)
		}
	case "memcache":
		if len(s.Memcache.Servers) == 0 {
			return fmt.Errorf("%w: store.memcache.servers is required for the memcache backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownBackend, s.Backend)
	}

	if s.Breaker.Enabled && s.Breaker.MaxFailures <= 0 {
		return fmt.Errorf("%w: store.breaker.max_failures must be positive", ErrInvalidConfig)
	}

	return c.Observe.Validate()
}
