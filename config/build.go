package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jonwraymond/actioncache/action"
	"github.com/jonwraymond/actioncache/codec"
	"github.com/jonwraymond/actioncache/health"
	"github.com/jonwraymond/actioncache/interceptor"
	"github.com/jonwraymond/actioncache/merge"
	"github.com/jonwraymond/actioncache/observe"
	"github.com/jonwraymond/actioncache/store"
)

// Runtime holds everything Build created.
type Runtime struct {
	Settings interceptor.Settings
	Observer observe.Observer
	Health   *health.Aggregator

	closers []func(context.Context) error
}

// Interceptor creates an interceptor over the built settings. registry may
// be nil when only Intercept and Wrap are used.
func (r *Runtime) Interceptor(registry *action.Registry) (*interceptor.Interceptor, error) {
	s := r.Settings
	s.Registry = registry
	return interceptor.New(s)
}

// Shutdown closes the store and flushes telemetry, in reverse build order.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build constructs the observer, store, codec and merge strategy described
// by cfg. Remote backends are contacted where their client connects eagerly.
//
// Backend connection strings may reference ${ENV} variables and
// secretref:<provider>:<ref> values resolved by WithSecretProvider.
func Build(ctx context.Context, cfg *Config, opts ...BuildOption) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bo := &buildOptions{providers: make(map[string]SecretProvider)}
	for _, opt := range opts {
		opt(bo)
	}

	rt := &Runtime{Health: health.NewAggregator(cfg.Health.Timeout)}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}
	rt.Observer = obs
	rt.closers = append(rt.closers, obs.Shutdown)

	st, err := rt.buildStore(ctx, cfg, bo, obs.Logger())
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}

	settings, err := cfg.settings()
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	settings.Store = st
	settings.Logger = obs.Logger()
	settings.Tracer = obs.Tracer()
	settings.Metrics = obs.Metrics()
	rt.Settings = settings
	return rt, nil
}

// settings resolves the codec, merge strategy and write policy names.
func (c *Config) settings() (interceptor.Settings, error) {
	cd, err := codec.Lookup(c.Codec)
	if err != nil {
		return interceptor.Settings{}, err
	}
	m, err := merge.Lookup(c.Merge.Strategy, c.Merge.Preserve...)
	if err != nil {
		return interceptor.Settings{}, err
	}
	policy, err := interceptor.ParseWritePolicy(c.WritePolicy)
	if err != nil {
		return interceptor.Settings{}, err
	}
	return interceptor.Settings{
		Enabled:     c.Enabled,
		Codec:       cd,
		Merge:       m,
		WritePolicy: policy,
	}, nil
}

func (rt *Runtime) buildStore(ctx context.Context, cfg *Config, bo *buildOptions, logger observe.Logger) (store.Store, error) {
	sc := cfg.Store
	policy := store.Policy{DefaultTTL: sc.DefaultTTL, MaxTTL: sc.MaxTTL}

	var st store.Store
	switch sc.Backend {
	case "", "worthless":
		return store.NewWorthless(), nil

	case "memory":
		return store.NewMemory(policy), nil

	case "lru":
		l, err := store.NewLRU(sc.LRUSize, policy)
		if err != nil {
			return nil, err
		}
		rt.Health.Register(health.NewCapacityChecker("lru", l, health.CapacityCheckerConfig{Capacity: l.Cap()}))
		return l, nil

	case "redis":
		url, err := bo.resolve(ctx, sc.Redis.URL)
		if err != nil {
			return nil, err
		}
		r, err := store.NewRedis(ctx, store.RedisConfig{
			URL:            url,
			Prefix:         sc.Redis.Prefix,
			LocalCacheSize: sc.Redis.LocalCacheSize,
			LocalCacheTTL:  sc.Redis.LocalCacheTTL,
			Policy:         policy,
		})
		if err != nil {
			return nil, err
		}
		st = r

	case "memcache":
		servers, err := bo.resolveAll(ctx, sc.Memcache.Servers)
		if err != nil {
			return nil, err
		}
		m, err := store.NewMemcache(store.MemcacheConfig{
			Servers: servers,
			Timeout: sc.Memcache.Timeout,
			Prefix:  sc.Memcache.Prefix,
			Policy:  policy,
		})
		if err != nil {
			return nil, err
		}
		st = m

	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, sc.Backend)
	}

	if closer, ok := st.(io.Closer); ok {
		rt.closers = append(rt.closers, func(context.Context) error { return closer.Close() })
	}

	if sc.Breaker.Enabled {
		st = store.NewBreaker(st, sc.Backend, store.BreakerConfig{
			MaxFailures:  sc.Breaker.MaxFailures,
			ResetTimeout: sc.Breaker.ResetTimeout,
			OnStateChange: func(from, to store.BreakerState) {
				logger.Warn(context.Background(), "cache circuit breaker state changed",
					observe.Field{Key: "backend", Value: sc.Backend},
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()},
				)
			},
		})
	}

	if p, ok := st.(store.Pinger); ok {
		rt.Health.Register(health.NewBackendChecker(sc.Backend, p, cfg.Health.LatencyThreshold))
	}
	return st, nil
}
