package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/actioncache/action"
)

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// URL holds all connection options, e.g. redis://localhost:6379/0.
	// Ignored when Client is set.
	URL string

	// Client is an existing client. The store does not close it.
	Client redis.UniversalClient

	// Prefix namespaces keys. Default: DefaultPrefix.
	Prefix string

	// LocalCacheSize enables an in-process TinyLFU tier of that many
	// entries in front of Redis. Zero disables it.
	LocalCacheSize int

	// LocalCacheTTL bounds how long the local tier may serve an entry.
	// Default: 1 minute.
	LocalCacheTTL time.Duration

	Policy Policy
}

// Redis stores blobs in Redis, optionally fronted by a local TinyLFU tier.
type Redis struct {
	client redis.UniversalClient
	cache  *cache.Cache
	prefix string
	policy Policy
	owned  bool
	flight flight

	// localTTL is zero when the local tier is disabled.
	localTTL time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := cfg.Client
	owned := false
	if client == nil {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, &Error{Backend: "redis", Op: "connect", Err: err}
		}
		client = redis.NewClient(opt)
		owned = true
	}

	if err := client.Ping(ctx).Err(); err != nil {
		if owned {
			_ = client.Close()
		}
		return nil, &Error{Backend: "redis", Op: "connect", Err: err}
	}

	opts := &cache.Options{Redis: client}
	var localTTL time.Duration
	if cfg.LocalCacheSize > 0 {
		localTTL = cfg.LocalCacheTTL
		if localTTL <= 0 {
			localTTL = time.Minute
		}
		opts.LocalCache = cache.NewTinyLFU(cfg.LocalCacheSize, localTTL)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Redis{
		client: client,
		cache:  cache.New(opts),
		prefix: prefix,
		policy: cfg.Policy,
		owned:  owned,

		localTTL: localTTL,
	}, nil
}

// FetchOrPopulate returns the stored blob for key or populates it.
func (r *Redis) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ttl := r.policy.EffectiveTTL(opts.ExpiresIn)
	skipLocal := r.skipLocal(ttl)
	get := func(ctx context.Context, key string) ([]byte, bool, error) {
		return r.get(ctx, key, skipLocal)
	}
	set := func(ctx context.Context, key string, blob []byte) error {
		return r.set(ctx, key, blob, ttl, skipLocal)
	}
	return r.flight.do(ctx, r.prefix+key, get, set, populate)
}

// skipLocal reports whether entries with ttl would outlive their expiry in
// the local tier, which holds every entry for localTTL.
func (r *Redis) skipLocal(ttl time.Duration) bool {
	return r.localTTL > 0 && ttl > 0 && ttl < r.localTTL
}

func (r *Redis) get(ctx context.Context, key string, skipLocal bool) ([]byte, bool, error) {
	var blob []byte
	var err error
	if skipLocal {
		err = r.cache.GetSkippingLocalCache(ctx, key, &blob)
	} else {
		err = r.cache.Get(ctx, key, &blob)
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "redis", Op: "get", Key: key, Err: err}
	}
	return blob, true, nil
}

func (r *Redis) set(ctx context.Context, key string, blob []byte, ttl time.Duration, skipLocal bool) error {
	var err error
	if ttl <= 0 {
		// The cache library has no "never expires"; write through the client.
		err = r.client.Set(ctx, key, blob, 0).Err()
	} else {
		if ttl < time.Second {
			ttl = time.Second
		}
		err = r.cache.Set(&cache.Item{
			Ctx:   ctx,
			Key:   key,
			Value: blob,
			TTL:   ttl,

			SkipLocalCache: skipLocal,
		})
	}
	if err != nil {
		return &Error{Backend: "redis", Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a stored blob from Redis and the local tier.
func (r *Redis) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, r.prefix+key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return &Error{Backend: "redis", Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &Error{Backend: "redis", Op: "ping", Err: err}
	}
	return nil
}

// Close closes the client if the store created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

// SingleFlight reports true: concurrent misses in this process share one
// populate. Other processes may still populate the same key.
func (r *Redis) SingleFlight() bool { return true }

var (
	_ Store          = (*Redis)(nil)
	_ Pinger         = (*Redis)(nil)
	_ SingleFlighter = (*Redis)(nil)
)
