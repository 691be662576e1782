package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/jonwraymond/actioncache/action"
)

const (
	// memcacheMaxKey is the memcached protocol key limit.
	memcacheMaxKey = 250

	// memcacheMaxRelative is the largest expiry memcached treats as
	// relative seconds; larger values are unix timestamps.
	memcacheMaxRelative = 30 * 24 * time.Hour
)

// memcacheClient is the subset of *memcache.Client the store uses.
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	Ping() error
	Close() error
}

// MemcacheConfig configures the Memcache store.
type MemcacheConfig struct {
	// Servers are host:port addresses.
	Servers []string

	// Timeout is the socket read/write timeout. Default: client default.
	Timeout time.Duration

	// Prefix namespaces keys. Default: DefaultPrefix.
	Prefix string

	Policy Policy
}

// Memcache stores blobs in memcached.
type Memcache struct {
	client memcacheClient
	prefix string
	policy Policy
	flight flight
}

// NewMemcache creates a memcached store. Connections are opened lazily.
func NewMemcache(cfg MemcacheConfig) (*Memcache, error) {
	if len(cfg.Servers) == 0 {
		return nil, &Error{Backend: "memcache", Op: "connect", Err: errors.New("no servers configured")}
	}
	client := memcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return newMemcache(client, cfg), nil
}

func newMemcache(client memcacheClient, cfg MemcacheConfig) *Memcache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Memcache{client: client, prefix: prefix, policy: cfg.Policy}
}

// FetchOrPopulate returns the stored blob for key or populates it.
func (m *Memcache) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	expiration := memcacheExpiration(m.policy.EffectiveTTL(opts.ExpiresIn))
	set := func(_ context.Context, key string, blob []byte) error {
		err := m.client.Set(&memcache.Item{Key: key, Value: blob, Expiration: expiration})
		if err != nil {
			return &Error{Backend: "memcache", Op: "set", Key: key, Err: err}
		}
		return nil
	}
	return m.flight.do(ctx, m.wireKey(key), m.get, set, populate)
}

func (m *Memcache) get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "memcache", Op: "get", Key: key, Err: err}
	}
	return item.Value, true, nil
}

// wireKey maps a cache key to a legal memcached key. Keys that are too
// long or contain whitespace or control characters are hashed.
func (m *Memcache) wireKey(key string) string {
	k := m.prefix + key
	if len(k) <= memcacheMaxKey && !strings.ContainsFunc(k, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return k
	}
	sum := sha256.Sum256([]byte(k))
	return m.prefix + "sha256:" + hex.EncodeToString(sum[:])
}

// memcacheExpiration converts a TTL to memcached expiry seconds, clamped
// to the relative-expiry limit. Zero means never expire.
func memcacheExpiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl >= memcacheMaxRelative {
		return int32((memcacheMaxRelative - time.Minute) / time.Second)
	}
	secs := int32(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Delete removes a stored blob. Idempotent - no error on miss.
func (m *Memcache) Delete(_ context.Context, key string) error {
	err := m.client.Delete(m.wireKey(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return &Error{Backend: "memcache", Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Ping checks that every server is reachable.
func (m *Memcache) Ping(_ context.Context) error {
	if err := m.client.Ping(); err != nil {
		return &Error{Backend: "memcache", Op: "ping", Err: err}
	}
	return nil
}

// Close closes idle connections.
func (m *Memcache) Close() error {
	return m.client.Close()
}

// SingleFlight reports true: concurrent misses in this process share one
// populate.
func (m *Memcache) SingleFlight() bool { return true }

var (
	_ Store          = (*Memcache)(nil)
	_ Pinger         = (*Memcache)(nil)
	_ SingleFlighter = (*Memcache)(nil)
)
