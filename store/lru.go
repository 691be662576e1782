package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jonwraymond/actioncache/action"
)

// DefaultLRUSize is the capacity used when NewLRU is given a size <= 0.
const DefaultLRUSize = 10_000

// LRU is a bounded in-process store. Least recently used entries are
// evicted when full; each entry also carries its own expiry.
type LRU struct {
	cache  *lru.Cache[string, *entry]
	size   int
	policy Policy
	flight flight
	now    func() time.Time
}

// NewLRU creates a bounded store holding at most size entries.
func NewLRU(size int, policy Policy) (*LRU, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create lru: %w", err)
	}
	return &LRU{cache: c, size: size, policy: policy, now: time.Now}, nil
}

// FetchOrPopulate returns the stored blob for key or populates it.
func (l *LRU) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ttl := l.policy.EffectiveTTL(opts.ExpiresIn)
	set := func(_ context.Context, key string, blob []byte) error {
		l.cache.Add(key, newEntry(blob, ttl, l.now()))
		return nil
	}
	return l.flight.do(ctx, key, l.get, set, populate)
}

func (l *LRU) get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(l.now()) {
		l.cache.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Len returns the number of entries.
func (l *LRU) Len() int {
	return l.cache.Len()
}

// Cap returns the maximum number of entries.
func (l *LRU) Cap() int { return l.size }

// SingleFlight reports true: concurrent misses share one populate.
func (l *LRU) SingleFlight() bool { return true }

var (
	_ Store          = (*LRU)(nil)
	_ SingleFlighter = (*LRU)(nil)
)
