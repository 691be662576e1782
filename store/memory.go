package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/actioncache/action"
)

// Memory is an in-process store with lazy expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	policy  Policy
	flight  flight
	now     func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero: never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func newEntry(blob []byte, ttl time.Duration, now time.Time) *entry {
	e := &entry{value: append([]byte(nil), blob...)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}

// NewMemory creates an in-memory store with the given policy.
func NewMemory(policy Policy) *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		policy:  policy,
		now:     time.Now,
	}
}

// FetchOrPopulate returns the stored blob for key or populates it.
func (m *Memory) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ttl := m.policy.EffectiveTTL(opts.ExpiresIn)
	set := func(_ context.Context, key string, blob []byte) error {
		m.mu.Lock()
		m.entries[key] = newEntry(blob, ttl, m.now())
		m.mu.Unlock()
		return nil
	}
	return m.flight.do(ctx, key, m.get, set, populate)
}

func (m *Memory) get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if e.expired(m.now()) {
		// Expired - clean up lazily
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}

	return e.value, true, nil
}

// Delete removes a stored blob. Idempotent - no error on miss.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SingleFlight reports true: concurrent misses share one populate.
func (m *Memory) SingleFlight() bool { return true }

var (
	_ Store          = (*Memory)(nil)
	_ SingleFlighter = (*Memory)(nil)
)
