package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/actioncache/action"
)

// ErrCircuitOpen indicates the breaker is rejecting calls to a failing backend.
var ErrCircuitOpen = errors.New("store: circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive backend failures that open
	// the circuit. Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before one probe call
	// is let through. Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange is called with the lock held; it must not call back
	// into the Breaker.
	OnStateChange func(from, to BreakerState)
}

// Breaker wraps a Store and stops calling it after repeated backend
// failures. Only errors matching ErrUnavailable count; action failures
// raised from populate pass through without tripping it.
//
// While open, FetchOrPopulate fails immediately with an *Error wrapping
// ErrCircuitOpen and populate is not called.
type Breaker struct {
	inner   Store
	backend string
	config  BreakerConfig
	now     func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker wraps inner. backend names the store in errors.
func NewBreaker(inner Store, backend string, config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	return &Breaker{inner: inner, backend: backend, config: config, now: time.Now}
}

// FetchOrPopulate delegates to the wrapped store unless the circuit is open.
func (b *Breaker) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error) {
	if err := b.before(); err != nil {
		return nil, &Error{Backend: b.backend, Op: "get", Key: key, Err: err}
	}

	done := false
	defer func() {
		if !done {
			b.release()
		}
	}()

	blob, err := b.inner.FetchOrPopulate(ctx, key, opts, populate)
	done = true
	b.after(errors.Is(err, ErrUnavailable))
	return blob, err
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case BreakerOpen:
		return ErrCircuitOpen
	case BreakerHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		b.lastFailure = b.now()
		if b.failures >= b.config.MaxFailures {
			b.setLocked(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.probing = false
		if failed {
			b.lastFailure = b.now()
			b.setLocked(BreakerOpen)
			return
		}
		b.failures = 0
		b.setLocked(BreakerClosed)
	}
}

// release frees the half-open probe slot after a call that panicked, leaving
// the state unchanged.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.probing = false
	}
}

func (b *Breaker) currentLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.config.ResetTimeout {
		b.setLocked(BreakerHalfOpen)
		b.probing = false
	}
	return b.state
}

func (b *Breaker) setLocked(to BreakerState) {
	from := b.state
	b.state = to
	if from != to && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// Ping forwards to the wrapped store when it supports Ping.
func (b *Breaker) Ping(ctx context.Context) error {
	if p, ok := b.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// SingleFlight reports the wrapped store's capability.
func (b *Breaker) SingleFlight() bool {
	sf, ok := b.inner.(SingleFlighter)
	return ok && sf.SingleFlight()
}

// Unwrap returns the wrapped store.
func (b *Breaker) Unwrap() Store { return b.inner }

var (
	_ Store          = (*Breaker)(nil)
	_ Pinger         = (*Breaker)(nil)
	_ SingleFlighter = (*Breaker)(nil)
)
