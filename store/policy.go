package store

import "time"

// Policy maps requested expiries to the TTL a backend applies.
type Policy struct {
	// DefaultTTL applies when an action sets no expiry.
	// If zero, such entries never expire.
	DefaultTTL time.Duration

	// MaxTTL caps every TTL, including "never expires".
	// If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default policy: no default expiry, no cap.
func DefaultPolicy() Policy {
	return Policy{}
}

// EffectiveTTL returns the TTL for the requested expiry. Zero means the
// entry never expires.
func (p Policy) EffectiveTTL(expiresIn time.Duration) time.Duration {
	ttl := expiresIn
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	if p.MaxTTL > 0 && (ttl <= 0 || ttl > p.MaxTTL) {
		ttl = p.MaxTTL
	}

	return ttl
}
