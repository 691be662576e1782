package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/actioncache/store"
)

// DefaultLatencyThreshold is the ping latency above which a backend is
// reported degraded.
const DefaultLatencyThreshold = 250 * time.Millisecond

// BackendChecker pings a remote cache backend.
type BackendChecker struct {
	name      string
	pinger    store.Pinger
	threshold time.Duration
}

// NewBackendChecker creates a checker over pinger. A non-positive threshold
// selects DefaultLatencyThreshold.
func NewBackendChecker(name string, pinger store.Pinger, threshold time.Duration) *BackendChecker {
	if threshold <= 0 {
		threshold = DefaultLatencyThreshold
	}
	return &BackendChecker{name: name, pinger: pinger, threshold: threshold}
}

// Name returns the backend name.
func (b *BackendChecker) Name() string { return b.name }

// Check pings the backend. Errors are unhealthy; slow replies are degraded.
func (b *BackendChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := b.pinger.Ping(ctx)
	latency := time.Since(start)
	details := map[string]any{"latency": latency.String()}

	if err != nil {
		return Unhealthy(fmt.Sprintf("%s unreachable", b.name), err).WithDetails(details)
	}
	if latency > b.threshold {
		return Degraded(fmt.Sprintf("%s slow: %s > %s", b.name, latency, b.threshold)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%s reachable", b.name)).WithDetails(details)
}
