package health

import (
	"context"
	"fmt"
)

// Sizer reports how many entries a store holds.
type Sizer interface {
	Len() int
}

// CapacityCheckerConfig configures the capacity checker.
type CapacityCheckerConfig struct {
	// Capacity is the maximum number of entries. Required.
	Capacity int

	// WarningThreshold is the fill ratio that triggers degraded status.
	// Value should be between 0 and 1. Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fill ratio that triggers unhealthy status.
	// Value should be between 0 and 1. Default: 0.95
	CriticalThreshold float64
}

// CapacityChecker reports how full a bounded in-process store is. A full
// LRU keeps working but evicts entries before they expire.
type CapacityChecker struct {
	name   string
	sizer  Sizer
	config CapacityCheckerConfig
}

// NewCapacityChecker creates a capacity checker. Out-of-range thresholds
// fall back to the defaults.
func NewCapacityChecker(name string, sizer Sizer, config CapacityCheckerConfig) *CapacityChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold
	}
	return &CapacityChecker{name: name, sizer: sizer, config: config}
}

// Name returns the store name.
func (c *CapacityChecker) Name() string { return c.name }

// Check compares the entry count against the configured capacity.
func (c *CapacityChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	entries := c.sizer.Len()
	details := map[string]any{
		"entries":  entries,
		"capacity": c.config.Capacity,
	}
	if c.config.Capacity <= 0 {
		return Healthy(fmt.Sprintf("%d entries, unbounded", entries)).WithDetails(details)
	}

	ratio := float64(entries) / float64(c.config.Capacity)
	details["fill_ratio"] = ratio
	msg := fmt.Sprintf("%d/%d entries (%.1f%%)", entries, c.config.Capacity, ratio*100)

	switch {
	case ratio >= c.config.CriticalThreshold:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case ratio >= c.config.WarningThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}
