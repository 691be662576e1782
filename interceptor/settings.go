package interceptor

import (
	"fmt"

	"github.com/jonwraymond/actioncache/action"
	"github.com/jonwraymond/actioncache/codec"
	"github.com/jonwraymond/actioncache/merge"
	"github.com/jonwraymond/actioncache/observe"
	"github.com/jonwraymond/actioncache/store"
)

// WritePolicy decides what happens when an action succeeds but its result
// cannot be stored.
type WritePolicy int

const (
	// FailClosed returns the store error to the caller.
	FailClosed WritePolicy = iota

	// FailOpen logs the store error and returns the computed result.
	FailOpen
)

func (p WritePolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// ParseWritePolicy parses "fail_closed" (or "") and "fail_open".
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch s {
	case "", "fail_closed":
		return FailClosed, nil
	case "fail_open":
		return FailOpen, nil
	default:
		return FailClosed, fmt.Errorf("%w: %q", ErrUnknownWritePolicy, s)
	}
}

// Settings is the application context of an Interceptor.
//
// Contract:
//   - Lifecycle: built at bootstrap and passed to New. Changing the
//     collaborators while actions run is undefined; callers that swap
//     settings (tests) must build a new Interceptor.
type Settings struct {
	// Enabled switches caching on. When false every action runs directly.
	Enabled bool

	Store       store.Store
	Codec       codec.Codec
	Merge       merge.Strategy
	WritePolicy WritePolicy

	Logger  observe.Logger
	Tracer  observe.Tracer
	Metrics observe.Metrics

	// Registry resolves action names for Run. Optional.
	Registry *action.Registry
}

// DefaultSettings returns enabled settings over the Worthless store, the
// JSON codec and the Paranoid merge, failing closed, without telemetry.
func DefaultSettings() Settings {
	return Settings{
		Enabled:     true,
		Store:       store.NewWorthless(),
		Codec:       codec.NewJSON(),
		Merge:       merge.NewParanoid(),
		WritePolicy: FailClosed,
		Logger:      observe.NopLogger(),
		Tracer:      observe.NopTracer(),
		Metrics:     observe.NopMetrics(),
	}
}

// withDefaults fills optional telemetry collaborators.
func (s Settings) withDefaults() Settings {
	if s.Logger == nil {
		s.Logger = observe.NopLogger()
	}
	if s.Tracer == nil {
		s.Tracer = observe.NopTracer()
	}
	if s.Metrics == nil {
		s.Metrics = observe.NopMetrics()
	}
	return s
}

// Validate reports missing required collaborators.
func (s Settings) Validate() error {
	switch {
	case s.Store == nil:
		return fmt.Errorf("%w: store is nil", ErrInvalidSettings)
	case s.Codec == nil:
		return fmt.Errorf("%w: codec is nil", ErrInvalidSettings)
	case s.Merge == nil:
		return fmt.Errorf("%w: merge strategy is nil", ErrInvalidSettings)
	case s.WritePolicy != FailClosed && s.WritePolicy != FailOpen:
		return fmt.Errorf("%w: write policy %d", ErrInvalidSettings, s.WritePolicy)
	}
	return nil
}
