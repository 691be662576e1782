package interceptor

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/actioncache/action"
	"github.com/jonwraymond/actioncache/observe"
	"github.com/jonwraymond/actioncache/store"
)

// Outcome classifies one interception for telemetry.
type Outcome string

const (
	OutcomeBypass Outcome = "bypass"
	OutcomeHit    Outcome = "hit"
	OutcomeMiss   Outcome = "miss"
	OutcomeError  Outcome = "error"
)

// Wrapped is an action decorated with caching.
type Wrapped func(ctx context.Context, live action.Context) (action.Context, error)

// Interceptor runs actions behind a cache.
//
// Contract:
//   - Concurrency: safe for concurrent use. Never spawns goroutines.
//   - Ordering: key derivation, store lookup, decode and merge run strictly
//     in that order for one call.
//   - Errors: on failure the returned context is nil. Action errors are
//     returned unchanged.
type Interceptor struct {
	settings Settings
}

// New validates settings and creates an Interceptor.
func New(settings Settings) (*Interceptor, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Interceptor{settings: settings.withDefaults()}, nil
}

// Settings returns a copy of the settings in use.
func (i *Interceptor) Settings() Settings {
	return i.settings
}

// Intercept runs run against live through the cache configured for def.
//
// When caching is disabled or def has no key generator, run executes
// directly and live is returned as run left it. Otherwise the result is the
// merge of live with the stored context.
func (i *Interceptor) Intercept(ctx context.Context, def *action.Definition, live action.Context, run action.Func) (action.Context, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is nil", action.ErrInvalidDefinition)
	}
	if live == nil {
		live = action.Context{}
	}

	meta := observe.ActionMeta{Name: def.Name()}
	start := time.Now()

	if !i.settings.Enabled || !def.Cached() {
		err := run(ctx, live)
		i.settings.Metrics.RecordInterception(ctx, meta, string(OutcomeBypass), time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return live, nil
	}

	ctx, span := i.settings.Tracer.StartSpan(ctx, meta)
	result, outcome, err := i.intercept(ctx, def, live, run, &meta)
	if err != nil {
		outcome = OutcomeError
		result = nil
	}
	i.settings.Tracer.EndSpan(span, meta, string(outcome), err)
	i.settings.Metrics.RecordInterception(ctx, meta, string(outcome), time.Since(start), err)
	return result, err
}

func (i *Interceptor) intercept(ctx context.Context, def *action.Definition, live action.Context, run action.Func, meta *observe.ActionMeta) (action.Context, Outcome, error) {
	key, err := def.Key(live)
	if err == nil {
		err = store.ValidateKey(key)
	}
	if err != nil {
		return nil, OutcomeError, &KeyError{Action: def.Name(), Err: err}
	}
	meta.Key = key

	logger := i.settings.Logger.WithAction(*meta)
	opts := def.Options()

	// populated holds the blob this call computed; nil when another caller
	// or the store supplied the result.
	var populated []byte
	populate := func(ctx context.Context) ([]byte, error) {
		if err := run(ctx, live); err != nil {
			return nil, err
		}
		blob, err := i.settings.Codec.Dump(live)
		if err != nil {
			return nil, err
		}
		populated = blob
		logger.Info(ctx, "cache populated",
			observe.Field{Key: "action", Value: def.Name()},
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "expires_in", Value: opts.ExpiresIn.String()},
			observe.Field{Key: "options", Value: opts.Backend},
		)
		return blob, nil
	}

	blob, err := i.settings.Store.FetchOrPopulate(ctx, key, opts, populate)
	if err != nil {
		if populated == nil || !store.IsWriteError(err) || i.settings.WritePolicy != FailOpen {
			return nil, OutcomeError, err
		}
		logger.Warn(ctx, "cache write failed, serving computed result",
			observe.Field{Key: "error", Value: err.Error()},
		)
		blob = populated
	}

	outcome := OutcomeHit
	if populated != nil {
		outcome = OutcomeMiss
	} else {
		logger.Debug(ctx, "cache hit")
	}

	cached, err := i.settings.Codec.Load(blob)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("interceptor: %s %q: %w", def.Name(), key, err)
	}
	return i.settings.Merge.Merge(live, cached), outcome, nil
}

// Wrap decorates run with caching for def.
func (i *Interceptor) Wrap(def *action.Definition, run action.Func) Wrapped {
	return func(ctx context.Context, live action.Context) (action.Context, error) {
		return i.Intercept(ctx, def, live, run)
	}
}

// Run intercepts run using the definition registered under name.
func (i *Interceptor) Run(ctx context.Context, name string, live action.Context, run action.Func) (action.Context, error) {
	if i.settings.Registry == nil {
		return nil, fmt.Errorf("%w: %s: no registry configured", ErrUnknownAction, name)
	}
	def, ok := i.settings.Registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return i.Intercept(ctx, def, live, run)
}
