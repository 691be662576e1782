package merge

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/jonwraymond/actioncache/action"
)

// ErrUnknownStrategy indicates Lookup was given an unknown name.
var ErrUnknownStrategy = errors.New("merge: unknown strategy")

// Strategy combines a live context with a deserialized cached one.
//
// Contract:
// - Inputs: neither live nor cached is modified; the result is a new context.
// - Errors: merging well-formed contexts never fails.
// - Concurrency: implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Merge(live, cached action.Context) action.Context
}

// Paranoid lets explicitly set live values override cached ones and keeps
// every field that exists on only one side. Nested maps merge recursively.
type Paranoid struct{}

// NewParanoid creates the default merge strategy.
func NewParanoid() Paranoid {
	return Paranoid{}
}

// Name returns "paranoid".
func (Paranoid) Name() string { return "paranoid" }

// Merge returns cached overlaid with the explicitly set fields of live.
func (Paranoid) Merge(live, cached action.Context) action.Context {
	out := cached.Clone()
	if out == nil {
		out = make(action.Context, len(live))
	}
	mergeInto(out, live)
	return out
}

func mergeInto(dst map[string]any, live map[string]any) {
	for k, lv := range live {
		cv, exists := dst[k]
		if !exists {
			dst[k] = action.CloneValue(lv)
			continue
		}

		liveMap, liveIsMap := asMap(lv)
		cachedMap, cachedIsMap := asMap(cv)
		if liveIsMap && cachedIsMap {
			merged := make(map[string]any, len(cachedMap))
			for ck, cvv := range cachedMap {
				merged[ck] = cvv
			}
			mergeInto(merged, liveMap)
			dst[k] = merged
			continue
		}

		if IsSet(lv) {
			dst[k] = action.CloneValue(lv)
		}
	}
}

// IsSet reports whether v counts as explicitly set: it is neither nil nor
// the zero value of its type.
func IsSet(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case action.Context:
		return m, true
	default:
		return nil, false
	}
}

// Overwrite returns the cached context, copying only the preserved
// bookkeeping fields from live.
type Overwrite struct {
	preserve []string
}

// NewOverwrite creates an Overwrite strategy keeping the named live fields.
func NewOverwrite(preserve ...string) Overwrite {
	return Overwrite{preserve: append([]string(nil), preserve...)}
}

// Name returns "overwrite".
func (Overwrite) Name() string { return "overwrite" }

// Merge returns cached plus the preserved fields present in live.
func (o Overwrite) Merge(live, cached action.Context) action.Context {
	out := cached.Clone()
	if out == nil {
		out = make(action.Context, len(o.preserve))
	}
	for _, k := range o.preserve {
		if v, ok := live[k]; ok {
			out[k] = action.CloneValue(v)
		}
	}
	return out
}

// Lookup returns the strategy registered under name. An empty name selects
// Paranoid. preserve configures Overwrite and is ignored otherwise.
func Lookup(name string, preserve ...string) (Strategy, error) {
	switch name {
	case "", "paranoid":
		return NewParanoid(), nil
	case "overwrite":
		return NewOverwrite(preserve...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

var (
	_ Strategy = Paranoid{}
	_ Strategy = Overwrite{}
)
