package action

import "context"

// Context is the mutable result record of a single action execution.
// It has no fixed schema: fields are addressed by name.
type Context map[string]any

// Func is the body of an action. It mutates the live context in place and
// reports failure through the returned error.
type Func func(ctx context.Context, c Context) error

// Get returns the value stored under key.
func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// Set stores value under key.
func (c Context) Set(key string, value any) {
	c[key] = value
}

// Clone returns a deep copy of c. Nested map[string]any, Context and []any
// values are copied; other values are shared.
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep copies nested maps and []any; other values are shared.
func CloneValue(v any) any {
	switch val := v.(type) {
	case Context:
		return val.Clone()
	case map[string]any:
		return map[string]any(Context(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}
