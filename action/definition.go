package action

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// OptionExpiresIn is the cache option key that sets Options.ExpiresIn.
const OptionExpiresIn = "expires_in"

// KeyFunc derives a cache key from a live context. The same logical
// context must always produce the same key.
type KeyFunc func(c Context) (string, error)

// Options configures how results of an action type are cached.
type Options struct {
	// ExpiresIn is the lifetime of a stored result. Zero means the backend
	// default applies.
	ExpiresIn time.Duration

	// Backend holds backend-specific options, passed through untouched.
	Backend map[string]any
}

// Definition is the immutable cache configuration of one action type.
//
// Contract:
// - Immutability: a Definition is never modified after Define returns.
// - Concurrency: safe for concurrent reads.
type Definition struct {
	name    string
	keyFunc KeyFunc
	options Options
}

// Name returns the action type name.
func (d *Definition) Name() string {
	return d.name
}

// KeyGenerator returns the key generator, or nil for an uncached action type.
func (d *Definition) KeyGenerator() KeyFunc {
	return d.keyFunc
}

// Cached reports whether the action type has a key generator.
func (d *Definition) Cached() bool {
	return d != nil && d.keyFunc != nil
}

// Options returns a copy of the cache options.
func (d *Definition) Options() Options {
	opts := d.options
	opts.Backend = maps.Clone(d.options.Backend)
	return opts
}

// Key derives the cache key for c.
func (d *Definition) Key(c Context) (string, error) {
	if d.keyFunc == nil {
		return "", fmt.Errorf("%w: %s has no key generator", ErrInvalidDefinition, d.name)
	}
	return d.keyFunc(c)
}

// Option configures a Definition during Define.
type Option func(*builder)

type builder struct {
	def  Definition
	errs []string
}

func (b *builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Sprintf(format, args...))
}

// WithKeyGenerator sets the function deriving cache keys.
func WithKeyGenerator(fn KeyFunc) Option {
	return func(b *builder) {
		if fn == nil {
			b.fail("key generator is nil")
			return
		}
		b.def.keyFunc = fn
	}
}

// WithKeyFields derives keys as "<prefix>:<field1>:<field2>..." from the
// named context fields. A missing field is a key generation error.
func WithKeyFields(prefix string, fields ...string) Option {
	return func(b *builder) {
		if len(fields) == 0 {
			b.fail("key fields are empty")
			return
		}
		b.def.keyFunc = FieldKey(prefix, fields...)
	}
}

// WithExpiresIn sets the lifetime of stored results. Last call wins.
func WithExpiresIn(d time.Duration) Option {
	return func(b *builder) {
		if d < 0 {
			b.fail("expires_in is negative: %s", d)
			return
		}
		b.def.options.ExpiresIn = d
	}
}

// WithCacheOptions merges backend options into the definition. Repeated
// calls merge, later keys winning. An "expires_in" entry, given as a
// time.Duration or a duration string, sets the expiry.
func WithCacheOptions(opts map[string]any) Option {
	return func(b *builder) {
		for k, v := range opts {
			if k == OptionExpiresIn {
				d, err := parseDuration(v)
				if err != nil {
					b.fail("%s: %v", OptionExpiresIn, err)
					continue
				}
				WithExpiresIn(d)(b)
				continue
			}
			if b.def.options.Backend == nil {
				b.def.options.Backend = make(map[string]any, len(opts))
			}
			b.def.options.Backend[k] = v
		}
	}
}

func parseDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		return time.ParseDuration(val)
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// Define builds and validates a Definition. Validation happens once here,
// never at invocation time.
func Define(name string, opts ...Option) (*Definition, error) {
	b := &builder{def: Definition{name: name}}
	if strings.TrimSpace(name) == "" {
		b.fail("name is empty")
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, name, strings.Join(b.errs, "; "))
	}
	def := b.def
	return &def, nil
}

// MustDefine is like Define but panics on error. Intended for package-level
// action declarations.
func MustDefine(name string, opts ...Option) *Definition {
	def, err := Define(name, opts...)
	if err != nil {
		panic(err)
	}
	return def
}
