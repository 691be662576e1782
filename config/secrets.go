package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrSecret indicates a connection string could not be resolved.
var ErrSecret = errors.New("config: secret resolution failed")

// SecretProvider resolves secret references of the form
// "secretref:<provider>:<ref>" found in backend connection strings.
//
// Implementations must be safe for concurrent use and must not log values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	providers map[string]SecretProvider
}

// WithSecretProvider registers a provider for secretref: references.
func WithSecretProvider(p SecretProvider) BuildOption {
	return func(o *buildOptions) {
		if p != nil {
			o.providers[p.Name()] = p
		}
	}
}

var (
	envRefPattern    = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	secretRefPattern = regexp.MustCompile(`secretref:([^:\s/@]+):([^\s/@]+)`)
)

// expandEnvStrict expands $VAR and ${VAR}. A ${VAR} naming an unset
// variable is an error; "$$" yields a literal "$".
func expandEnvStrict(s string) (string, error) {
	const dollar = "\x00ACTIONCACHE_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	var missing []string
	for _, m := range envRefPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: missing environment variables: %s", ErrSecret, strings.Join(missing, ", "))
	}

	return strings.ReplaceAll(os.ExpandEnv(s), dollar, "$"), nil
}

// resolve expands environment references and then every secretref: in value.
func (o *buildOptions) resolve(ctx context.Context, value string) (string, error) {
	out, err := expandEnvStrict(value)
	if err != nil {
		return "", err
	}

	matches := secretRefPattern.FindAllStringSubmatchIndex(out, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		name, ref := out[m[2]:m[3]], out[m[4]:m[5]]

		p, ok := o.providers[name]
		if !ok {
			return "", fmt.Errorf("%w: provider %q is not registered", ErrSecret, name)
		}
		secret, err := p.Resolve(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrSecret, name, err)
		}
		if secret == "" {
			return "", fmt.Errorf("%w: provider %q returned an empty value", ErrSecret, name)
		}
		out = out[:m[0]] + secret + out[m[1]:]
	}
	return out, nil
}

func (o *buildOptions) resolveAll(ctx context.Context, values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		r, err := o.resolve(ctx, v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
