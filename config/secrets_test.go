package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type mapProvider map[string]string

func (mapProvider) Name() string { return "vault" }

func (p mapProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p[ref]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("AC_TEST_HOST", "cache.internal")

	got, err := expandEnvStrict("redis://${AC_TEST_HOST}:6379/$$0")
	if err != nil {
		t.Fatalf("expandEnvStrict() error = %v", err)
	}
	if got != "redis://cache.internal:6379/$0" {
		t.Errorf("expandEnvStrict() = %q", got)
	}

	_, err = expandEnvStrict("redis://${AC_TEST_MISSING_B}:${AC_TEST_MISSING_A}")
	if !errors.Is(err, ErrSecret) {
		t.Fatalf("error = %v, want ErrSecret", err)
	}
	if !strings.Contains(err.Error(), "AC_TEST_MISSING_A, AC_TEST_MISSING_B") {
		t.Errorf("error = %v, want sorted variable names", err)
	}
}

func TestResolveSecretRefs(t *testing.T) {
	bo := &buildOptions{providers: map[string]SecretProvider{}}
	WithSecretProvider(mapProvider{"redis-pass": "s3cret"})(bo)
	ctx := context.Background()

	got, err := bo.resolve(ctx, "redis://:secretref:vault:redis-pass@localhost:6379/0")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if got != "redis://:s3cret@localhost:6379/0" {
		t.Errorf("resolve() = %q", got)
	}

	tests := []struct {
		name  string
		value string
	}{
		{"unknown provider", "secretref:aws:x"},
		{"unknown ref", "secretref:vault:missing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := bo.resolve(ctx, tc.value); !errors.Is(err, ErrSecret) {
				t.Fatalf("resolve(%q) error = %v, want ErrSecret", tc.value, err)
			}
		})
	}

	servers, err := bo.resolveAll(ctx, []string{"a:11211", "b:11211"})
	if err != nil || len(servers) != 2 {
		t.Fatalf("resolveAll() = %v, %v", servers, err)
	}
}

func TestBuild_RedisSecretRef(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	cfg := validConfig(t)
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.URL = "redis://:secretref:vault:redis-pass@" + mr.Addr()

	if _, err := Build(ctx, cfg); !errors.Is(err, ErrSecret) {
		t.Fatalf("Build() without provider error = %v, want ErrSecret", err)
	}

	rt, err := Build(ctx, cfg, WithSecretProvider(mapProvider{"redis-pass": "s3cret"}))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := rt.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
