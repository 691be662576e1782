package interceptor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/actioncache/action"
	"github.com/jonwraymond/actioncache/codec"
	"github.com/jonwraymond/actioncache/merge"
	"github.com/jonwraymond/actioncache/observe"
	"github.com/jonwraymond/actioncache/store"
)

var greetDef = action.MustDefine("Greet",
	action.WithKeyFields("greet", "name"),
	action.WithExpiresIn(60*time.Second),
)

// greeter returns an action that sets a greeting and counts its runs.
func greeter(runs *atomic.Int32) action.Func {
	return func(_ context.Context, c action.Context) error {
		runs.Add(1)
		c["greeting"] = "Hi " + c["name"].(string)
		return nil
	}
}

// recordingStore counts calls to an inner store.
type recordingStore struct {
	inner store.Store
	calls atomic.Int32
}

func (s *recordingStore) FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate store.PopulateFunc) ([]byte, error) {
	s.calls.Add(1)
	return s.inner.FetchOrPopulate(ctx, key, opts, populate)
}

// brokenStore fails reads, or runs populate and then fails the write.
type brokenStore struct {
	failRead bool
}

func (s brokenStore) FetchOrPopulate(ctx context.Context, key string, _ action.Options, populate store.PopulateFunc) ([]byte, error) {
	if s.failRead {
		return nil, &store.Error{Backend: "broken", Op: "get", Key: key, Err: errors.New("connection refused")}
	}
	if _, err := populate(ctx); err != nil {
		return nil, err
	}
	return nil, &store.Error{Backend: "broken", Op: "set", Key: key, Err: errors.New("connection reset")}
}

// fixedStore always returns the same blob.
type fixedStore []byte

func (s fixedStore) FetchOrPopulate(context.Context, string, action.Options, store.PopulateFunc) ([]byte, error) {
	return s, nil
}

func newInterceptor(t *testing.T, mutate func(*Settings)) *Interceptor {
	t.Helper()
	s := DefaultSettings()
	s.Store = store.NewMemory(store.DefaultPolicy())
	if mutate != nil {
		mutate(&s)
	}
	i, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return i
}

func TestIntercept_GreetScenario(t *testing.T) {
	mem := store.NewMemory(store.DefaultPolicy())
	i := newInterceptor(t, func(s *Settings) { s.Store = mem })
	ctx := context.Background()
	var runs atomic.Int32

	first, err := i.Intercept(ctx, greetDef, action.Context{"name": "Ann"}, greeter(&runs))
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if first["greeting"] != "Hi Ann" {
		t.Errorf("first greeting = %v", first["greeting"])
	}
	if mem.Len() != 1 {
		t.Errorf("stored entries = %d, want 1", mem.Len())
	}

	second, err := i.Intercept(ctx, greetDef, action.Context{"name": "Ann", "requestId": "r2"}, greeter(&runs))
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("action ran %d times, want 1", runs.Load())
	}
	if second["greeting"] != "Hi Ann" {
		t.Errorf("second greeting = %v, want cached value", second["greeting"])
	}
	if second["requestId"] != "r2" {
		t.Errorf("requestId = %v, want live value", second["requestId"])
	}
}

func TestIntercept_DisabledBypassesStore(t *testing.T) {
	rec := &recordingStore{inner: store.NewMemory(store.DefaultPolicy())}
	i := newInterceptor(t, func(s *Settings) {
		s.Enabled = false
		s.Store = rec
	})
	var runs atomic.Int32

	live := action.Context{"name": "Ann"}
	for n := 0; n < 3; n++ {
		got, err := i.Intercept(context.Background(), greetDef, live, greeter(&runs))
		if err != nil {
			t.Fatalf("Intercept() error = %v", err)
		}
		if got["greeting"] != "Hi Ann" {
			t.Errorf("greeting = %v", got["greeting"])
		}
	}
	if runs.Load() != 3 {
		t.Errorf("action ran %d times, want 3", runs.Load())
	}
	if rec.calls.Load() != 0 {
		t.Errorf("store consulted %d times, want 0", rec.calls.Load())
	}
}

func TestIntercept_NoKeyGeneratorBypasses(t *testing.T) {
	rec := &recordingStore{inner: store.NewMemory(store.DefaultPolicy())}
	i := newInterceptor(t, func(s *Settings) { s.Store = rec })
	def := action.MustDefine("Uncached")
	var runs atomic.Int32

	live := action.Context{"name": "Ann"}
	got, err := i.Intercept(context.Background(), def, live, greeter(&runs))
	if err != nil {
		t.Fatalf("Intercept() error = %v", err)
	}
	if got["greeting"] != "Hi Ann" {
		t.Errorf("greeting = %v", got["greeting"])
	}
	if rec.calls.Load() != 0 {
		t.Errorf("store consulted %d times, want 0", rec.calls.Load())
	}
}

func TestIntercept_MissThenHit(t *testing.T) {
	i := newInterceptor(t, nil)
	def := action.MustDefine("Sum", action.WithKeyFields("sum", "k"))
	var runs atomic.Int32
	run := func(_ context.Context, c action.Context) error {
		runs.Add(1)
		c["a"] = 1
		c["b"] = 2
		return nil
	}

	ctx := context.Background()
	if _, err := i.Intercept(ctx, def, action.Context{"k": "x"}, run); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	got, err := i.Intercept(ctx, def, action.Context{"k": "x", "a": 9, "c": 3}, run)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("action ran %d times, want 1", runs.Load())
	}
	if got["a"] != 9 {
		t.Errorf("a = %v, want live 9", got["a"])
	}
	if got["b"] != int64(2) {
		t.Errorf("b = %#v, want cached 2", got["b"])
	}
	if got["c"] != 3 {
		t.Errorf("c = %v, want live-only 3", got["c"])
	}
}

func TestIntercept_ActionFailureStoresNothing(t *testing.T) {
	mem := store.NewMemory(store.DefaultPolicy())
	i := newInterceptor(t, func(s *Settings) { s.Store = mem })
	errBoom := errors.New("boom")
	var runs atomic.Int32
	failing := func(context.Context, action.Context) error {
		runs.Add(1)
		return errBoom
	}

	for n := 0; n < 2; n++ {
		got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, failing)
		if err != errBoom {
			t.Fatalf("error = %v, want the action error unchanged", err)
		}
		if got != nil {
			t.Errorf("context = %v, want nil", got)
		}
	}
	if runs.Load() != 2 {
		t.Errorf("action ran %d times, want 2", runs.Load())
	}
	if mem.Len() != 0 {
		t.Errorf("stored entries = %d, want 0", mem.Len())
	}
}

func TestIntercept_WorthlessAlwaysRuns(t *testing.T) {
	i := newInterceptor(t, func(s *Settings) { s.Store = store.NewWorthless() })
	var runs atomic.Int32

	for n := 0; n < 3; n++ {
		got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
		if err != nil {
			t.Fatalf("Intercept() error = %v", err)
		}
		if got["greeting"] != "Hi Ann" {
			t.Errorf("greeting = %v", got["greeting"])
		}
	}
	if runs.Load() != 3 {
		t.Errorf("action ran %d times, want 3", runs.Load())
	}
}

func TestIntercept_KeyErrors(t *testing.T) {
	errKey := errors.New("no tenant")
	tests := []struct {
		name    string
		def     *action.Definition
		wantErr error
	}{
		{
			name: "generator error",
			def: action.MustDefine("Tenant", action.WithKeyGenerator(func(action.Context) (string, error) {
				return "", errKey
			})),
			wantErr: errKey,
		},
		{
			name:    "missing field",
			def:     action.MustDefine("Greet", action.WithKeyFields("greet", "missing")),
			wantErr: action.ErrMissingField,
		},
		{
			name: "empty key",
			def: action.MustDefine("Empty", action.WithKeyGenerator(func(action.Context) (string, error) {
				return " ", nil
			})),
			wantErr: store.ErrInvalidKey,
		},
		{
			name: "key too long",
			def: action.MustDefine("Long", action.WithKeyGenerator(func(action.Context) (string, error) {
				return strings.Repeat("k", store.MaxKeyLength+1), nil
			})),
			wantErr: store.ErrKeyTooLong,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			i := newInterceptor(t, nil)
			var runs atomic.Int32

			got, err := i.Intercept(context.Background(), tc.def, action.Context{"name": "Ann"}, greeter(&runs))
			if !errors.Is(err, ErrKeyGeneration) {
				t.Fatalf("error = %v, want ErrKeyGeneration", err)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			var keyErr *KeyError
			if !errors.As(err, &keyErr) || keyErr.Action != tc.def.Name() {
				t.Errorf("error = %#v, want *KeyError for %s", err, tc.def.Name())
			}
			if got != nil {
				t.Errorf("context = %v, want nil", got)
			}
			if runs.Load() != 0 {
				t.Errorf("action ran %d times, want 0", runs.Load())
			}
		})
	}
}

func TestIntercept_WritePolicy(t *testing.T) {
	t.Run("fail closed", func(t *testing.T) {
		i := newInterceptor(t, func(s *Settings) { s.Store = brokenStore{} })
		var runs atomic.Int32

		got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
		if !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("error = %v, want ErrUnavailable", err)
		}
		if got != nil {
			t.Errorf("context = %v, want nil", got)
		}
	})

	t.Run("fail open", func(t *testing.T) {
		var buf bytes.Buffer
		i := newInterceptor(t, func(s *Settings) {
			s.Store = brokenStore{}
			s.WritePolicy = FailOpen
			s.Logger = observe.NewLoggerWithWriter("warn", &buf)
		})
		var runs atomic.Int32

		got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
		if err != nil {
			t.Fatalf("Intercept() error = %v", err)
		}
		if got["greeting"] != "Hi Ann" {
			t.Errorf("greeting = %v", got["greeting"])
		}
		if !strings.Contains(buf.String(), "cache write failed") {
			t.Errorf("expected a warning, log = %q", buf.String())
		}
	})

	t.Run("fail open still propagates read errors", func(t *testing.T) {
		i := newInterceptor(t, func(s *Settings) {
			s.Store = brokenStore{failRead: true}
			s.WritePolicy = FailOpen
		})
		var runs atomic.Int32

		_, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
		if !errors.Is(err, store.ErrUnavailable) {
			t.Fatalf("error = %v, want ErrUnavailable", err)
		}
		if runs.Load() != 0 {
			t.Errorf("action ran %d times, want 0", runs.Load())
		}
	})
}

func TestIntercept_CorruptBlob(t *testing.T) {
	i := newInterceptor(t, func(s *Settings) { s.Store = fixedStore("not json") })
	var runs atomic.Int32

	got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
	if !errors.Is(err, codec.ErrDeserialization) {
		t.Fatalf("error = %v, want ErrDeserialization", err)
	}
	if got != nil {
		t.Errorf("context = %v, want nil", got)
	}
}

func TestIntercept_SerializationFailureStoresNothing(t *testing.T) {
	mem := store.NewMemory(store.DefaultPolicy())
	i := newInterceptor(t, func(s *Settings) { s.Store = mem })
	run := func(_ context.Context, c action.Context) error {
		c["callback"] = func() {}
		return nil
	}

	_, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, run)
	if !errors.Is(err, codec.ErrSerialization) {
		t.Fatalf("error = %v, want ErrSerialization", err)
	}
	if mem.Len() != 0 {
		t.Errorf("stored entries = %d, want 0", mem.Len())
	}
}

func TestIntercept_Msgpack(t *testing.T) {
	i := newInterceptor(t, func(s *Settings) { s.Codec = codec.NewMsgpack() })
	var runs atomic.Int32

	for n := 0; n < 2; n++ {
		got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, greeter(&runs))
		if err != nil {
			t.Fatalf("Intercept() error = %v", err)
		}
		if got["greeting"] != "Hi Ann" {
			t.Errorf("greeting = %v", got["greeting"])
		}
	}
	if runs.Load() != 1 {
		t.Errorf("action ran %d times, want 1", runs.Load())
	}
}

func TestIntercept_OverwriteMerge(t *testing.T) {
	i := newInterceptor(t, func(s *Settings) { s.Merge = merge.NewOverwrite("requestId") })
	var runs atomic.Int32
	ctx := context.Background()

	if _, err := i.Intercept(ctx, greetDef, action.Context{"name": "Ann", "requestId": "r1"}, greeter(&runs)); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	got, err := i.Intercept(ctx, greetDef, action.Context{"name": "Ann", "requestId": "r2", "extra": true}, greeter(&runs))
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if got["requestId"] != "r2" {
		t.Errorf("requestId = %v, want preserved live value", got["requestId"])
	}
	if _, ok := got["extra"]; ok {
		t.Error("overwrite kept a live-only field")
	}
}

func TestIntercept_SingleFlight(t *testing.T) {
	i := newInterceptor(t, nil)
	var runs atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context, c action.Context) error {
		<-release
		return greeter(&runs)(ctx, c)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]action.Context, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := i.Intercept(context.Background(), greetDef, action.Context{"name": "Ann"}, slow)
			if err != nil {
				t.Errorf("Intercept() error = %v", err)
			}
			results[n] = got
		}(n)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if runs.Load() != 1 {
		t.Errorf("action ran %d times, want 1", runs.Load())
	}
	for n, got := range results {
		if got["greeting"] != "Hi Ann" {
			t.Errorf("caller %d greeting = %v", n, got["greeting"])
		}
	}
}

func TestIntercept_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observe.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	var logs bytes.Buffer

	i := newInterceptor(t, func(s *Settings) {
		s.Tracer = observe.NewTracer(tp.Tracer("test"))
		s.Metrics = metrics
		s.Logger = observe.NewLoggerWithWriter("debug", &logs)
	})
	var runs atomic.Int32
	ctx := context.Background()

	for n := 0; n < 2; n++ {
		if _, err := i.Intercept(ctx, greetDef, action.Context{"name": "Ann"}, greeter(&runs)); err != nil {
			t.Fatalf("Intercept() error = %v", err)
		}
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	var outcomes []string
	for _, s := range spans {
		if s.Name() != "action.cache.Greet" {
			t.Errorf("span name = %q", s.Name())
		}
		for _, a := range s.Attributes() {
			if a.Key == "cache.outcome" {
				outcomes = append(outcomes, a.Value.AsString())
			}
		}
	}
	if strings.Join(outcomes, ",") != "miss,hit" {
		t.Errorf("outcomes = %v, want [miss hit]", outcomes)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "action.cache.interceptions" {
				found = true
			}
		}
	}
	if !found {
		t.Error("action.cache.interceptions not recorded")
	}

	out := logs.String()
	for _, want := range []string{`"msg":"cache populated"`, `"key":"greet:Ann"`, `"expires_in":"1m0s"`, `"msg":"cache hit"`} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %s: %s", want, out)
		}
	}
}

func TestWrapAndRun(t *testing.T) {
	reg := action.NewRegistry()
	reg.MustRegister(greetDef)
	i := newInterceptor(t, func(s *Settings) { s.Registry = reg })
	var runs atomic.Int32
	ctx := context.Background()

	wrapped := i.Wrap(greetDef, greeter(&runs))
	if _, err := wrapped(ctx, action.Context{"name": "Ann"}); err != nil {
		t.Fatalf("wrapped error = %v", err)
	}

	got, err := i.Run(ctx, "Greet", action.Context{"name": "Ann"}, greeter(&runs))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got["greeting"] != "Hi Ann" || runs.Load() != 1 {
		t.Errorf("greeting = %v, runs = %d", got["greeting"], runs.Load())
	}

	if _, err := i.Run(ctx, "Missing", action.Context{}, greeter(&runs)); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Run(Missing) error = %v, want ErrUnknownAction", err)
	}
}

func TestRun_NoRegistry(t *testing.T) {
	i := newInterceptor(t, nil)
	var runs atomic.Int32
	if _, err := i.Run(context.Background(), "Greet", action.Context{}, greeter(&runs)); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("error = %v, want ErrUnknownAction", err)
	}
}

func TestIntercept_NilDefinition(t *testing.T) {
	i := newInterceptor(t, nil)
	var runs atomic.Int32
	if _, err := i.Intercept(context.Background(), nil, action.Context{}, greeter(&runs)); !errors.Is(err, action.ErrInvalidDefinition) {
		t.Fatalf("error = %v, want ErrInvalidDefinition", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"nil store", func(s *Settings) { s.Store = nil }},
		{"nil codec", func(s *Settings) { s.Codec = nil }},
		{"nil merge", func(s *Settings) { s.Merge = nil }},
		{"bad policy", func(s *Settings) { s.WritePolicy = WritePolicy(7) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			if _, err := New(s); !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("New() error = %v, want ErrInvalidSettings", err)
			}
		})
	}

	s := DefaultSettings()
	s.Logger, s.Tracer, s.Metrics = nil, nil, nil
	i, err := New(s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if i.Settings().Logger == nil || i.Settings().Tracer == nil || i.Settings().Metrics == nil {
		t.Error("telemetry defaults not applied")
	}
}

func TestParseWritePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    WritePolicy
		wantErr bool
	}{
		{"", FailClosed, false},
		{"fail_closed", FailClosed, false},
		{"fail_open", FailOpen, false},
		{"ignore", FailClosed, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseWritePolicy(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseWritePolicy(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseWritePolicy(%q) = %v, want %v", tc.in, got, tc.want)
			}
			if !tc.wantErr && tc.in != "" && got.String() != tc.in {
				t.Errorf("String() = %q, want %q", got.String(), tc.in)
			}
		})
	}
}
