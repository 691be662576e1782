package interceptor

import (
	"context"
	"testing"

	"github.com/jonwraymond/actioncache/action"
	"github.com/jonwraymond/actioncache/codec"
	"github.com/jonwraymond/actioncache/store"
)

func benchInterceptor(b *testing.B, c codec.Codec) *Interceptor {
	b.Helper()
	s := DefaultSettings()
	s.Store = store.NewMemory(store.DefaultPolicy())
	s.Codec = c
	i, err := New(s)
	if err != nil {
		b.Fatal(err)
	}
	return i
}

func benchRun(_ context.Context, c action.Context) error {
	c["greeting"] = "Hi " + c["name"].(string)
	c["tags"] = []any{"a", "b", "c"}
	return nil
}

func BenchmarkIntercept_HitJSON(b *testing.B) {
	i := benchInterceptor(b, codec.NewJSON())
	ctx := context.Background()
	_, _ = i.Intercept(ctx, greetDef, action.Context{"name": "Ann"}, benchRun)

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, _ = i.Intercept(ctx, greetDef, action.Context{"name": "Ann", "requestId": "r"}, benchRun)
	}
}

func BenchmarkIntercept_HitMsgpack(b *testing.B) {
	i := benchInterceptor(b, codec.NewMsgpack())
	ctx := context.Background()
	_, _ = i.Intercept(ctx, greetDef, action.Context{"name": "Ann"}, benchRun)

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, _ = i.Intercept(ctx, greetDef, action.Context{"name": "Ann", "requestId": "r"}, benchRun)
	}
}

func BenchmarkIntercept_Bypass(b *testing.B) {
	i := benchInterceptor(b, codec.NewJSON())
	def := action.MustDefine("Uncached")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, _ = i.Intercept(ctx, def, action.Context{"name": "Ann"}, benchRun)
	}
}
