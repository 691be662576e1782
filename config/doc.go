// Package config loads cache configuration from a file and the environment
// and builds the interceptor settings it describes.
//
//	cfg, err := config.Load("actioncache.yaml", "ACTIONCACHE")
//	rt, err := config.Build(ctx, cfg)
//	defer rt.Shutdown(ctx)
//	ic, err := rt.Interceptor(registry)
//
// Environment variables override file values; nested keys use "_" in place
// of ".", e.g. ACTIONCACHE_STORE_BACKEND=redis.
package config
