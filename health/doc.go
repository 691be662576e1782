// Package health reports the health of cache backends.
//
// A Checker reports a Status: Healthy, Degraded or Unhealthy. Backends that
// talk to a server are checked with NewBackendChecker; bounded in-process
// stores with NewCapacityChecker. An Aggregator runs several checkers and
// folds their results into one status.
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewBackendChecker("redis", redisStore, 0))
//	results := agg.CheckAll(ctx)
//	overall := health.OverallStatus(results)
//
// Health checks are side channels: they never change interception results.
package health
