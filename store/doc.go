// Package store provides fetch-or-populate cache backends for serialized
// action contexts.
//
// Every backend implements Store. Worthless is the null backend and the
// default: it never persists anything, so every call runs populate. Memory
// and LRU keep blobs in process; Redis and Memcache delegate to external
// servers. Memory, LRU, Redis and Memcache collapse concurrent populates for
// the same key within one process (see SingleFlighter); callers must not
// rely on that.
package store
