// Package merge reconciles a live action context with a cached one.
//
// Paranoid is the default: the cached result supplies every field, but any
// value the live execution set explicitly wins, and fields only the live
// context knows about (request ids, timings) survive a cache hit.
// Overwrite returns the cached context, keeping only named bookkeeping
// fields from the live one.
package merge
