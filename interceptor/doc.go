// Package interceptor runs actions behind a cache.
//
// An Interceptor derives a key from the live context, asks the configured
// store to fetch or populate it, decodes the stored blob and merges it with
// the live context. Populating runs the action and encodes the context it
// leaves behind.
//
// All collaborators come from an explicit Settings value; the package holds
// no global state. Settings are read-only once New returns.
//
// Errors are classified with errors.Is:
//   - ErrKeyGeneration: the key could not be derived; the action did not run.
//   - store.ErrUnavailable: the backend failed.
//   - codec.ErrSerialization, codec.ErrDeserialization: encoding failed.
//   - anything else is the action's own error, returned unchanged.
package interceptor
