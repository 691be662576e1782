// Package action describes the units of work the interceptor caches.
//
// An action type is declared once with Define, which captures its key
// generator and cache options in an immutable Definition. Each invocation
// owns exactly one live Context, a mutable field map the action body fills
// in. Definitions are usually collected in a Registry at bootstrap.
package action
