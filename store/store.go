package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/actioncache/action"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// DefaultPrefix namespaces every key the remote stores write.
const DefaultPrefix = "actioncache/"

// Sentinel errors for store operations.
var (
	// ErrUnavailable indicates the backend could not be reached or failed
	// an I/O operation.
	ErrUnavailable = errors.New("store: backend unavailable")

	ErrInvalidKey = errors.New("store: key is invalid")
	ErrKeyTooLong = errors.New("store: key exceeds max length")

	// ErrUnknownBackend indicates an unknown backend name in configuration.
	ErrUnknownBackend = errors.New("store: unknown backend")
)

// PopulateFunc computes the blob for a missing key.
type PopulateFunc func(ctx context.Context) ([]byte, error)

// Store is a fetch-or-populate key/value store with per-entry expiration.
//
// Contract:
//   - Hit: a present, unexpired key returns the stored blob; populate is not called.
//   - Miss: populate is called at most once for this call; its blob is stored
//     with expiry derived from opts.ExpiresIn and returned.
//   - Failure: if populate fails nothing is stored and its error is returned
//     unchanged. Backend failures are returned as *Error matching ErrUnavailable.
//   - Concurrency: implementations must be safe for concurrent use.
type Store interface {
	FetchOrPopulate(ctx context.Context, key string, opts action.Options, populate PopulateFunc) ([]byte, error)
}

// SingleFlighter is implemented by stores that run populate at most once
// for concurrent callers of the same key in one process.
type SingleFlighter interface {
	SingleFlight() bool
}

// Pinger is implemented by stores backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Error is a backend failure.
type Error struct {
	Backend string
	Op      string // get|set|ping|connect
	Key     string
	Err     error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// IsWriteError reports whether err is a backend failure while storing a
// freshly populated blob.
func IsWriteError(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Op == "set"
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
