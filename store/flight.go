package store

import (
	"context"

	"golang.org/x/sync/singleflight"
)

type getFunc func(ctx context.Context, key string) ([]byte, bool, error)

type setFunc func(ctx context.Context, key string, blob []byte) error

// fetchOrPopulate implements the Store contract over get and set primitives.
func fetchOrPopulate(ctx context.Context, key string, get getFunc, set setFunc, populate PopulateFunc) ([]byte, error) {
	blob, ok, err := get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return blob, nil
	}

	blob, err = populate(ctx)
	if err != nil {
		return nil, err
	}

	if err := set(ctx, key, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// flight collapses concurrent fetch-or-populate calls for the same key.
// Waiters share the leader's blob or error.
type flight struct {
	group singleflight.Group
}

func (f *flight) do(ctx context.Context, key string, get getFunc, set setFunc, populate PopulateFunc) ([]byte, error) {
	// Hits skip the group entirely.
	if blob, ok, err := get(ctx, key); err == nil && ok {
		return blob, nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		return fetchOrPopulate(ctx, key, get, set, populate)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
