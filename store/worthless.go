package store

import (
	"context"

	"github.com/jonwraymond/actioncache/action"
)

// Worthless is the null store: every key is absent, populate always runs and
// nothing is persisted. It turns caching into a pass-through.
type Worthless struct{}

// NewWorthless creates the null store.
func NewWorthless() Worthless {
	return Worthless{}
}

// FetchOrPopulate always calls populate and returns its result.
func (Worthless) FetchOrPopulate(ctx context.Context, key string, _ action.Options, populate PopulateFunc) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return populate(ctx)
}

var _ Store = Worthless{}
