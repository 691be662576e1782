package interceptor

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyGeneration indicates the key generator failed or produced a key
	// the store rejects.
	ErrKeyGeneration = errors.New("interceptor: key generation failed")

	// ErrUnknownAction indicates Run was given a name missing from the registry.
	ErrUnknownAction = errors.New("interceptor: unknown action")

	// ErrInvalidSettings indicates New was given incomplete settings.
	ErrInvalidSettings = errors.New("interceptor: invalid settings")

	// ErrUnknownWritePolicy indicates an unknown write policy name.
	ErrUnknownWritePolicy = errors.New("interceptor: unknown write policy")
)

// KeyError reports a key derivation failure for an action type.
type KeyError struct {
	Action string
	Err    error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("interceptor: %s: key generation failed: %v", e.Action, e.Err)
}

func (e *KeyError) Unwrap() []error {
	return []error{ErrKeyGeneration, e.Err}
}
