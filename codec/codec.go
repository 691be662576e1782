package codec

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/actioncache/action"
)

// Sentinel errors for codec operations.
var (
	// ErrSerialization indicates a context field could not be encoded.
	ErrSerialization = errors.New("codec: serialization failed")

	// ErrDeserialization indicates a blob was malformed, truncated or
	// produced by an incompatible codec.
	ErrDeserialization = errors.New("codec: deserialization failed")

	// ErrUnknownCodec indicates Lookup was given an unknown name.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// Codec converts contexts to and from blobs.
//
// Contract:
// - Round-trip: Load(Dump(c)) is field-equivalent to c.
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Dump fails with ErrSerialization, Load with ErrDeserialization.
type Codec interface {
	// Name returns the codec identifier used in configuration.
	Name() string

	// Dump encodes c.
	Dump(c action.Context) ([]byte, error)

	// Load decodes a blob produced by Dump.
	Load(blob []byte) (action.Context, error)
}

// Error wraps a codec failure with the operation that produced it.
type Error struct {
	Codec string
	Op    string // dump|load
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s %s: %v", e.Codec, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	kind := ErrDeserialization
	if e.Op == "dump" {
		kind = ErrSerialization
	}
	return []error{kind, e.Err}
}

func dumpError(codec string, err error) error {
	return &Error{Codec: codec, Op: "dump", Err: err}
}

func loadError(codec string, err error) error {
	return &Error{Codec: codec, Op: "load", Err: err}
}

// Lookup returns the codec registered under name. An empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", "json":
		return NewJSON(), nil
	case "msgpack":
		return NewMsgpack(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
