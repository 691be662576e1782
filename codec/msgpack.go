package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonwraymond/actioncache/action"
)

// msgpackVersion prefixes every blob so foreign payloads are rejected.
const msgpackVersion byte = 0x01

// Msgpack encodes contexts as MessagePack maps.
type Msgpack struct{}

// NewMsgpack creates a MessagePack codec.
func NewMsgpack() *Msgpack {
	return &Msgpack{}
}

// Name returns "msgpack".
func (*Msgpack) Name() string { return "msgpack" }

// Dump encodes c behind a one-byte format version.
func (m *Msgpack) Dump(c action.Context) ([]byte, error) {
	if c == nil {
		c = action.Context{}
	}

	var buf bytes.Buffer
	buf.WriteByte(msgpackVersion)

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(map[string]any(c)); err != nil {
		return nil, dumpError(m.Name(), err)
	}
	return buf.Bytes(), nil
}

// Load decodes a blob produced by Dump. Numbers decode loosely as int64,
// uint64 or float64.
func (m *Msgpack) Load(blob []byte) (action.Context, error) {
	if len(blob) == 0 {
		return nil, loadError(m.Name(), errors.New("empty blob"))
	}
	if blob[0] != msgpackVersion {
		return nil, loadError(m.Name(), fmt.Errorf("unsupported format version %#x", blob[0]))
	}

	r := bytes.NewReader(blob[1:])
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	obj := make(map[string]any)
	if err := dec.Decode(&obj); err != nil {
		return nil, loadError(m.Name(), err)
	}
	if r.Len() != 0 {
		return nil, loadError(m.Name(), errors.New("trailing data after map"))
	}
	if obj == nil {
		return nil, loadError(m.Name(), errors.New("expected map, got nil"))
	}
	return action.Context(obj), nil
}

var _ Codec = (*Msgpack)(nil)
