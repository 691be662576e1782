package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jonwraymond/actioncache/action"
)

// JSON encodes contexts as JSON objects with sorted keys.
type JSON struct{}

// NewJSON creates a JSON codec.
func NewJSON() *JSON {
	return &JSON{}
}

// Name returns "json".
func (*JSON) Name() string { return "json" }

// Dump encodes c as a JSON object. A nil context encodes as {}.
func (j *JSON) Dump(c action.Context) ([]byte, error) {
	if c == nil {
		c = action.Context{}
	}
	data, err := json.Marshal(map[string]any(c))
	if err != nil {
		return nil, dumpError(j.Name(), err)
	}
	return data, nil
}

// Load decodes a JSON object. Integer literals become int64, or uint64 above
// math.MaxInt64; other numbers become float64. An integer literal that fits
// neither is an error.
func (j *JSON) Load(blob []byte) (action.Context, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, loadError(j.Name(), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, loadError(j.Name(), errors.New("trailing data after object"))
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, loadError(j.Name(), fmt.Errorf("expected object, got %T", raw))
	}
	if _, err := normalizeNumbers(obj); err != nil {
		return nil, loadError(j.Name(), err)
	}
	return action.Context(obj), nil
}

func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		return parseNumber(val)
	case map[string]any:
		for k, item := range val {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			val[k] = n
		}
		return val, nil
	case []any:
		for i, item := range val {
			n, err := normalizeNumbers(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}

func parseNumber(n json.Number) (any, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", s, err)
		}
		return f, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	return nil, fmt.Errorf("integer %s overflows 64 bits", s)
}

var _ Codec = (*JSON)(nil)
