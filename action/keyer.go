package action

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldKey returns a KeyFunc producing "<prefix>:<v1>:<v2>..." from the
// named fields. Values are formatted with fmt; a missing field fails.
func FieldKey(prefix string, fields ...string) KeyFunc {
	return func(c Context) (string, error) {
		parts := make([]string, 0, len(fields)+1)
		if prefix != "" {
			parts = append(parts, prefix)
		}
		for _, f := range fields {
			v, ok := c[f]
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrMissingField, f)
			}
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, ":"), nil
	}
}

// HashKey returns a KeyFunc producing "<prefix>:<hash>" where hash is the
// first 16 hex characters of SHA-256 over the canonical JSON of the named
// fields, or of the whole context when no fields are given.
//
// Map iteration order never affects the result.
func HashKey(prefix string, fields ...string) KeyFunc {
	return func(c Context) (string, error) {
		subject := map[string]any(c)
		if len(fields) > 0 {
			subject = make(map[string]any, len(fields))
			for _, f := range fields {
				v, ok := c[f]
				if !ok {
					return "", fmt.Errorf("%w: %q", ErrMissingField, f)
				}
				subject[f] = v
			}
		}

		canonical, err := canonicalize(subject)
		if err != nil {
			return "", fmt.Errorf("action: failed to canonicalize context: %w", err)
		}

		hash := sha256.Sum256(canonical)
		return prefix + ":" + hex.EncodeToString(hash[:8]), nil
	}
}

func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case Context:
		return canonicalizeMap(val)
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}
