// Package codec serializes action contexts to cache blobs and back.
//
// Two codecs are provided: JSON (the default) and MessagePack. Both
// round-trip every field an action can store, decoding integers as int64
// and nested objects as map[string]any. Malformed or foreign blobs fail
// loudly with ErrDeserialization rather than yielding an empty context.
package codec
