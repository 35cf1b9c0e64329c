// Package codec encodes and decodes the byte keys the schema graph
// persists to its backing key-value store.
package codec

import "errors"

// Key errors. These are returned by the Decode* functions when a byte
// string does not round-trip to a well-formed key.
var (
	ErrMalformedKey             = errors.New("codec: malformed key")
	ErrUnsupportedSchemaVersion = errors.New("codec: unsupported schema version")
)
