// Package codec provides bit-exact encoding and decoding of the vertex,
// edge, property, and label-index keys the schema graph persists to a
// key-value backing store (see pkg/kv).
//
// Key Structure:
//   - Vertex key:   version + 0x01 + encoding + big-endian id (8 bytes)
//   - Edge key:     vertex-key(from) + direction + edge-encoding + vertex-key(to)
//   - Property key: vertex-key + property-tag
//   - Index key:    version + 0x04 + encoding + label + 0x00 + scope
//
// All integer fields are big-endian, so byte-lexicographic order on an
// encoded key equals numeric order on the id it carries. That is what
// lets pkg/kv's Scan/Seek return already-sorted vertex and edge
// streams: the codec does the ordering work once, at encode time,
// instead of every reader re-sorting.
//
// The codec is total and injective: Decode(Encode(x)) == x for every
// well-formed x, and Decode rejects anything else with ErrMalformedKey
// or ErrUnsupportedSchemaVersion rather than guessing.
package codec

import (
	"encoding/binary"
)

// SchemaVersion is the one-byte version stamped at the front of every
// persisted key. Bumping it is how a future on-disk format change
// would make old readers fail fast instead of misinterpreting bytes.
const SchemaVersion byte = 1

// Key-shape prefix bytes. An edge key needs no shape byte of its own:
// it is built entirely out of two vertex keys (each already carrying
// prefixVertex) plus a direction and edge-encoding byte in between, so
// it can never be mistaken for a bare vertex or index key of any
// length.
const (
	prefixVertex byte = 0x01
	prefixIndex  byte = 0x04
)

// Direction distinguishes an edge record stored at its "from" endpoint
// (Out) from the mirror record stored at its "to" endpoint (In).
type Direction byte

const (
	Out Direction = 0x01
	In  Direction = 0x02
)

// Encoding tags the kind of a type vertex.
type Encoding byte

const (
	EntityType    Encoding = 0x01
	RelationType  Encoding = 0x02
	AttributeType Encoding = 0x03
	RoleType      Encoding = 0x04
	ThingRoot     Encoding = 0x05
)

// String renders an Encoding for logs and error messages.
func (e Encoding) String() string {
	switch e {
	case EntityType:
		return "entity-type"
	case RelationType:
		return "relation-type"
	case AttributeType:
		return "attribute-type"
	case RoleType:
		return "role-type"
	case ThingRoot:
		return "thing-root"
	default:
		return "unknown-encoding"
	}
}

func validEncoding(e Encoding) bool {
	switch e {
	case EntityType, RelationType, AttributeType, RoleType, ThingRoot:
		return true
	default:
		return false
	}
}

// EdgeEncoding tags the kind of a type edge.
type EdgeEncoding byte

const (
	Sub     EdgeEncoding = 0x01
	Owns    EdgeEncoding = 0x02
	OwnsKey EdgeEncoding = 0x03
	Plays   EdgeEncoding = 0x04
	Relates EdgeEncoding = 0x05
)

// String renders an EdgeEncoding for logs and error messages.
func (e EdgeEncoding) String() string {
	switch e {
	case Sub:
		return "SUB"
	case Owns:
		return "OWNS"
	case OwnsKey:
		return "OWNS_KEY"
	case Plays:
		return "PLAYS"
	case Relates:
		return "RELATES"
	default:
		return "UNKNOWN_EDGE"
	}
}

func validEdgeEncoding(e EdgeEncoding) bool {
	switch e {
	case Sub, Owns, OwnsKey, Plays, Relates:
		return true
	default:
		return false
	}
}

// VertexID is the compact internal identifier of a type vertex.
type VertexID uint64

// vertexKeyLen is version(1) + shape(1) + encoding(1) + id(8).
const vertexKeyLen = 1 + 1 + 1 + 8

// VertexKeyLen is the exact byte length of a bare vertex key. A scan
// bounded by VertexPrefix also matches property keys (VertexKeyLen+1)
// and edge keys (2*VertexKeyLen+2), since both extend a vertex key's
// bytes; a caller walking such a scan that wants vertex keys only
// must filter hits to this exact length before calling
// DecodeVertexKey, rather than let the mismatched length reach it as
// an error.
const VertexKeyLen = vertexKeyLen

// EncodeVertexKey produces the key a type vertex is stored under.
func EncodeVertexKey(encoding Encoding, id VertexID) []byte {
	key := make([]byte, vertexKeyLen)
	key[0] = SchemaVersion
	key[1] = prefixVertex
	key[2] = byte(encoding)
	binary.BigEndian.PutUint64(key[3:], uint64(id))
	return key
}

// DecodeVertexKey reverses EncodeVertexKey.
func DecodeVertexKey(key []byte) (Encoding, VertexID, error) {
	if len(key) != vertexKeyLen {
		return 0, 0, ErrMalformedKey
	}
	if key[0] != SchemaVersion {
		return 0, 0, ErrUnsupportedSchemaVersion
	}
	if key[1] != prefixVertex {
		return 0, 0, ErrMalformedKey
	}
	encoding := Encoding(key[2])
	if !validEncoding(encoding) {
		return 0, 0, ErrMalformedKey
	}
	id := VertexID(binary.BigEndian.Uint64(key[3:]))
	return encoding, id, nil
}

// IsVertexKey reports whether key has the vertex-key shape, without
// validating its contents or its length, so property and edge keys
// also match.
func IsVertexKey(key []byte) bool {
	return len(key) >= 2 && key[0] == SchemaVersion && key[1] == prefixVertex
}

// VertexPrefix returns the scan prefix that bounds all vertex keys of
// a single encoding, in ascending id order.
func VertexPrefix(encoding Encoding) []byte {
	return []byte{SchemaVersion, prefixVertex, byte(encoding)}
}

// EncodeEdgeKey produces the key one direction's record of an edge is
// stored under. An edge is always written twice: once under
// (from, Out, to) and once under (to, In, from), so that a scan
// originating at either endpoint observes the edge in ascending
// peer-id order without a secondary index.
func EncodeEdgeKey(fromEncoding Encoding, from VertexID, dir Direction, edge EdgeEncoding, toEncoding Encoding, to VertexID) []byte {
	fromKey := EncodeVertexKey(fromEncoding, from)
	toKey := EncodeVertexKey(toEncoding, to)
	key := make([]byte, 0, len(fromKey)+2+len(toKey))
	key = append(key, fromKey...)
	key = append(key, byte(dir), byte(edge))
	key = append(key, toKey...)
	return key
}

// DecodedEdgeKey is the fully parsed form of an edge key.
type DecodedEdgeKey struct {
	FromEncoding Encoding
	From         VertexID
	Direction    Direction
	Edge         EdgeEncoding
	ToEncoding   Encoding
	To           VertexID
}

// DecodeEdgeKey reverses EncodeEdgeKey.
func DecodeEdgeKey(key []byte) (DecodedEdgeKey, error) {
	if len(key) != vertexKeyLen+2+vertexKeyLen {
		return DecodedEdgeKey{}, ErrMalformedKey
	}
	fromEncoding, from, err := DecodeVertexKey(key[:vertexKeyLen])
	if err != nil {
		return DecodedEdgeKey{}, err
	}
	dir := Direction(key[vertexKeyLen])
	if dir != Out && dir != In {
		return DecodedEdgeKey{}, ErrMalformedKey
	}
	edgeEnc := EdgeEncoding(key[vertexKeyLen+1])
	if !validEdgeEncoding(edgeEnc) {
		return DecodedEdgeKey{}, ErrMalformedKey
	}
	toEncoding, to, err := DecodeVertexKey(key[vertexKeyLen+2:])
	if err != nil {
		return DecodedEdgeKey{}, err
	}
	return DecodedEdgeKey{
		FromEncoding: fromEncoding,
		From:         from,
		Direction:    dir,
		Edge:         edgeEnc,
		ToEncoding:   toEncoding,
		To:           to,
	}, nil
}

// EdgePrefix returns the scan prefix that bounds every edge of a given
// direction and encoding held by a single vertex's adjacency, in
// ascending peer-id order.
func EdgePrefix(fromEncoding Encoding, from VertexID, dir Direction, edge EdgeEncoding) []byte {
	fromKey := EncodeVertexKey(fromEncoding, from)
	prefix := make([]byte, 0, len(fromKey)+2)
	prefix = append(prefix, fromKey...)
	prefix = append(prefix, byte(dir), byte(edge))
	return prefix
}

// PropertyTag names a scalar property stored alongside a vertex.
type PropertyTag byte

const (
	PropertyLabel    PropertyTag = 0x01
	PropertyScope    PropertyTag = 0x02
	PropertyAbstract PropertyTag = 0x03
	PropertyValue    PropertyTag = 0x04
)

// EncodePropertyKey produces the key a single scalar vertex property
// is stored under.
func EncodePropertyKey(encoding Encoding, id VertexID, tag PropertyTag) []byte {
	vertexKey := EncodeVertexKey(encoding, id)
	key := make([]byte, 0, len(vertexKey)+1)
	key = append(key, vertexKey...)
	key = append(key, byte(tag))
	return key
}

// DecodePropertyKey reverses EncodePropertyKey.
func DecodePropertyKey(key []byte) (Encoding, VertexID, PropertyTag, error) {
	if len(key) != vertexKeyLen+1 {
		return 0, 0, 0, ErrMalformedKey
	}
	encoding, id, err := DecodeVertexKey(key[:vertexKeyLen])
	if err != nil {
		return 0, 0, 0, err
	}
	return encoding, id, PropertyTag(key[vertexKeyLen]), nil
}

// EncodeIndexKey produces the key the label->id index entry for
// (encoding, label, scope) is stored under. scope is empty for
// non-role encodings.
func EncodeIndexKey(encoding Encoding, label, scope string) []byte {
	key := make([]byte, 0, 3+len(label)+1+len(scope))
	key = append(key, SchemaVersion, prefixIndex, byte(encoding))
	key = append(key, label...)
	key = append(key, 0x00)
	key = append(key, scope...)
	return key
}

// DecodeIndexKey reverses EncodeIndexKey.
func DecodeIndexKey(key []byte) (encoding Encoding, label, scope string, err error) {
	if len(key) < 3 {
		return 0, "", "", ErrMalformedKey
	}
	if key[0] != SchemaVersion {
		return 0, "", "", ErrUnsupportedSchemaVersion
	}
	if key[1] != prefixIndex {
		return 0, "", "", ErrMalformedKey
	}
	enc := Encoding(key[2])
	if !validEncoding(enc) {
		return 0, "", "", ErrMalformedKey
	}
	rest := key[3:]
	sep := -1
	for i, b := range rest {
		if b == 0x00 {
			sep = i
			break
		}
	}
	if sep < 0 {
		return 0, "", "", ErrMalformedKey
	}
	return enc, string(rest[:sep]), string(rest[sep+1:]), nil
}

// IndexPrefix returns the scan prefix bounding every index entry for a
// single encoding, in ascending label order.
func IndexPrefix(encoding Encoding) []byte {
	return []byte{SchemaVersion, prefixIndex, byte(encoding)}
}
