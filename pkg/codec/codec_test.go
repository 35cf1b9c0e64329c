package codec

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexKeyRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		encoding Encoding
		id       VertexID
	}{
		{"entity-zero", EntityType, 0},
		{"relation-small", RelationType, 7},
		{"attribute-large", AttributeType, 1 << 40},
		{"role", RoleType, 42},
		{"thing-root", ThingRoot, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := EncodeVertexKey(tc.encoding, tc.id)
			gotEnc, gotID, err := DecodeVertexKey(key)
			require.NoError(t, err)
			assert.Equal(t, tc.encoding, gotEnc)
			assert.Equal(t, tc.id, gotID)
		})
	}
}

func TestVertexKeyOrdersById(t *testing.T) {
	ids := []VertexID{9, 2, 7, 5, 3}
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = EncodeVertexKey(EntityType, id)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	want := []VertexID{2, 3, 5, 7, 9}
	for i, key := range keys {
		_, id, err := DecodeVertexKey(key)
		require.NoError(t, err)
		assert.Equal(t, want[i], id)
	}
}

func TestDecodeVertexKeyRejectsMalformed(t *testing.T) {
	_, _, err := DecodeVertexKey([]byte{SchemaVersion, prefixVertex, byte(EntityType)})
	assert.ErrorIs(t, err, ErrMalformedKey)

	_, _, err = DecodeVertexKey([]byte{SchemaVersion, 0x09, byte(EntityType), 0, 0, 0, 0, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrMalformedKey)

	_, _, err = DecodeVertexKey([]byte{SchemaVersion, prefixVertex, 0xFF, 0, 0, 0, 0, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestDecodeVertexKeyRejectsUnsupportedVersion(t *testing.T) {
	key := EncodeVertexKey(EntityType, 5)
	key[0] = SchemaVersion + 1
	_, _, err := DecodeVertexKey(key)
	assert.ErrorIs(t, err, ErrUnsupportedSchemaVersion)
}

func TestEdgeKeyRoundTrip(t *testing.T) {
	key := EncodeEdgeKey(RelationType, 3, Out, Relates, RoleType, 9)
	decoded, err := DecodeEdgeKey(key)
	require.NoError(t, err)

	assert.Equal(t, RelationType, decoded.FromEncoding)
	assert.Equal(t, VertexID(3), decoded.From)
	assert.Equal(t, Out, decoded.Direction)
	assert.Equal(t, Relates, decoded.Edge)
	assert.Equal(t, RoleType, decoded.ToEncoding)
	assert.Equal(t, VertexID(9), decoded.To)
}

func TestEdgeKeyMirrorsAreDistinctAndOrdered(t *testing.T) {
	out := EncodeEdgeKey(EntityType, 1, Out, Sub, EntityType, 2)
	in := EncodeEdgeKey(EntityType, 2, In, Sub, EntityType, 1)
	assert.False(t, bytes.Equal(out, in), "mirror records must not collide")

	peers := []VertexID{5, 2, 9, 7, 3}
	keys := make([][]byte, len(peers))
	for i, p := range peers {
		keys[i] = EncodeEdgeKey(EntityType, 1, Out, Sub, EntityType, p)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	want := []VertexID{2, 3, 5, 7, 9}
	for i, key := range keys {
		decoded, err := DecodeEdgeKey(key)
		require.NoError(t, err)
		assert.Equal(t, want[i], decoded.To)
	}
}

func TestEdgePrefixBoundsScan(t *testing.T) {
	prefix := EdgePrefix(EntityType, 1, Out, Sub)
	inside := EncodeEdgeKey(EntityType, 1, Out, Sub, EntityType, 99)
	otherEncoding := EncodeEdgeKey(EntityType, 1, Out, Plays, RoleType, 99)
	otherDirection := EncodeEdgeKey(EntityType, 1, In, Sub, EntityType, 99)

	assert.True(t, bytes.HasPrefix(inside, prefix))
	assert.False(t, bytes.HasPrefix(otherEncoding, prefix))
	assert.False(t, bytes.HasPrefix(otherDirection, prefix))
}

func TestPropertyKeyRoundTrip(t *testing.T) {
	key := EncodePropertyKey(AttributeType, 4, PropertyValue)
	encoding, id, tag, err := DecodePropertyKey(key)
	require.NoError(t, err)
	assert.Equal(t, AttributeType, encoding)
	assert.Equal(t, VertexID(4), id)
	assert.Equal(t, PropertyValue, tag)
}

func TestIndexKeyRoundTrip(t *testing.T) {
	key := EncodeIndexKey(RoleType, "spouse", "marriage")
	encoding, label, scope, err := DecodeIndexKey(key)
	require.NoError(t, err)
	assert.Equal(t, RoleType, encoding)
	assert.Equal(t, "spouse", label)
	assert.Equal(t, "marriage", scope)
}

func TestIndexKeyEmptyScope(t *testing.T) {
	key := EncodeIndexKey(EntityType, "person", "")
	encoding, label, scope, err := DecodeIndexKey(key)
	require.NoError(t, err)
	assert.Equal(t, EntityType, encoding)
	assert.Equal(t, "person", label)
	assert.Equal(t, "", scope)
}

func TestDecodeIndexKeyRejectsMissingSeparator(t *testing.T) {
	key := []byte{SchemaVersion, prefixIndex, byte(EntityType)}
	key = append(key, "person"...)
	_, _, _, err := DecodeIndexKey(key)
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestKeyShapesDoNotCollide(t *testing.T) {
	vertex := EncodeVertexKey(EntityType, 1)
	index := EncodeIndexKey(EntityType, "person", "")
	edge := EncodeEdgeKey(EntityType, 1, Out, Sub, EntityType, 2)
	prop := EncodePropertyKey(EntityType, 1, PropertyLabel)

	assert.True(t, IsVertexKey(vertex))
	assert.False(t, IsVertexKey(index))
	assert.True(t, IsVertexKey(prop), "property keys extend a vertex key")
	assert.True(t, bytes.HasPrefix(edge, VertexPrefix(EntityType)))
}
