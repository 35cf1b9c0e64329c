package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/schemagraph/pkg/codec"
)

func TestAdjacencyPutCreatesMirrorOnPeer(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))

	require.True(t, person.Out().Has(codec.Owns, name.ID()))
	require.True(t, name.In().Has(codec.Owns, person.ID()))
}

func TestAdjacencyIteratorSortsAscendingByPeerID(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)

	labels := []string{"z-attr", "a-attr", "m-attr"}
	var ids []VertexID
	for _, label := range labels {
		attr, err := g.CreateType(AttributeType, label, "")
		require.NoError(t, err)
		require.NoError(t, g.SetOwns(person, attr, false, 0))
		ids = append(ids, attr.ID())
	}

	it := person.Out().To(codec.Owns)
	var seen []VertexID
	for it.Next() {
		seen = append(seen, it.Peer())
	}
	require.Len(t, seen, 3)
	require.True(t, seen[0] < seen[1])
	require.True(t, seen[1] < seen[2])
}

func TestAdjacencyIteratorSeek(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)

	var ids []VertexID
	for _, label := range []string{"a", "b", "c", "d"} {
		attr, err := g.CreateType(AttributeType, label, "")
		require.NoError(t, err)
		require.NoError(t, g.SetOwns(person, attr, false, 0))
		ids = append(ids, attr.ID())
	}

	it := person.Out().To(codec.Owns)
	it.Seek(ids[2])
	require.True(t, it.Next())
	require.Equal(t, ids[2], it.Peer())
}

func TestAdjacencyRemoveClearsBothEndpoints(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))
	require.NoError(t, g.UnsetOwns(person, name))

	require.False(t, person.Out().Has(codec.Owns, name.ID()))
	require.False(t, name.In().Has(codec.Owns, person.ID()))
}

func TestAdjacencyPersistsAcrossTransactions(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))
	require.NoError(t, g.Commit(context.Background()))

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	freshPerson, err := fresh.GetType(EntityType, "person", "")
	require.NoError(t, err)
	freshName, err := fresh.GetType(AttributeType, "name", "")
	require.NoError(t, err)

	require.True(t, freshPerson.Out().Has(codec.Owns, freshName.ID()))
}

func TestEdgeIteratorToleratesConcurrentRemoval(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	age, err := g.CreateType(AttributeType, "age", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))
	require.NoError(t, g.SetOwns(person, age, false, 0))

	it := person.Out().To(codec.Owns)
	require.NoError(t, g.UnsetOwns(person, name))

	var seen []VertexID
	for it.Next() {
		seen = append(seen, it.Peer())
	}
	require.NotContains(t, seen, name.ID())
}
