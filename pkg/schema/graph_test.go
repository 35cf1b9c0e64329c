package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/schemagraph/pkg/kv/memstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), memstore.New())
	require.NoError(t, err)
	return s
}

func TestOpenBootstrapsRoots(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(false)
	require.NoError(t, err)

	root, err := g.Root(EntityType)
	require.NoError(t, err)
	label, err := root.Label()
	require.NoError(t, err)
	require.Equal(t, RootEntityLabel, label)
	require.True(t, root.IsRoot())
}

func TestCreateTypeThenRollbackLeavesStoreUntouched(t *testing.T) {
	store := openTestStore(t)

	g, err := store.Begin(true)
	require.NoError(t, err)
	_, err = g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.Rollback())

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	_, err = fresh.GetType(EntityType, "person", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTypeCommitPersists(t *testing.T) {
	store := openTestStore(t)

	g, err := store.Begin(true)
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.Commit(context.Background()))

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	found, err := fresh.GetType(EntityType, "person", "")
	require.NoError(t, err)
	require.Equal(t, person.ID(), found.ID())

	root, err := fresh.Root(EntityType)
	require.NoError(t, err)
	super, err := fresh.Supertype(found)
	require.NoError(t, err)
	require.Equal(t, root.ID(), super.ID())
}

func TestCreateTypeDuplicateLabelRejected(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	_, err = g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	_, err = g.CreateType(EntityType, "person", "")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSetLabelRenamesAndUpdatesIndex(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, person.SetLabel("human"))
	require.NoError(t, g.Commit(context.Background()))

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	_, err = fresh.GetType(EntityType, "person", "")
	require.ErrorIs(t, err, ErrNotFound)

	found, err := fresh.GetType(EntityType, "human", "")
	require.NoError(t, err)
	require.Equal(t, person.ID(), found.ID())
}

func TestSetLabelOnRelationCascadesRoleScope(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	employment, err := g.CreateType(RelationType, "employment", "")
	require.NoError(t, err)
	employee, err := g.SetRelates(employment, "employee", "")
	require.NoError(t, err)

	require.NoError(t, employment.SetLabel("job"))

	scope, err := employee.Scope()
	require.NoError(t, err)
	require.Equal(t, "job", scope)

	require.NoError(t, g.Commit(context.Background()))

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	role, err := fresh.GetType(RoleType, "employee", "job")
	require.NoError(t, err)
	require.Equal(t, employee.ID(), role.ID())
}

func TestRootTypeMutationRejected(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	root, err := g.Root(EntityType)
	require.NoError(t, err)
	require.ErrorIs(t, root.SetLabel("nope"), ErrRootTypeMutation)
	require.ErrorIs(t, root.SetAbstract(true), ErrRootTypeMutation)
	require.ErrorIs(t, g.DeleteType(root), ErrRootTypeMutation)
}

func TestSetOwnsAndOwnsClosureIncludesInherited(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))

	student, err := g.CreateType(EntityType, "student", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(student, person))

	owned, err := g.Owns(student)
	require.NoError(t, err)
	require.Contains(t, owned, name.ID())
}

func TestSetOwnsOverrideHidesGenericAttribute(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	fullName, err := g.CreateType(AttributeType, "full-name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))

	employee, err := g.CreateType(EntityType, "employee", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(employee, person))
	require.NoError(t, g.SetOwns(employee, fullName, false, name.ID()))

	owned, err := g.Owns(employee)
	require.NoError(t, err)
	require.Contains(t, owned, fullName.ID())
	require.NotContains(t, owned, name.ID())
}

func TestDeleteTypeRemovesItsEdges(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))
	require.NoError(t, g.DeleteType(person))
	owned, err := g.Owns(person)
	require.NoError(t, err)
	require.Empty(t, owned)
	require.NoError(t, g.Commit(context.Background()))

	fresh, err := store.Begin(false)
	require.NoError(t, err)
	_, err = fresh.GetType(EntityType, "person", "")
	require.ErrorIs(t, err, ErrNotFound)
}
