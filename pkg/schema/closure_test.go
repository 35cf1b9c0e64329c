package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupertypesChainReachesRoot(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	animal, err := g.CreateType(EntityType, "animal", "")
	require.NoError(t, err)
	dog, err := g.CreateType(EntityType, "dog", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(dog, animal))

	chain, err := g.Supertypes(dog)
	require.NoError(t, err)
	require.Equal(t, []VertexID{animal.ID(), RootEntityID}, chain)
}

func TestSetSupertypeRejectingCycleIsCallerResponsibility(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	animal, err := g.CreateType(EntityType, "animal", "")
	require.NoError(t, err)
	dog, err := g.CreateType(EntityType, "dog", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(dog, animal))

	v := NewValidator(g, nil)
	err = v.ValidateSetSupertype(animal, dog)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, R1NoCycle, verr.Violations[0].Rule)
}

func TestSubtypesIncludesTransitiveDescendants(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	animal, err := g.CreateType(EntityType, "animal", "")
	require.NoError(t, err)
	dog, err := g.CreateType(EntityType, "dog", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(dog, animal))
	corgi, err := g.CreateType(EntityType, "corgi", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(corgi, dog))

	subs, err := g.Subtypes(animal)
	require.NoError(t, err)
	require.ElementsMatch(t, []VertexID{dog.ID(), corgi.ID()}, subs)
}

func TestRelatedRoleTypesInheritsFromSupertypeRelation(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	employment, err := g.CreateType(RelationType, "employment", "")
	require.NoError(t, err)
	employer, err := g.SetRelates(employment, "employer", "")
	require.NoError(t, err)
	employee, err := g.SetRelates(employment, "employee", "")
	require.NoError(t, err)

	contract, err := g.CreateType(RelationType, "contract", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(contract, employment))

	roles, err := g.RelatedRoleTypes(contract)
	require.NoError(t, err)
	require.ElementsMatch(t, []VertexID{employer.ID(), employee.ID()}, roles)
}

func TestRelatedRoleTypesOmitsOverriddenInheritedRole(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	marriage, err := g.CreateType(RelationType, "marriage", "")
	require.NoError(t, err)
	_, err = g.SetRelates(marriage, "spouse", "")
	require.NoError(t, err)

	heteroMarriage, err := g.CreateType(RelationType, "hetero-marriage", "")
	require.NoError(t, err)
	require.NoError(t, g.SetSupertype(heteroMarriage, marriage))
	husband, err := g.SetRelates(heteroMarriage, "husband", "spouse")
	require.NoError(t, err)

	roles, err := g.RelatedRoleTypes(heteroMarriage)
	require.NoError(t, err)
	require.Equal(t, []VertexID{husband.ID()}, roles)

	overridden, err := g.RelatesOverridden(heteroMarriage, husband)
	require.NoError(t, err)
	require.Equal(t, "spouse", overridden)
}

func TestOwnsClosureIsMemoizedUntilMutation(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	name, err := g.CreateType(AttributeType, "name", "")
	require.NoError(t, err)
	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, name, false, 0))

	first, err := g.Owns(person)
	require.NoError(t, err)
	require.Len(t, first, 1)

	age, err := g.CreateType(AttributeType, "age", "")
	require.NoError(t, err)
	require.NoError(t, g.SetOwns(person, age, false, 0))

	second, err := g.Owns(person)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.NoError(t, g.Commit(context.Background()))
}

func TestIsSubtypeOfSelfIsTrue(t *testing.T) {
	store := openTestStore(t)
	g, err := store.Begin(true)
	require.NoError(t, err)

	person, err := g.CreateType(EntityType, "person", "")
	require.NoError(t, err)

	ok, err := g.IsSubtypeOf(person, person)
	require.NoError(t, err)
	require.True(t, ok)
}
