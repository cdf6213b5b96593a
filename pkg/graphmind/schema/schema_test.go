package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

func TestHierarchy(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(Type{Label: "place", Kind: concept.KindEntity}))
	require.NoError(t, s.Put(Type{Label: "country", Kind: concept.KindEntity, Super: "place"}))
	require.NoError(t, s.Put(Type{Label: "city", Kind: concept.KindEntity, Super: "place"}))
	require.NoError(t, s.Put(Type{Label: "capital", Kind: concept.KindEntity, Super: "city"}))

	assert.True(t, s.IsSubtype("capital", "place"))
	assert.True(t, s.IsSubtype("city", "city"))
	assert.False(t, s.IsSubtype("country", "city"))
	assert.False(t, s.IsSubtype("unknown", "place"))

	assert.Equal(t, []string{"capital", "city"}, s.Subtypes("city"))
	assert.Empty(t, s.Subtypes("unknown"))

	var labels []string
	for _, typ := range s.All() {
		labels = append(labels, typ.Label)
	}
	assert.Equal(t, []string{"place", "city", "country", "capital"}, labels)

	assert.True(t, Compatible(s, "capital", "place"))
	assert.True(t, Compatible(s, "", "country"))
	assert.False(t, Compatible(s, "capital", "country"))
}

func TestPutRejectsBadTypes(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(Type{Label: "place", Kind: concept.KindEntity}))
	require.NoError(t, s.Put(Type{Label: "city", Kind: concept.KindEntity, Super: "place"}))

	assert.ErrorIs(t, s.Put(Type{}), internalerr.ErrInvalidInput)
	assert.ErrorIs(t, s.Put(Type{Label: "town", Kind: concept.KindEntity, Super: "village"}), internalerr.ErrNotFound)
	assert.ErrorIs(t, s.Put(Type{Label: "name", Kind: concept.KindResource, Super: "place"}), internalerr.ErrInvalidInput)
	assert.ErrorIs(t, s.Put(Type{Label: "place", Kind: concept.KindEntity, Super: "city"}), internalerr.ErrInvalidInput)
}

func TestPutCopiesRoles(t *testing.T) {
	s := New()
	roles := []string{"part", "whole"}
	require.NoError(t, s.Put(Type{Label: "located-in", Kind: concept.KindRelation, Roles: roles}))
	roles[0] = "changed"

	typ, ok := s.TypeOf("located-in")
	require.True(t, ok)
	assert.Equal(t, []string{"part", "whole"}, typ.Roles)
}
