package unify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

func geoSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	for _, typ := range []schema.Type{
		{Label: "place", Kind: concept.KindEntity},
		{Label: "city", Kind: concept.KindEntity, Super: "place"},
		{Label: "person", Kind: concept.KindEntity},
		{Label: "located-in", Kind: concept.KindRelation, Roles: []string{"part", "whole"}},
	} {
		require.NoError(t, s.Put(typ))
	}
	return s
}

func TestUnifyRenamesChildOntoParent(t *testing.T) {
	u, err := Unify(pattern.Rel("", "a", "b"), pattern.Rel("", "x", "y"), nil)
	require.NoError(t, err)
	assert.Equal(t, pattern.Unifier{"a": "x", "b": "y"}, u)
}

func TestUnifyPrefersKeepingUserNames(t *testing.T) {
	u, err := Unify(pattern.Rel("knows", "x", "y"), pattern.Rel("knows", "y", "x"), nil)
	require.NoError(t, err)
	assert.Empty(t, u, "the swapped orientation is the identity")
}

func TestUnifyOrderedRoles(t *testing.T) {
	child := pattern.RolesRel("located-in", "part", "a", "whole", "b")

	u, err := Unify(child, pattern.RolesRel("located-in", "whole", "y", "part", "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, pattern.Unifier{"a": "x", "b": "y"}, u)

	_, err = Unify(child, pattern.RolesRel("located-in", "resident", "x", "residence", "y"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrUnification)
	var ue *internalerr.UnificationError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "role mismatch", ue.Reason)
}

func TestUnifyChecksKindsAndTypes(t *testing.T) {
	s := geoSchema(t)

	_, err := Unify(pattern.Isa("x", "city"), pattern.Rel("", "x", "y"), s)
	assert.ErrorIs(t, err, internalerr.ErrUnification)

	u, err := Unify(pattern.Isa("a", "city"), pattern.Isa("x", "place"), s)
	require.NoError(t, err)
	assert.Equal(t, pattern.Unifier{"a": "x"}, u)

	_, err = Unify(pattern.Isa("a", "city"), pattern.Isa("x", "person"), s)
	assert.ErrorIs(t, err, internalerr.ErrUnification)

	_, err = Unify(pattern.Isa("a", "city"), pattern.Isa("x", "place"), nil)
	assert.ErrorIs(t, err, internalerr.ErrUnification, "without a schema types must match exactly")
}

func TestUnifyRejectsFoldingOntoSelfReference(t *testing.T) {
	_, err := Unify(pattern.Rel("", "a", "a"), pattern.Rel("", "x", "y"), nil)
	assert.ErrorIs(t, err, internalerr.ErrUnification)

	u, err := Unify(pattern.Rel("", "a", "b"), pattern.Rel("", "x", "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, pattern.Unifier{"a": "x", "b": "x"}, u)
}

func TestAllReturnsBothOrientations(t *testing.T) {
	all, err := All(pattern.Rel("knows", "a", "b"), pattern.Rel("knows", "x", "y"), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []pattern.Unifier{
		{"a": "x", "b": "y"},
		{"a": "y", "b": "x"},
	}, all)

	all, err = All(pattern.RolesRel("located-in", "part", "a", "whole", "b"),
		pattern.RolesRel("located-in", "part", "x", "whole", "y"), nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSets(t *testing.T) {
	child := []pattern.Atom{pattern.Isa("a", "person"), pattern.Rel("knows", "a", "b")}
	parent := []pattern.Atom{pattern.Rel("knows", "x", "y"), pattern.Isa("x", "person")}

	u, err := Sets(child, parent, nil)
	require.NoError(t, err)
	assert.Equal(t, pattern.Unifier{"a": "x", "b": "y"}, u)

	_, err = Sets(child, parent[:1], nil)
	assert.ErrorIs(t, err, internalerr.ErrUnification)

	_, err = Sets(
		[]pattern.Atom{pattern.Isa("a", "person"), pattern.Isa("b", "person")},
		[]pattern.Atom{pattern.Isa("x", "person"), pattern.Isa("x", "person")},
		nil)
	assert.ErrorIs(t, err, internalerr.ErrUnification, "two child variables cannot fold onto one")
}
