// Package storetest is a conformance suite every store.Store implementation
// runs from its own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// Opener returns an empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"Schema", testSchema},
		{"Entities", testEntities},
		{"Resources", testResources},
		{"PersistRelationIdempotent", testPersistRelation},
		{"LookupIsa", testLookupIsa},
		{"LookupRelation", testLookupRelation},
		{"LookupResource", testLookupResource},
		{"LookupPredicates", testLookupPredicates},
		{"Stats", testStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := open(t)
			defer st.Close()
			tt.fn(t, st)
		})
	}
}

// Seed declares a small geography schema: place > city, country; person;
// name and age resources; located-in (part, whole) and knows (unordered).
func Seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, typ := range []schema.Type{
		{Label: "place", Kind: concept.KindEntity},
		{Label: "city", Kind: concept.KindEntity, Super: "place"},
		{Label: "country", Kind: concept.KindEntity, Super: "place"},
		{Label: "person", Kind: concept.KindEntity},
		{Label: "name", Kind: concept.KindResource},
		{Label: "age", Kind: concept.KindResource},
		{Label: "located-in", Kind: concept.KindRelation, Roles: []string{"part", "whole"}},
		{Label: "knows", Kind: concept.KindRelation},
	} {
		require.NoError(t, st.PutType(ctx, typ))
	}
	for id, typ := range map[string]string{
		"cambridge": "city",
		"paris":     "city",
		"uk":        "country",
		"alice":     "person",
		"bob":       "person",
	} {
		_, err := st.PutEntity(ctx, concept.ID(id), typ)
		require.NoError(t, err)
	}
}

func persist(t *testing.T, st store.Store, typ, roleA, a, roleB, b string) concept.Concept {
	t.Helper()
	c, _, err := st.PersistRelation(context.Background(), typ, []store.RolePlayer{
		{Role: roleA, ID: concept.ID(a)},
		{Role: roleB, ID: concept.ID(b)},
	})
	require.NoError(t, err)
	return c
}

func ids(s *answer.Set, v pattern.Variable) []string {
	var out []string
	for _, a := range s.Answers() {
		out = append(out, string(a[v].ID))
	}
	return out
}

func testSchema(t *testing.T, st store.Store) {
	Seed(t, st)
	typ, ok := st.TypeOf("located-in")
	require.True(t, ok)
	assert.Equal(t, concept.KindRelation, typ.Kind)
	assert.Equal(t, []string{"part", "whole"}, typ.Roles)

	assert.True(t, st.IsSubtype("city", "place"))
	assert.False(t, st.IsSubtype("place", "city"))
	assert.ElementsMatch(t, []string{"place", "city", "country"}, st.Subtypes("place"))

	err := st.PutType(context.Background(), schema.Type{Label: "town", Kind: concept.KindEntity, Super: "village"})
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func testEntities(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()

	c, ok, err := st.Concept(ctx, "cambridge")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "city", c.Type)
	assert.Equal(t, concept.KindEntity, c.Kind)

	_, ok, err = st.Concept(ctx, "atlantis")
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := st.PutEntity(ctx, "cambridge", "city")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	_, err = st.PutEntity(ctx, "cambridge", "country")
	assert.ErrorIs(t, err, internalerr.ErrDuplicate)

	_, err = st.PutEntity(ctx, "x", "name")
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)

	fresh, err := st.PutEntity(ctx, "", "person")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.ID)
}

func testResources(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()

	a, err := st.PutResource(ctx, "age", 30)
	require.NoError(t, err)
	b, err := st.PutResource(ctx, "age", int64(30))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID, "same type and value is one resource")
	assert.Equal(t, int64(30), a.Value)

	got, ok, err := st.Concept(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30), got.Value)

	require.NoError(t, st.PutHas(ctx, "alice", a.ID))
	require.NoError(t, st.PutHas(ctx, "alice", a.ID))
	assert.ErrorIs(t, st.PutHas(ctx, "nobody", a.ID), internalerr.ErrNotFound)
	assert.ErrorIs(t, st.PutHas(ctx, "alice", "bob"), internalerr.ErrNotFound)
}

func testPersistRelation(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()
	players := []store.RolePlayer{{Role: "part", ID: "cambridge"}, {Role: "whole", ID: "uk"}}

	first, created, err := st.PersistRelation(ctx, "located-in", players)
	require.NoError(t, err)
	assert.True(t, created)

	reversed := []store.RolePlayer{players[1], players[0]}
	second, created, err := st.PersistRelation(ctx, "located-in", reversed)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Relations)

	_, _, err = st.PersistRelation(ctx, "located-in", []store.RolePlayer{{Role: "part", ID: "atlantis"}, {Role: "whole", ID: "uk"}})
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
	_, _, err = st.PersistRelation(ctx, "city", players)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
	_, _, err = st.PersistRelation(ctx, "located-in", players[:1])
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func testLookupIsa(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()

	res, err := st.Lookup(ctx, pattern.Isa("x", "place"), answer.Answer{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cambridge", "paris", "uk"}, ids(res, "x"))

	cambridge, _, err := st.Concept(ctx, "cambridge")
	require.NoError(t, err)
	res, err = st.Lookup(ctx, pattern.Isa("x", "country"), answer.Answer{"x": cambridge})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	res, err = st.Lookup(ctx, pattern.Isa("x", "city"), answer.Answer{"x": cambridge})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
}

func testLookupRelation(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()
	persist(t, st, "located-in", "part", "cambridge", "whole", "uk")
	persist(t, st, "located-in", "part", "paris", "whole", "uk")
	persist(t, st, "knows", "a", "alice", "b", "bob")

	res, err := st.Lookup(ctx, pattern.RolesRel("located-in", "part", "x", "whole", "y"), answer.Answer{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cambridge", "paris"}, ids(res, "x"))
	assert.ElementsMatch(t, []string{"uk", "uk"}, ids(res, "y"))

	// the same facts seen from the other end
	res, err = st.Lookup(ctx, pattern.RolesRel("located-in", "whole", "y", "part", "x"), answer.Answer{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	res, err = st.Lookup(ctx, pattern.RolesRel("located-in", "whole", "x", "whole", "y"), answer.Answer{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	// unordered atoms match both orientations
	res, err = st.Lookup(ctx, pattern.Rel("knows", "x", "y"), answer.Answer{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids(res, "x"))

	alice, _, err := st.Concept(ctx, "alice")
	require.NoError(t, err)
	res, err = st.Lookup(ctx, pattern.Rel("", "x", "y"), answer.Answer{"x": alice})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids(res, "y"))
}

func testLookupResource(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()
	for owner, name := range map[string]string{"alice": "Alice", "bob": "Bob"} {
		r, err := st.PutResource(ctx, "name", name)
		require.NoError(t, err)
		require.NoError(t, st.PutHas(ctx, concept.ID(owner), r.ID))
	}
	age, err := st.PutResource(ctx, "age", 30)
	require.NoError(t, err)
	require.NoError(t, st.PutHas(ctx, "alice", age.ID))

	res, err := st.Lookup(ctx, pattern.Has("x", "name", "n"), answer.Answer{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	alice, _, err := st.Concept(ctx, "alice")
	require.NoError(t, err)
	res, err = st.Lookup(ctx, pattern.Has("x", "age", "n"), answer.Answer{"x": alice})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, int64(30), res.Answers()[0]["n"].Value)

	res, err = st.Lookup(ctx, pattern.Has("x", "name", "n"), answer.Answer{"n": age})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
}

func testLookupPredicates(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()
	for _, v := range []int{25, 30, 42} {
		_, err := st.PutResource(ctx, "age", v)
		require.NoError(t, err)
	}

	res, err := st.Lookup(ctx, pattern.ID("x", "uk"), answer.Answer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uk"}, ids(res, "x"))

	res, err = st.Lookup(ctx, pattern.Value("v", pattern.OpGt, 26), answer.Answer{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func testStats(t *testing.T, st store.Store) {
	Seed(t, st)
	ctx := context.Background()
	persist(t, st, "located-in", "part", "cambridge", "whole", "uk")
	_, err := st.PutResource(ctx, "name", "Cambridge")
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Entities: 5, Relations: 1, Resources: 1, Types: 8}, stats)
}
