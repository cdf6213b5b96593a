package rule

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
		{Label: "person", Kind: concept.KindEntity},
		{Label: "nickname", Kind: concept.KindResource},
		{Label: "name", Kind: concept.KindResource},
		{Label: "located-in", Kind: concept.KindRelation, Roles: []string{"part", "whole"}},
		{Label: "inside-border", Kind: concept.KindRelation, Super: "located-in", Roles: []string{"part", "whole"}},
		{Label: "resides", Kind: concept.KindRelation, Roles: []string{"resident", "residence"}},
	} {
		require.NoError(t, s.Put(typ))
	}
	return s
}

func transitive() InferenceRule {
	return InferenceRule{
		Name: "located-in-transitive",
		Body: pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("located-in", "part", "x", "whole", "y"),
			pattern.RolesRel("located-in", "part", "y", "whole", "z"),
		}),
		Head: pattern.RolesRel("located-in", "part", "x", "whole", "z"),
	}
}

func nickname() InferenceRule {
	return InferenceRule{
		Name: "name-is-nickname",
		Body: pattern.MustNew([]pattern.Atom{pattern.Has("p", "name", "n")}),
		Head: pattern.Has("p", "nickname", "n"),
	}
}

func TestValidate(t *testing.T) {
	s := geoSchema(t)
	require.NoError(t, transitive().Validate(s))
	require.NoError(t, nickname().Validate(s))

	body := pattern.MustNew([]pattern.Atom{pattern.RolesRel("located-in", "part", "x", "whole", "y")})
	tests := []struct {
		name string
		rule InferenceRule
	}{
		{"no name", InferenceRule{Body: body, Head: pattern.RolesRel("located-in", "part", "x", "whole", "y")}},
		{"no body", InferenceRule{Name: "r", Head: pattern.RolesRel("located-in", "part", "x", "whole", "y")}},
		{"isa head", InferenceRule{Name: "r", Body: body, Head: pattern.Isa("x", "place")}},
		{"untyped head", InferenceRule{Name: "r", Body: body, Head: pattern.Rel("", "x", "y")}},
		{"unknown head type", InferenceRule{Name: "r", Body: body, Head: pattern.Rel("borders", "x", "y")}},
		{"kind mismatch", InferenceRule{Name: "r", Body: body, Head: pattern.Has("x", "located-in", "y")}},
		{"unbound head variable", InferenceRule{Name: "r", Body: body, Head: pattern.RolesRel("located-in", "part", "x", "whole", "w")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate(s)
			require.Error(t, err)
			assert.ErrorIs(t, err, internalerr.ErrRuleLoad)
			var rle *internalerr.RuleLoadError
			require.True(t, errors.As(err, &rle))
			assert.Equal(t, tt.rule.Name, rle.Rule)
		})
	}
}

func TestValidateDisjunctiveBody(t *testing.T) {
	s := geoSchema(t)
	body := pattern.MustNew(
		[]pattern.Atom{pattern.Isa("x", "place")},
		pattern.Or(
			pattern.Branch([]pattern.Atom{pattern.RolesRel("located-in", "part", "x", "whole", "y")}),
			pattern.Branch([]pattern.Atom{pattern.RolesRel("located-in", "part", "x", "whole", "y"), pattern.Isa("z", "place")}),
		),
	)
	ok := InferenceRule{Name: "either", Body: body, Head: pattern.RolesRel("located-in", "part", "x", "whole", "y")}
	assert.NoError(t, ok.Validate(s))

	// z is bound by only one branch
	partial := InferenceRule{Name: "one-branch", Body: body, Head: pattern.RolesRel("located-in", "part", "x", "whole", "z")}
	assert.ErrorIs(t, partial.Validate(s), internalerr.ErrRuleLoad)
}

func TestNewIndex(t *testing.T) {
	s := geoSchema(t)
	idx, err := NewIndex([]InferenceRule{transitive(), nickname()}, s)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, "located-in-transitive", idx.Rules()[0].Name)

	r, ok := idx.Rule("name-is-nickname")
	require.True(t, ok)
	assert.Equal(t, pattern.KindResource, r.Head.Kind)
	_, ok = idx.Rule("missing")
	assert.False(t, ok)

	_, err = NewIndex([]InferenceRule{transitive(), transitive()}, s)
	assert.ErrorIs(t, err, internalerr.ErrRuleLoad)

	bad := transitive()
	bad.Head.Type = "borders"
	_, err = NewIndex([]InferenceRule{bad}, s)
	assert.ErrorIs(t, err, internalerr.ErrRuleLoad)
}

func TestNewIndexRejectsRestatedRules(t *testing.T) {
	s := geoSchema(t)
	renamed := InferenceRule{
		Name: "located-in-chain",
		Body: pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("located-in", "part", "a", "whole", "b"),
			pattern.RolesRel("located-in", "part", "b", "whole", "c"),
		}),
		Head: pattern.RolesRel("located-in", "part", "a", "whole", "c"),
	}
	_, err := NewIndex([]InferenceRule{transitive(), renamed}, s)
	require.Error(t, err)
	var rle *internalerr.RuleLoadError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "located-in-chain", rle.Rule)
	assert.Contains(t, rle.Reason, "located-in-transitive")

	// same shape, different head: x to y instead of x to z
	shortcut := renamed
	shortcut.Name = "located-in-shortcut"
	shortcut.Head = pattern.RolesRel("located-in", "part", "a", "whole", "b")
	_, err = NewIndex([]InferenceRule{transitive(), shortcut}, s)
	assert.NoError(t, err)

	// same shape, different literal
	alice := InferenceRule{
		Name: "alice-nickname",
		Body: pattern.MustNew(pattern.Conj(
			[]pattern.Atom{pattern.Has("p", "name", "n")},
			[]pattern.Atom{pattern.ID("p", "alice")},
		)),
		Head: pattern.Has("p", "nickname", "n"),
	}
	bob := alice
	bob.Name = "bob-nickname"
	bob.Head = pattern.Has("q", "nickname", "m")
	bob.Body = pattern.MustNew(pattern.Conj(
		[]pattern.Atom{pattern.Has("q", "name", "m")},
		[]pattern.Atom{pattern.ID("q", "bob")},
	))
	_, err = NewIndex([]InferenceRule{alice, bob}, s)
	assert.NoError(t, err)

	bob.Body = pattern.MustNew(pattern.Conj(
		[]pattern.Atom{pattern.Has("q", "name", "m")},
		[]pattern.Atom{pattern.ID("q", "alice")},
	))
	_, err = NewIndex([]InferenceRule{alice, bob}, s)
	assert.ErrorIs(t, err, internalerr.ErrRuleLoad)
}

func TestCandidates(t *testing.T) {
	s := geoSchema(t)
	border := InferenceRule{
		Name: "border-from-residence",
		Body: pattern.MustNew([]pattern.Atom{pattern.RolesRel("resides", "resident", "x", "residence", "y")}),
		Head: pattern.RolesRel("inside-border", "part", "x", "whole", "y"),
	}
	idx, err := NewIndex([]InferenceRule{transitive(), nickname(), border}, s)
	require.NoError(t, err)

	names := func(rs []InferenceRule) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return out
	}

	// subtype heads answer supertype atoms, not the other way round
	assert.Equal(t, []string{"border-from-residence", "located-in-transitive"},
		names(idx.Candidates(pattern.RolesRel("located-in", "part", "a", "whole", "b"))))
	assert.Equal(t, []string{"border-from-residence"},
		names(idx.Candidates(pattern.RolesRel("inside-border", "part", "a", "whole", "b"))))

	// roles may be listed in either order
	assert.Len(t, idx.Candidates(pattern.RolesRel("located-in", "whole", "b", "part", "a")), 2)
	assert.Empty(t, idx.Candidates(pattern.RolesRel("located-in", "part", "a", "part", "b")))

	// untyped atoms see every rule of their kind
	assert.Len(t, idx.Candidates(pattern.Rel("", "a", "b")), 2)
	assert.Equal(t, []string{"name-is-nickname"}, names(idx.Candidates(pattern.Has("p", "", "n"))))

	assert.Empty(t, idx.Candidates(pattern.Isa("a", "place")))
	assert.Empty(t, idx.Candidates(pattern.RolesRel("resides", "resident", "a", "residence", "b")))

	var nilIdx *Index
	assert.Nil(t, nilIdx.Candidates(pattern.Rel("", "a", "b")))
}
