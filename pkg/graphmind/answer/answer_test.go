package answer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

func entity(id, typ string) concept.Concept {
	return concept.Concept{ID: concept.ID(id), Kind: concept.KindEntity, Type: typ}
}

var (
	alice     = entity("alice", "person")
	bob       = entity("bob", "person")
	cambridge = entity("cambridge", "city")
	london    = entity("london", "city")
)

func TestSetCollapsesDuplicates(t *testing.T) {
	s := NewSet(Answer{"x": alice}, Answer{"x": alice}, Answer{"x": bob})
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Add(Answer{"x": bob}))
	assert.True(t, s.Contains(Answer{"x": alice}))
	assert.Equal(t, []pattern.Variable{"x"}, s.Vars())
}

func TestJoinOnSharedVariables(t *testing.T) {
	lives := NewSet(
		Answer{"p": alice, "c": cambridge},
		Answer{"p": bob, "c": london},
	)
	knows := NewSet(
		Answer{"p": alice, "q": bob},
		Answer{"p": entity("carol", "person"), "q": alice},
	)

	got := lives.Join(knows)
	want := []Answer{{"c": cambridge, "p": alice, "q": bob}}
	if diff := cmp.Diff(want, got.Answers()); diff != "" {
		t.Errorf("Join() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 2, Unit().Join(lives).Len())
	assert.Equal(t, 0, lives.Join(NewSet()).Len())
}

func TestJoinWithoutSharedVariablesIsCrossProduct(t *testing.T) {
	people := NewSet(Answer{"p": alice}, Answer{"p": bob})
	cities := NewSet(Answer{"c": cambridge}, Answer{"c": london})
	assert.Equal(t, 4, people.Join(cities).Len())
}

func TestUnionIntersectProject(t *testing.T) {
	a := NewSet(Answer{"x": alice, "y": cambridge}, Answer{"x": bob, "y": cambridge})
	b := NewSet(Answer{"x": bob, "y": cambridge}, Answer{"x": bob, "y": london})

	assert.Equal(t, 3, a.Union(b).Len())
	assert.True(t, a.Intersect(b).Equal(NewSet(Answer{"x": bob, "y": cambridge})))

	proj := a.Union(b).Project([]pattern.Variable{"y"})
	assert.True(t, proj.Equal(NewSet(Answer{"y": cambridge}, Answer{"y": london})))
	assert.True(t, a.Union(b).ContainsAll(a))
}

func TestApplyMovesCapturedVariables(t *testing.T) {
	a := Answer{"x": alice, "y": bob}
	got := a.Apply(pattern.Unifier{"x": "y"})
	assert.Equal(t, Answer{"y": alice, "_y1": bob}, got)

	swapped := a.Apply(pattern.Unifier{"x": "y", "y": "x"})
	assert.Equal(t, Answer{"x": bob, "y": alice}, swapped)
}

func TestMerge(t *testing.T) {
	m, ok := Answer{"x": alice}.Merge(Answer{"x": alice, "y": bob})
	require.True(t, ok)
	assert.Equal(t, Answer{"x": alice, "y": bob}, m)

	_, ok = Answer{"x": alice}.Merge(Answer{"x": bob})
	assert.False(t, ok)
}

func TestEquivalentToIgnoresVariableNames(t *testing.T) {
	a := NewSet(Answer{"x": alice, "y": cambridge})
	b := NewSet(Answer{"p": alice, "q": cambridge})
	c := NewSet(Answer{"p": cambridge, "q": alice})

	assert.True(t, a.EquivalentTo(b))
	assert.False(t, a.Equal(b))
	assert.False(t, a.EquivalentTo(c))
}

func TestAnswersAreSorted(t *testing.T) {
	s := NewSet(Answer{"x": bob}, Answer{"x": alice})
	got := s.Answers()
	require.Len(t, got, 2)
	assert.Equal(t, alice, got[0]["x"])
	assert.Equal(t, "[{$x=person:alice} {$x=person:bob}]", s.String())
}
