package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/store/memstore"
)

const graph = `
types:
  - {label: place, kind: entity}
  - {label: city, kind: entity, super: place}
  - {label: country, kind: entity, super: place}
  - {label: continent, kind: entity, super: place}
  - {label: person, kind: entity}
  - {label: located-in, kind: relation, roles: [part, whole]}
  - {label: resides, kind: relation, roles: [resident, residence]}
  - {label: knows, kind: relation}
entities:
  - {id: cambridge, type: city}
  - {id: oxford, type: city}
  - {id: uk, type: country}
  - {id: europe, type: continent}
  - {id: alice, type: person}
  - {id: bob, type: person}
  - {id: carol, type: person}
relations:
  - {type: located-in, players: [{role: part, id: cambridge}, {role: whole, id: uk}]}
  - {type: located-in, players: [{role: part, id: oxford}, {role: whole, id: uk}]}
  - {type: located-in, players: [{role: part, id: uk}, {role: whole, id: europe}]}
  - {type: resides, players: [{role: resident, id: alice}, {role: residence, id: cambridge}]}
  - {type: resides, players: [{role: resident, id: bob}, {role: residence, id: oxford}]}
  - {type: knows, players: [{role: a, id: alice}, {role: b, id: bob}]}
`

func loadGraph(t *testing.T) store.Store {
	t.Helper()
	k, err := config.ParseKnowledge([]byte(graph))
	require.NoError(t, err)
	st := memstore.New()
	_, err = k.Apply(context.Background(), st)
	require.NoError(t, err)
	return st
}

func ids(path []concept.Concept) []string {
	out := make([]string, len(path))
	for i, c := range path {
		out[i] = string(c.ID)
	}
	return out
}

func TestShortestPath(t *testing.T) {
	st := loadGraph(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    PathQuery
		want []string
	}{
		{"direct relation", PathQuery{From: "alice", To: "bob"}, []string{"alice", "bob"}},
		{"restricted to some types", PathQuery{From: "alice", To: "bob", In: []string{"resides", "located-in"}},
			[]string{"alice", "cambridge", "uk", "oxford", "bob"}},
		{"against relation direction", PathQuery{From: "europe", To: "cambridge"}, []string{"europe", "uk", "cambridge"}},
		{"same instance", PathQuery{From: "uk", To: "uk"}, []string{"uk"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok, err := ShortestPath(ctx, st, tt.q)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.want, ids(path))
		})
	}
}

func TestShortestPathNotFound(t *testing.T) {
	st := loadGraph(t)

	path, ok, err := ShortestPath(context.Background(), st, PathQuery{From: "carol", To: "alice"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, path)

	_, ok, err = ShortestPath(context.Background(), st, PathQuery{From: "alice", To: "europe", In: []string{"knows"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShortestPathIllegalQueries(t *testing.T) {
	st := loadGraph(t)
	for name, q := range map[string]PathQuery{
		"no source":        {To: "alice"},
		"no destination":   {From: "alice"},
		"unknown source":   {From: "zed", To: "alice"},
		"unknown target":   {From: "alice", To: "zed"},
		"unknown relation": {From: "alice", To: "bob", In: []string{"orbits"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ShortestPath(context.Background(), st, q)
			assert.ErrorIs(t, err, internalerr.ErrIllegalQueryState)
		})
	}
}

func TestShortestPathHonoursContext(t *testing.T) {
	st := loadGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ShortestPath(ctx, st, PathQuery{From: "alice", To: "europe"})
	assert.ErrorIs(t, err, context.Canceled)
}
