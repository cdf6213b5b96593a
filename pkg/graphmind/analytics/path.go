// Package analytics runs graph computations over a store.
package analytics

import (
	"context"
	"sort"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// PathQuery asks for the shortest chain of relations between two instances.
type PathQuery struct {
	From concept.ID
	To   concept.ID
	In   []string // relation types to traverse, sub-types included; empty means all
}

// ShortestPath returns the instances on a shortest path from q.From to
// q.To, both ends included. Relations are traversed in either direction.
// ok is false when no path exists.
func ShortestPath(ctx context.Context, st store.Store, q PathQuery) (path []concept.Concept, ok bool, err error) {
	if q.From == "" {
		return nil, false, &internalerr.IllegalQueryStateError{Reason: "the source of the path is not set"}
	}
	if q.To == "" {
		return nil, false, &internalerr.IllegalQueryStateError{Reason: "the destination of the path is not set"}
	}
	from, err := instance(ctx, st, q.From)
	if err != nil {
		return nil, false, err
	}
	to, err := instance(ctx, st, q.To)
	if err != nil {
		return nil, false, err
	}
	if from.ID == to.ID {
		return []concept.Concept{from}, true, nil
	}

	types := q.In
	if len(types) == 0 {
		types = []string{""}
	}
	for _, t := range types {
		if t == "" {
			continue
		}
		if _, known := st.TypeOf(t); !known {
			return nil, false, &internalerr.IllegalQueryStateError{Reason: "unknown relation type " + t}
		}
	}

	parent := map[concept.ID]concept.Concept{from.ID: {}}
	frontier := []concept.Concept{from}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		var next []concept.Concept
		for _, cur := range frontier {
			ns, err := neighbours(ctx, st, cur, types)
			if err != nil {
				return nil, false, err
			}
			for _, n := range ns {
				if _, seen := parent[n.ID]; seen {
					continue
				}
				parent[n.ID] = cur
				if n.ID == to.ID {
					return trace(parent, from, n), true, nil
				}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return nil, false, nil
}

func instance(ctx context.Context, st store.Store, id concept.ID) (concept.Concept, error) {
	c, ok, err := st.Concept(ctx, id)
	if err != nil {
		return concept.Concept{}, err
	}
	if !ok {
		return concept.Concept{}, &internalerr.IllegalQueryStateError{Reason: "no instance with id " + string(id)}
	}
	return c, nil
}

const (
	fromVar pattern.Variable = "from"
	toVar   pattern.Variable = "to"
)

// neighbours returns the role players sharing a relation with c, ordered by ID.
func neighbours(ctx context.Context, st store.Store, c concept.Concept, types []string) ([]concept.Concept, error) {
	seen := map[concept.ID]concept.Concept{}
	for _, t := range types {
		res, err := st.Lookup(ctx, pattern.Rel(t, fromVar, toVar), answer.Answer{fromVar: c})
		if err != nil {
			return nil, err
		}
		for _, a := range res.Answers() {
			if n := a[toVar]; n.ID != c.ID {
				seen[n.ID] = n
			}
		}
	}
	out := make([]concept.Concept, 0, len(seen))
	for _, n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func trace(parent map[concept.ID]concept.Concept, from, to concept.Concept) []concept.Concept {
	path := []concept.Concept{to}
	for cur := to; cur.ID != from.ID; {
		cur = parent[cur.ID]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
