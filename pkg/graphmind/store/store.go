package store

import (
	"context"
	"fmt"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

// Store is the typed graph the reasoner reads from and, when materializing,
// writes derived relations back to. Implementations must be safe for
// concurrent readers.
type Store interface {
	schema.Checker
	Close() error

	// Schema
	PutType(ctx context.Context, t schema.Type) error
	Subtypes(label string) []string

	// Instances
	PutEntity(ctx context.Context, id concept.ID, typ string) (concept.Concept, error)
	PutResource(ctx context.Context, typ string, value any) (concept.Concept, error)
	PutHas(ctx context.Context, owner, resource concept.ID) error
	Concept(ctx context.Context, id concept.ID) (concept.Concept, bool, error)

	// PersistRelation stores a binary relation instance. It is idempotent:
	// persisting an existing (type, players) pair returns the stored
	// instance with created=false.
	PersistRelation(ctx context.Context, typ string, players []RolePlayer) (c concept.Concept, created bool, err error)

	// Lookup evaluates one atom against stored facts. Variables already
	// bound in bindings restrict the result, which only binds the atom's own
	// variables. No match is an empty set, not an error.
	Lookup(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error)

	// Stats reports instance counts by kind.
	Stats(ctx context.Context) (Stats, error)
}

// RolePlayer is one end of a relation instance.
type RolePlayer struct {
	Role string
	ID   concept.ID
}

// Relation is a stored binary relation instance.
type Relation struct {
	ID      concept.ID
	Type    string
	Players [2]RolePlayer
}

// Stats holds instance counts.
type Stats struct {
	Entities  int
	Relations int
	Resources int
	Types     int
}

// RelationKey identifies a relation by content, used for idempotent
// persistence. Player order does not matter.
func RelationKey(typ string, players [2]RolePlayer) string {
	a := fmt.Sprintf("%s=%s", players[0].Role, players[0].ID)
	b := fmt.Sprintf("%s=%s", players[1].Role, players[1].ID)
	if b < a {
		a, b = b, a
	}
	return typ + "|" + a + "|" + b
}

// ResourceKey identifies a resource by type and value.
func ResourceKey(typ string, value any) string {
	return typ + "|" + concept.EncodeValue(value)
}

// ValidateRelation checks typ and players against the schema.
func ValidateRelation(types schema.Checker, typ string, players []RolePlayer) ([2]RolePlayer, error) {
	var out [2]RolePlayer
	t, ok := types.TypeOf(typ)
	if !ok {
		return out, fmt.Errorf("relation type %q: %w", typ, internalerr.ErrNotFound)
	}
	if t.Kind != concept.KindRelation {
		return out, fmt.Errorf("type %q is a %s, not a relation: %w", typ, t.Kind, internalerr.ErrInvalidInput)
	}
	if len(players) != 2 {
		return out, fmt.Errorf("relation %q needs 2 role players, got %d: %w", typ, len(players), internalerr.ErrInvalidInput)
	}
	for i, p := range players {
		if p.ID == "" {
			return out, fmt.Errorf("relation %q: role player %d without id: %w", typ, i, internalerr.ErrInvalidInput)
		}
		out[i] = p
	}
	return out, nil
}

// TypeMatches reports whether a concept of type actual satisfies a
// constraint on want, an empty want matching anything.
func TypeMatches(types schema.Checker, actual, want string) bool {
	return want == "" || types.IsSubtype(actual, want)
}

// MatchRelation returns the answers binding atom's variables to rel's role
// players, one per orientation the atom's roles allow.
func MatchRelation(types schema.Checker, atom pattern.Atom, rel Relation, players [2]concept.Concept, bindings answer.Answer) []answer.Answer {
	if !TypeMatches(types, rel.Type, atom.Type) {
		return nil
	}
	var out []answer.Answer
	try := func(i, j int) {
		if !atom.Unordered() && (rel.Players[i].Role != atom.Roles[0] || rel.Players[j].Role != atom.Roles[1]) {
			return
		}
		a := answer.Answer{}
		a[atom.Var] = players[i]
		if cur, ok := a[atom.Value]; ok && cur.ID != players[j].ID {
			return
		}
		a[atom.Value] = players[j]
		if Consistent(a, bindings) {
			out = append(out, a)
		}
	}
	try(0, 1)
	try(1, 0)
	return out
}

// MatchPredicate evaluates a predicate atom against a concept.
func MatchPredicate(atom pattern.Atom, c concept.Concept) bool {
	switch atom.Kind {
	case pattern.KindIDPredicate:
		return c.ID == atom.ID
	case pattern.KindValuePredicate:
		return c.Kind == concept.KindResource && atom.Op.Holds(c.Value, atom.Literal)
	}
	return false
}

// Consistent reports whether a agrees with every binding it shares.
func Consistent(a, bindings answer.Answer) bool {
	for v, c := range a {
		if b, ok := bindings[v]; ok && b.ID != c.ID {
			return false
		}
	}
	return true
}
