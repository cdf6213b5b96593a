package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu        sync.RWMutex
	schema    *schema.Schema
	concepts  map[concept.ID]concept.Concept
	relations map[concept.ID]store.Relation
	relByKey  map[string]concept.ID
	byPlayer  map[concept.ID][]concept.ID // concept → relations it plays in
	resByKey  map[string]concept.ID
	has       map[concept.ID][]concept.ID // owner → resources
	ownersOf  map[concept.ID][]concept.ID // resource → owners
	hasPairs  map[[2]concept.ID]bool
	byType    map[string][]concept.ID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		schema:    schema.New(),
		concepts:  make(map[concept.ID]concept.Concept),
		relations: make(map[concept.ID]store.Relation),
		relByKey:  make(map[string]concept.ID),
		byPlayer:  make(map[concept.ID][]concept.ID),
		resByKey:  make(map[string]concept.ID),
		has:       make(map[concept.ID][]concept.ID),
		ownersOf:  make(map[concept.ID][]concept.ID),
		hasPairs:  make(map[[2]concept.ID]bool),
		byType:    make(map[string][]concept.ID),
	}
}

var _ store.Store = (*Store)(nil)

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// TypeOf implements schema.Checker.
func (s *Store) TypeOf(label string) (schema.Type, bool) { return s.schema.TypeOf(label) }

// IsSubtype implements schema.Checker.
func (s *Store) IsSubtype(sub, super string) bool { return s.schema.IsSubtype(sub, super) }

// Subtypes returns label and every type below it.
func (s *Store) Subtypes(label string) []string { return s.schema.Subtypes(label) }

// PutType declares a schema type.
func (s *Store) PutType(ctx context.Context, t schema.Type) error {
	return s.schema.Put(t)
}

// PutEntity adds an entity. An empty id is replaced by a fresh one.
func (s *Store) PutEntity(ctx context.Context, id concept.ID, typ string) (concept.Concept, error) {
	if err := s.requireKind(typ, concept.KindEntity); err != nil {
		return concept.Concept{}, err
	}
	if id == "" {
		id = concept.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.concepts[id]; ok {
		if existing.Type != typ {
			return concept.Concept{}, fmt.Errorf("entity %s already has type %q: %w", id, existing.Type, internalerr.ErrDuplicate)
		}
		return existing, nil
	}
	c := concept.Concept{ID: id, Kind: concept.KindEntity, Type: typ}
	s.addConcept(c)
	return c, nil
}

// PutResource returns the resource of typ holding value, creating it once.
func (s *Store) PutResource(ctx context.Context, typ string, value any) (concept.Concept, error) {
	if err := s.requireKind(typ, concept.KindResource); err != nil {
		return concept.Concept{}, err
	}
	value = concept.NormalizeValue(value)
	key := store.ResourceKey(typ, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.resByKey[key]; ok {
		return s.concepts[id], nil
	}
	c := concept.Concept{ID: concept.NewID(), Kind: concept.KindResource, Type: typ, Value: value}
	s.addConcept(c)
	s.resByKey[key] = c.ID
	return c, nil
}

// PutHas attaches a resource to its owner. Repeated calls are no-ops.
func (s *Store) PutHas(ctx context.Context, owner, resource concept.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.concepts[owner]; !ok {
		return fmt.Errorf("owner %s: %w", owner, internalerr.ErrNotFound)
	}
	res, ok := s.concepts[resource]
	if !ok || res.Kind != concept.KindResource {
		return fmt.Errorf("resource %s: %w", resource, internalerr.ErrNotFound)
	}
	pair := [2]concept.ID{owner, resource}
	if s.hasPairs[pair] {
		return nil
	}
	s.hasPairs[pair] = true
	s.has[owner] = append(s.has[owner], resource)
	s.ownersOf[resource] = append(s.ownersOf[resource], owner)
	return nil
}

// PersistRelation implements store.Store.
func (s *Store) PersistRelation(ctx context.Context, typ string, players []store.RolePlayer) (concept.Concept, bool, error) {
	ps, err := store.ValidateRelation(s.schema, typ, players)
	if err != nil {
		return concept.Concept{}, false, err
	}
	key := store.RelationKey(typ, ps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.relByKey[key]; ok {
		return s.concepts[id], false, nil
	}
	for _, p := range ps {
		if _, ok := s.concepts[p.ID]; !ok {
			return concept.Concept{}, false, fmt.Errorf("role player %s: %w", p.ID, internalerr.ErrNotFound)
		}
	}
	c := concept.Concept{ID: concept.NewID(), Kind: concept.KindRelation, Type: typ}
	s.addConcept(c)
	s.relations[c.ID] = store.Relation{ID: c.ID, Type: typ, Players: ps}
	s.relByKey[key] = c.ID
	s.byPlayer[ps[0].ID] = append(s.byPlayer[ps[0].ID], c.ID)
	if ps[1].ID != ps[0].ID {
		s.byPlayer[ps[1].ID] = append(s.byPlayer[ps[1].ID], c.ID)
	}
	return c, true, nil
}

// Concept returns a concept by ID.
func (s *Store) Concept(ctx context.Context, id concept.ID) (concept.Concept, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[id]
	return c, ok, nil
}

// Stats implements store.Store.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := store.Stats{Types: len(s.schema.All())}
	for _, c := range s.concepts {
		switch c.Kind {
		case concept.KindEntity:
			st.Entities++
		case concept.KindRelation:
			st.Relations++
		case concept.KindResource:
			st.Resources++
		}
	}
	return st, nil
}

// Lookup implements store.Store.
func (s *Store) Lookup(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := answer.NewSet()
	switch atom.Kind {
	case pattern.KindIsa:
		for _, c := range s.candidates(atom.Var, bindings, atom.Type) {
			out.Add(answer.Answer{atom.Var: c})
		}
	case pattern.KindRelation:
		for _, id := range s.relationCandidates(atom, bindings) {
			rel := s.relations[id]
			players := [2]concept.Concept{s.concepts[rel.Players[0].ID], s.concepts[rel.Players[1].ID]}
			for _, a := range store.MatchRelation(s.schema, atom, rel, players, bindings) {
				out.Add(a)
			}
		}
	case pattern.KindResource:
		s.lookupResource(atom, bindings, out)
	case pattern.KindIDPredicate, pattern.KindValuePredicate:
		for _, c := range s.candidates(atom.Var, bindings, "") {
			if store.MatchPredicate(atom, c) {
				out.Add(answer.Answer{atom.Var: c})
			}
		}
	default:
		return nil, fmt.Errorf("lookup %s: %w", atom, internalerr.ErrInvalidInput)
	}
	return out, nil
}

func (s *Store) lookupResource(atom pattern.Atom, bindings answer.Answer, out *answer.Set) {
	emit := func(owner, res concept.ID) {
		r := s.concepts[res]
		if !store.TypeMatches(s.schema, r.Type, atom.Type) {
			return
		}
		a := answer.Answer{atom.Var: s.concepts[owner]}
		if atom.Value == atom.Var && owner != res {
			return
		}
		a[atom.Value] = r
		if store.Consistent(a, bindings) {
			out.Add(a)
		}
	}
	if o, ok := bindings[atom.Var]; ok {
		for _, res := range s.has[o.ID] {
			emit(o.ID, res)
		}
		return
	}
	if r, ok := bindings[atom.Value]; ok {
		for _, owner := range s.ownersOf[r.ID] {
			emit(owner, r.ID)
		}
		return
	}
	for pair := range s.hasPairs {
		emit(pair[0], pair[1])
	}
}

// candidates returns the concepts v may bind to: the bound concept if any,
// otherwise every instance of typ (all concepts when typ is empty).
func (s *Store) candidates(v pattern.Variable, bindings answer.Answer, typ string) []concept.Concept {
	if b, ok := bindings[v]; ok {
		c, exists := s.concepts[b.ID]
		if !exists || !store.TypeMatches(s.schema, c.Type, typ) {
			return nil
		}
		return []concept.Concept{c}
	}
	var out []concept.Concept
	if typ == "" {
		for _, c := range s.concepts {
			out = append(out, c)
		}
		return out
	}
	for _, t := range s.schema.Subtypes(typ) {
		for _, id := range s.byType[t] {
			out = append(out, s.concepts[id])
		}
	}
	return out
}

func (s *Store) relationCandidates(atom pattern.Atom, bindings answer.Answer) []concept.ID {
	if c, ok := bindings[atom.Var]; ok {
		return s.byPlayer[c.ID]
	}
	if c, ok := bindings[atom.Value]; ok {
		return s.byPlayer[c.ID]
	}
	if atom.Type != "" {
		var out []concept.ID
		for _, t := range s.schema.Subtypes(atom.Type) {
			out = append(out, s.byType[t]...)
		}
		return out
	}
	out := make([]concept.ID, 0, len(s.relations))
	for id := range s.relations {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) addConcept(c concept.Concept) {
	s.concepts[c.ID] = c
	s.byType[c.Type] = append(s.byType[c.Type], c.ID)
}

func (s *Store) requireKind(typ string, kind concept.Kind) error {
	t, ok := s.schema.TypeOf(typ)
	if !ok {
		return fmt.Errorf("type %q: %w", typ, internalerr.ErrNotFound)
	}
	if t.Kind != kind {
		return fmt.Errorf("type %q is a %s, not a %s: %w", typ, t.Kind, kind, internalerr.ErrInvalidInput)
	}
	return nil
}
