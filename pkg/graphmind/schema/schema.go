// Package schema holds the type hierarchy of a graph: labelled types, their
// kind and their single super type.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// Type is a handle on a schema type.
type Type struct {
	Label string
	Kind  concept.Kind
	Super string // empty for a root type
	Roles []string
}

// Checker answers subtype questions. Stores and the schema itself implement it.
type Checker interface {
	TypeOf(label string) (Type, bool)
	IsSubtype(sub, super string) bool
}

// Schema is a concurrency-safe type hierarchy.
type Schema struct {
	mu    sync.RWMutex
	types map[string]Type
}

// New creates an empty schema.
func New() *Schema {
	return &Schema{types: make(map[string]Type)}
}

// Put declares a type. Redeclaring a label replaces it. The super type must
// exist already and have the same kind, and the hierarchy must stay acyclic.
func (s *Schema) Put(t Type) error {
	if t.Label == "" {
		return fmt.Errorf("type label: %w", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Super != "" {
		sup, ok := s.types[t.Super]
		if !ok {
			return fmt.Errorf("type %q: super type %q: %w", t.Label, t.Super, internalerr.ErrNotFound)
		}
		if sup.Kind != t.Kind {
			return fmt.Errorf("type %q (%s) cannot extend %q (%s): %w", t.Label, t.Kind, sup.Label, sup.Kind, internalerr.ErrInvalidInput)
		}
		for cur := t.Super; cur != ""; cur = s.types[cur].Super {
			if cur == t.Label {
				return fmt.Errorf("type %q: cyclic hierarchy: %w", t.Label, internalerr.ErrInvalidInput)
			}
		}
	}
	t.Roles = append([]string(nil), t.Roles...)
	s.types[t.Label] = t
	return nil
}

// TypeOf implements Checker.
func (s *Schema) TypeOf(label string) (Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[label]
	return t, ok
}

// IsSubtype reports whether sub equals super or transitively extends it.
func (s *Schema) IsSubtype(sub, super string) bool {
	if sub == super {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for cur := s.types[sub].Super; cur != ""; cur = s.types[cur].Super {
		if cur == super {
			return true
		}
	}
	return false
}

// Subtypes returns label and every type below it, sorted.
func (s *Schema) Subtypes(label string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for l := range s.types {
		for cur := l; cur != ""; cur = s.types[cur].Super {
			if cur == label {
				out = append(out, l)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// All returns every type ordered so that super types precede their subtypes.
func (s *Schema) All() []Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	depth := func(t Type) int {
		d := 0
		for cur := t.Super; cur != ""; cur = s.types[cur].Super {
			d++
		}
		return d
	}
	out := make([]Type, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := depth(out[i]), depth(out[j])
		if di != dj {
			return di < dj
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Compatible reports whether two type labels can describe the same concept:
// they are equal, one is a subtype of the other, or either is empty.
func Compatible(c Checker, a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return c.IsSubtype(a, b) || c.IsSubtype(b, a)
}
