// Package answer holds variable-to-concept mappings and the set algebra the
// reasoner combines them with.
package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

// Answer binds query variables to concepts.
type Answer map[pattern.Variable]concept.Concept

// Vars returns the bound variables, sorted.
func (a Answer) Vars() []pattern.Variable {
	out := make([]pattern.Variable, 0, len(a))
	for v := range a {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key identifies the answer by its bindings' concept IDs. Two answers with
// the same key are the same answer.
func (a Answer) Key() string {
	var b strings.Builder
	for _, v := range a.Vars() {
		b.WriteString(string(v))
		b.WriteByte('=')
		b.WriteString(string(a[v].ID))
		b.WriteByte(';')
	}
	return b.String()
}

// Clone copies the answer.
func (a Answer) Clone() Answer {
	out := make(Answer, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge joins two answers. ok is false when a shared variable is bound to
// different concepts.
func (a Answer) Merge(b Answer) (Answer, bool) {
	out := a.Clone()
	for v, c := range b {
		if cur, exists := out[v]; exists {
			if cur.ID != c.ID {
				return nil, false
			}
			continue
		}
		out[v] = c
	}
	return out, true
}

// Project keeps only the bindings of vars.
func (a Answer) Project(vars []pattern.Variable) Answer {
	out := make(Answer, len(vars))
	for _, v := range vars {
		if c, ok := a[v]; ok {
			out[v] = c
		}
	}
	return out
}

// Apply renames the answer's variables by u. A bound variable that is the
// target of a substitution but is not renamed itself moves to a fresh name.
func (a Answer) Apply(u pattern.Unifier) Answer {
	targets := u.Values()
	used := make(map[pattern.Variable]bool, len(a)+len(targets))
	for v := range a {
		used[v] = true
	}
	for v := range targets {
		used[v] = true
	}
	out := make(Answer, len(a))
	for v, c := range a {
		switch w, renamed := u[v]; {
		case renamed:
			out[w] = c
		case targets[v]:
			fresh := pattern.FreshVariable(v, used)
			used[fresh] = true
			out[fresh] = c
		default:
			out[v] = c
		}
	}
	return out
}

func (a Answer) String() string {
	parts := make([]string, 0, len(a))
	for _, v := range a.Vars() {
		parts = append(parts, fmt.Sprintf("%s=%s", v, a[v]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Set is a collection of answers with set semantics.
type Set struct {
	m map[string]Answer
}

// NewSet builds a set from answers, collapsing duplicates.
func NewSet(answers ...Answer) *Set {
	s := &Set{m: make(map[string]Answer, len(answers))}
	for _, a := range answers {
		s.Add(a)
	}
	return s
}

// Unit is the set holding one empty answer, the identity of Join.
func Unit() *Set {
	return NewSet(Answer{})
}

// Add inserts a copy of a and reports whether it was new.
func (s *Set) Add(a Answer) bool {
	k := a.Key()
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = a.Clone()
	return true
}

// Len is the number of distinct answers.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Contains reports whether a is in s.
func (s *Set) Contains(a Answer) bool {
	_, ok := s.m[a.Key()]
	return ok
}

// ContainsAll reports whether every answer of o is in s.
func (s *Set) ContainsAll(o *Set) bool {
	for k := range o.m {
		if _, ok := s.m[k]; !ok {
			return false
		}
	}
	return true
}

// Answers returns copies of the answers ordered by key, so iteration order
// is stable for a given content.
func (s *Set) Answers() []Answer {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Answer, len(keys))
	for i, k := range keys {
		out[i] = s.m[k].Clone()
	}
	return out
}

// Vars returns every variable bound by some answer, sorted.
func (s *Set) Vars() []pattern.Variable {
	seen := map[pattern.Variable]bool{}
	for _, a := range s.m {
		for v := range a {
			seen[v] = true
		}
	}
	out := make([]pattern.Variable, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns s ∪ o.
func (s *Set) Union(o *Set) *Set {
	out := &Set{m: make(map[string]Answer, len(s.m)+len(o.m))}
	for k, a := range s.m {
		out.m[k] = a
	}
	for k, a := range o.m {
		out.m[k] = a
	}
	return out
}

// Intersect returns the answers present in both sets.
func (s *Set) Intersect(o *Set) *Set {
	out := NewSet()
	for k, a := range s.m {
		if _, ok := o.m[k]; ok {
			out.m[k] = a
		}
	}
	return out
}

// Join is the natural join of s and o on their shared variables.
func (s *Set) Join(o *Set) *Set {
	if s.Len() == 0 || o.Len() == 0 {
		return NewSet()
	}
	shared := intersectVars(s.commonVars(), o.commonVars())

	// hash the smaller side on the shared variables
	build, probe := s, o
	if probe.Len() < build.Len() {
		build, probe = probe, build
	}
	table := make(map[string][]Answer, build.Len())
	for _, a := range build.m {
		k := a.Project(shared).Key()
		table[k] = append(table[k], a)
	}
	out := NewSet()
	for _, p := range probe.m {
		for _, b := range table[p.Project(shared).Key()] {
			if merged, ok := b.Merge(p); ok {
				out.m[merged.Key()] = merged
			}
		}
	}
	return out
}

// commonVars returns the variables bound in every answer of s.
func (s *Set) commonVars() []pattern.Variable {
	var common map[pattern.Variable]bool
	for _, a := range s.m {
		if common == nil {
			common = make(map[pattern.Variable]bool, len(a))
			for v := range a {
				common[v] = true
			}
			continue
		}
		for v := range common {
			if _, ok := a[v]; !ok {
				delete(common, v)
			}
		}
	}
	out := make([]pattern.Variable, 0, len(common))
	for v := range common {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func intersectVars(a, b []pattern.Variable) []pattern.Variable {
	in := make(map[pattern.Variable]bool, len(a))
	for _, v := range a {
		in[v] = true
	}
	var out []pattern.Variable
	for _, v := range b {
		if in[v] {
			out = append(out, v)
		}
	}
	return out
}

// Project drops every binding outside vars. Answers that become equal collapse.
func (s *Set) Project(vars []pattern.Variable) *Set {
	out := NewSet()
	for _, a := range s.m {
		p := a.Project(vars)
		out.m[p.Key()] = p
	}
	return out
}

// Apply renames variables in every answer.
func (s *Set) Apply(u pattern.Unifier) *Set {
	out := NewSet()
	for _, a := range s.m {
		r := a.Apply(u)
		out.m[r.Key()] = r
	}
	return out
}

// Filter keeps the answers keep accepts.
func (s *Set) Filter(keep func(Answer) bool) *Set {
	out := NewSet()
	for k, a := range s.m {
		if keep(a) {
			out.m[k] = a
		}
	}
	return out
}

// Equal is set equality of the answer mappings.
func (s *Set) Equal(o *Set) bool {
	return s.Len() == o.Len() && s.ContainsAll(o)
}

// Canonical renames variables to positional names following their sorted
// order, so sets produced under different variable namings compare equal
// when they bind the same concepts in the same positions.
func (s *Set) Canonical() *Set {
	u := pattern.Unifier{}
	for i, v := range s.Vars() {
		u[v] = pattern.Variable(fmt.Sprintf("_%d", i))
	}
	return s.Apply(u)
}

// EquivalentTo compares the canonical forms of both sets.
func (s *Set) EquivalentTo(o *Set) bool {
	return s.Canonical().Equal(o.Canonical())
}

func (s *Set) String() string {
	answers := s.Answers()
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
