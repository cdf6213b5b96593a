// Package rule holds inference rules and the index the reasoner consults to
// find the rules that could derive a query atom.
package rule

import (
	"fmt"
	"sort"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/unify"
)

// InferenceRule derives Head for every answer of Body.
// Example: (container: $x, contained: $z) isa located-in :-
//
//	(container: $x, contained: $y) isa located-in; (container: $y, contained: $z) isa located-in
type InferenceRule struct {
	Name string
	Body *pattern.Pattern
	Head pattern.Atom
}

// Validate checks the rule against the schema: the head is a typed relation
// or resource atom of a known type of the same kind, the body is non-empty
// and binds every head variable.
func (r InferenceRule) Validate(types schema.Checker) error {
	fail := func(format string, args ...any) error {
		return &internalerr.RuleLoadError{Rule: r.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if r.Name == "" {
		return fail("rule name cannot be empty")
	}
	if r.Body == nil || (len(r.Body.Atoms()) == 0 && len(r.Body.Disjunctions()) == 0) {
		return fail("rule body cannot be empty")
	}
	if !r.Head.IsBinary() {
		return fail("head must be a relation or resource atom, got %s", r.Head.Kind)
	}
	if r.Head.Type == "" {
		return fail("head %s has no type", r.Head)
	}
	t, ok := types.TypeOf(r.Head.Type)
	if !ok {
		return fail("head type %q is not in the schema", r.Head.Type)
	}
	want := concept.KindRelation
	if r.Head.Kind == pattern.KindResource {
		want = concept.KindResource
	}
	if t.Kind != want {
		return fail("head type %q is a %s, head atom is a %s", r.Head.Type, t.Kind, r.Head.Kind)
	}
	if (r.Head.Roles[0] == "") != (r.Head.Roles[1] == "") {
		return fail("head needs both roles or none")
	}

	bound := bodyVariables(r.Body)
	for _, v := range r.Head.Vars() {
		if !bound[v] {
			return fail("head variable %s not found in body", v)
		}
	}
	return nil
}

// bodyVariables collects the variables bound by non-predicate atoms of the
// body's own conjunction. Variables bound only inside a disjunction must be
// bound by every branch.
func bodyVariables(p *pattern.Pattern) map[pattern.Variable]bool {
	out := make(map[pattern.Variable]bool)
	for _, a := range p.Constraints() {
		for _, v := range a.Vars() {
			out[v] = true
		}
	}
	for _, branches := range p.Disjunctions() {
		var common map[pattern.Variable]bool
		for _, br := range branches {
			vs := bodyVariables(br)
			if common == nil {
				common = vs
				continue
			}
			for v := range common {
				if !vs[v] {
					delete(common, v)
				}
			}
		}
		for v := range common {
			out[v] = true
		}
	}
	return out
}

func (r InferenceRule) String() string {
	return fmt.Sprintf("%s: %s :- %s", r.Name, r.Head, r.Body)
}

// Index finds the rules whose head could produce an atom. It is immutable
// after NewIndex and safe for concurrent use.
type Index struct {
	types  schema.Checker
	rules  []*InferenceRule
	byName map[string]*InferenceRule
	byKind map[pattern.Kind][]*InferenceRule
}

// NewIndex validates rules and indexes them by head kind and type.
func NewIndex(rules []InferenceRule, types schema.Checker) (*Index, error) {
	idx := &Index{
		types:  types,
		byName: make(map[string]*InferenceRule, len(rules)),
		byKind: make(map[pattern.Kind][]*InferenceRule),
	}
	for i := range rules {
		r := rules[i]
		if err := r.Validate(types); err != nil {
			return nil, err
		}
		if _, dup := idx.byName[r.Name]; dup {
			return nil, &internalerr.RuleLoadError{Rule: r.Name, Reason: "duplicate rule name"}
		}
		if other, ok := idx.restated(r); ok {
			return nil, &internalerr.RuleLoadError{Rule: r.Name, Reason: fmt.Sprintf("restates rule %q", other)}
		}
		rp := &r
		idx.rules = append(idx.rules, rp)
		idx.byName[r.Name] = rp
		idx.byKind[r.Head.Kind] = append(idx.byKind[r.Head.Kind], rp)
	}
	for _, rs := range idx.byKind {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
	}
	return idx, nil
}

// restated returns the name of an indexed rule that r repeats up to a
// renaming of variables. Bodies with disjunctions are never compared.
func (idx *Index) restated(r InferenceRule) (string, bool) {
	if len(r.Body.Disjunctions()) > 0 {
		return "", false
	}
	for _, o := range idx.rules {
		if o.Head.Kind != r.Head.Kind || o.Head.Type != r.Head.Type ||
			len(o.Body.Disjunctions()) > 0 || !o.Body.Equivalent(r.Body) {
			continue
		}
		hu, err := unify.Unify(r.Head, o.Head, idx.types)
		if err != nil {
			continue
		}
		bu, err := unify.Sets(r.Body.Atoms(), o.Body.Atoms(), idx.types)
		if err != nil {
			continue
		}
		u, err := hu.Merge(bu)
		if err != nil {
			continue
		}
		if renamesOnto(r, *o, u) {
			return o.Name, true
		}
	}
	return "", false
}

// renamesOnto reports whether u turns r into o exactly, predicate values
// included.
func renamesOnto(r, o InferenceRule, u pattern.Unifier) bool {
	head := r.Head.Rename(u)
	if !head.Equal(o.Head) && !(head.Unordered() && head.Swapped().Equal(o.Head)) {
		return false
	}
	want := map[string]int{}
	for _, a := range o.Body.Atoms() {
		want[a.String()]++
	}
	for _, a := range r.Body.Atoms() {
		k := a.Rename(u).String()
		if want[k] == 0 {
			return false
		}
		want[k]--
	}
	return true
}

// Rules returns every indexed rule in load order.
func (idx *Index) Rules() []InferenceRule {
	out := make([]InferenceRule, len(idx.rules))
	for i, r := range idx.rules {
		out[i] = *r
	}
	return out
}

// Rule returns a rule by name.
func (idx *Index) Rule(name string) (InferenceRule, bool) {
	r, ok := idx.byName[name]
	if !ok {
		return InferenceRule{}, false
	}
	return *r, true
}

// Len is the number of indexed rules.
func (idx *Index) Len() int { return len(idx.rules) }

// Candidates returns the rules whose head type equals or is a subtype of the
// atom's type, in name order. An untyped atom matches every rule of its kind.
func (idx *Index) Candidates(atom pattern.Atom) []InferenceRule {
	if idx == nil {
		return nil
	}
	var out []InferenceRule
	for _, r := range idx.byKind[atom.Kind] {
		if idx.IsApplicable(atom, *r) {
			out = append(out, *r)
		}
	}
	return out
}

// IsApplicable reports whether r's head can produce atom. It checks kind,
// type and roles only; whether the variables unify is left to unify.All.
// Isa and predicate atoms are never derived.
func (idx *Index) IsApplicable(atom pattern.Atom, r InferenceRule) bool {
	if !atom.IsBinary() || atom.Kind != r.Head.Kind {
		return false
	}
	if atom.Type != "" && !idx.types.IsSubtype(r.Head.Type, atom.Type) {
		return false
	}
	if atom.Kind == pattern.KindRelation && !atom.Unordered() && !r.Head.Unordered() {
		h := r.Head.Roles
		if h != atom.Roles && (h[0] != atom.Roles[1] || h[1] != atom.Roles[0]) {
			return false
		}
	}
	return true
}
