package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// Pattern is an ordered conjunction of atoms, optionally combined with
// disjunctions whose branches are patterns themselves, plus the variables
// selected for output.
type Pattern struct {
	atoms     []Atom
	or        [][]*Pattern
	selected  []Variable
	allowSelf bool
}

// Option configures New.
type Option func(*Pattern)

// Or adds a disjunction. Each branch is a conjunction evaluated alongside
// the enclosing pattern.
func Or(branches ...*Pattern) Option {
	return func(p *Pattern) {
		p.or = append(p.or, append([]*Pattern(nil), branches...))
	}
}

// Select declares the output variables.
func Select(vars ...Variable) Option {
	return func(p *Pattern) {
		p.selected = append(p.selected, vars...)
	}
}

// AllowSelfReference lets binary atoms use one variable for both ends. Rule
// patterns use it for reflexive heads.
func AllowSelfReference() Option {
	return func(p *Pattern) { p.allowSelf = true }
}

// New validates and builds a pattern.
func New(atoms []Atom, opts ...Option) (*Pattern, error) {
	p := &Pattern{atoms: append([]Atom(nil), atoms...)}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Branch builds a disjunction branch. Branches may refer to variables bound
// by the enclosing pattern, so they are validated as part of it.
func Branch(atoms []Atom, opts ...Option) *Pattern {
	p := &Pattern{atoms: append([]Atom(nil), atoms...)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MustNew is New for fixtures known to be well formed.
func MustNew(atoms []Atom, opts ...Option) *Pattern {
	p, err := New(atoms, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Conj flattens atom groups, handy together with HasValue.
func Conj(groups ...[]Atom) []Atom {
	var out []Atom
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (p *Pattern) validate() error {
	if len(p.atoms) == 0 && len(p.or) == 0 {
		return &internalerr.PatternError{Reason: "empty pattern"}
	}
	bound := make(map[Variable]bool)
	p.walk(func(q *Pattern) {
		for _, a := range q.atoms {
			if !a.IsPredicate() {
				for _, v := range a.Vars() {
					bound[v] = true
				}
			}
		}
	})
	if len(bound) == 0 {
		return &internalerr.PatternError{Reason: "pattern binds no variable"}
	}
	var err error
	p.walk(func(q *Pattern) {
		if err != nil {
			return
		}
		if len(q.atoms) == 0 && len(q.or) == 0 {
			err = &internalerr.PatternError{Reason: "empty disjunction branch"}
			return
		}
		for i, br := range q.or {
			if len(br) == 0 {
				err = &internalerr.PatternError{Reason: fmt.Sprintf("disjunction %d has no branches", i)}
				return
			}
		}
		for _, a := range q.atoms {
			if err = validateAtom(a, p.allowSelf); err != nil {
				return
			}
			if a.IsPredicate() && !bound[a.Var] {
				err = &internalerr.PatternError{Atom: a.String(), Var: string(a.Var), Reason: "undeclared variable"}
				return
			}
		}
	})
	if err != nil {
		return err
	}
	all := p.varSet()
	for _, v := range p.selected {
		if !all[v] {
			return &internalerr.PatternError{Var: string(v), Reason: "selected variable does not appear in any atom"}
		}
	}
	return nil
}

func validateAtom(a Atom, allowSelf bool) error {
	fail := func(reason string) error {
		return &internalerr.PatternError{Atom: a.String(), Reason: reason}
	}
	if a.Var == "" {
		return fail("atom without variable")
	}
	switch a.Kind {
	case KindIsa:
		if a.Type == "" {
			return fail("isa without type")
		}
	case KindRelation, KindResource:
		if a.Value == "" {
			return fail("binary atom without value variable")
		}
		if a.Var == a.Value && !allowSelf {
			return &internalerr.PatternError{Atom: a.String(), Var: string(a.Var), Reason: "binary atom uses the same variable twice"}
		}
		if a.Kind == KindResource && a.Type == "" {
			return fail("resource atom without attribute type")
		}
		if a.Kind == KindRelation && (a.Roles[0] == "") != (a.Roles[1] == "") {
			return fail("relation needs both roles or none")
		}
	case KindIDPredicate:
		if a.ID == "" {
			return fail("id predicate without id")
		}
	case KindValuePredicate:
		if !a.Op.Valid() {
			return fail(fmt.Sprintf("unknown operator %q", a.Op))
		}
		if a.Literal == nil {
			return fail("value predicate without literal")
		}
	default:
		return fail("unknown atom kind")
	}
	return nil
}

// walk visits p and every nested branch, depth first.
func (p *Pattern) walk(fn func(*Pattern)) {
	fn(p)
	for _, br := range p.or {
		for _, q := range br {
			q.walk(fn)
		}
	}
}

// Atoms returns the conjunction's own atoms, without disjunction branches.
func (p *Pattern) Atoms() []Atom { return append([]Atom(nil), p.atoms...) }

// Disjunctions returns the nested disjunctions.
func (p *Pattern) Disjunctions() [][]*Pattern {
	out := make([][]*Pattern, len(p.or))
	for i, br := range p.or {
		out[i] = append([]*Pattern(nil), br...)
	}
	return out
}

// Predicates returns the predicate atoms of the conjunction.
func (p *Pattern) Predicates() []Atom {
	var out []Atom
	for _, a := range p.atoms {
		if a.IsPredicate() {
			out = append(out, a)
		}
	}
	return out
}

// Constraints returns the non-predicate atoms of the conjunction.
func (p *Pattern) Constraints() []Atom {
	var out []Atom
	for _, a := range p.atoms {
		if !a.IsPredicate() {
			out = append(out, a)
		}
	}
	return out
}

// Selected returns the declared output variables, possibly empty.
func (p *Pattern) Selected() []Variable { return append([]Variable(nil), p.selected...) }

// AllowsSelfReference reports whether the pattern was built with AllowSelfReference.
func (p *Pattern) AllowsSelfReference() bool { return p.allowSelf }

func (p *Pattern) varSet() map[Variable]bool {
	all := make(map[Variable]bool)
	p.walk(func(q *Pattern) {
		for _, a := range q.atoms {
			for _, v := range a.Vars() {
				all[v] = true
			}
		}
	})
	return all
}

// Vars returns every variable of the pattern, including branches, sorted.
func (p *Pattern) Vars() []Variable {
	return sortedVars(p.varSet())
}

// OutputVars is the projection applied to final answers: the selection if
// one was declared, all user-defined variables otherwise.
func (p *Pattern) OutputVars() []Variable {
	if len(p.selected) > 0 {
		return p.Selected()
	}
	var out []Variable
	for _, v := range p.Vars() {
		if v.IsUserDefined() {
			out = append(out, v)
		}
	}
	return out
}

// IsUserDefined reports whether every variable of the pattern is user-defined.
func (p *Pattern) IsUserDefined() bool {
	for v := range p.varSet() {
		if !v.IsUserDefined() {
			return false
		}
	}
	return true
}

// Apply renames variables by u throughout the pattern. A variable that is
// the target of a substitution but not itself renamed is first moved to a
// fresh system name, so two unrelated variables never merge.
func (p *Pattern) Apply(u Unifier) *Pattern {
	return p.rename(captureAvoiding(u, p.Vars()))
}

func (p *Pattern) rename(full Unifier) *Pattern {
	out := &Pattern{
		atoms:     make([]Atom, len(p.atoms)),
		or:        make([][]*Pattern, len(p.or)),
		selected:  make([]Variable, len(p.selected)),
		allowSelf: p.allowSelf,
	}
	for i, a := range p.atoms {
		out.atoms[i] = a.Rename(full)
	}
	for i, br := range p.or {
		out.or[i] = make([]*Pattern, len(br))
		for j, q := range br {
			out.or[i][j] = q.rename(full)
		}
	}
	for i, v := range p.selected {
		out.selected[i] = full.Apply(v)
	}
	return out
}

// WithSelection returns a copy of p selecting vars instead.
func (p *Pattern) WithSelection(vars ...Variable) (*Pattern, error) {
	out := p.rename(Unifier{})
	out.selected = append([]Variable(nil), vars...)
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal is structural equality, atom order and selection included.
func (p *Pattern) Equal(o *Pattern) bool {
	if len(p.atoms) != len(o.atoms) || len(p.or) != len(o.or) || len(p.selected) != len(o.selected) {
		return false
	}
	for i := range p.atoms {
		if !p.atoms[i].Equal(o.atoms[i]) {
			return false
		}
	}
	for i := range p.selected {
		if p.selected[i] != o.selected[i] {
			return false
		}
	}
	for i := range p.or {
		if len(p.or[i]) != len(o.or[i]) {
			return false
		}
		for j := range p.or[i] {
			if !p.or[i][j].Equal(o.or[i][j]) {
				return false
			}
		}
	}
	return true
}

// Equivalent reports whether the patterns have the same shape up to a
// consistent renaming of variables and the values of their predicates.
func (p *Pattern) Equivalent(o *Pattern) bool {
	return p.shapeKey() == o.shapeKey()
}

func (p *Pattern) shapeKey() string {
	canon := Unifier{}
	p.walk(func(q *Pattern) {
		for _, a := range q.atoms {
			for _, v := range a.Vars() {
				if _, ok := canon[v]; !ok {
					canon[v] = Variable(fmt.Sprintf("_s%d", len(canon)))
				}
			}
		}
	})
	return p.rename(canon).render(true)
}

func (p *Pattern) String() string { return p.render(false) }

func (p *Pattern) render(maskValues bool) string {
	var b strings.Builder
	b.WriteString("{")
	for _, a := range p.atoms {
		switch {
		case maskValues && a.Kind == KindValuePredicate:
			fmt.Fprintf(&b, "%s value %s ?", a.Var, a.Op)
		case maskValues && a.Kind == KindIDPredicate:
			fmt.Fprintf(&b, "%s id ?", a.Var)
		default:
			b.WriteString(a.String())
		}
		b.WriteString("; ")
	}
	for _, br := range p.or {
		parts := make([]string, len(br))
		for i, q := range br {
			parts[i] = q.render(maskValues)
		}
		b.WriteString(strings.Join(parts, " or "))
		b.WriteString("; ")
	}
	b.WriteString("}")
	if len(p.selected) > 0 {
		names := make([]string, len(p.selected))
		for i, v := range p.selected {
			names[i] = v.String()
		}
		b.WriteString(" select " + strings.Join(names, ", "))
	}
	return b.String()
}

// IDPredicates returns the id predicates of p constraining a's variables.
func IDPredicates(a Atom, p *Pattern) []Atom {
	return predicatesOf(a, p, KindIDPredicate)
}

// ValuePredicates returns the value predicates of p constraining a's variables.
func ValuePredicates(a Atom, p *Pattern) []Atom {
	return predicatesOf(a, p, KindValuePredicate)
}

func predicatesOf(a Atom, p *Pattern, kind Kind) []Atom {
	var out []Atom
	for _, pr := range p.atoms {
		if pr.Kind == kind && a.HasVar(pr.Var) {
			out = append(out, pr)
		}
	}
	return out
}

// LinkedAtoms returns the binary atoms of p chained to a through value
// variables: those owned by a's value variable, transitively.
func LinkedAtoms(a Atom, p *Pattern) []Atom {
	if !a.IsBinary() {
		return nil
	}
	seen := map[int]bool{}
	var out []Atom
	frontier := []Variable{a.Value}
	visited := map[Variable]bool{}
	for len(frontier) > 0 {
		v := frontier[0]
		frontier = frontier[1:]
		if visited[v] {
			continue
		}
		visited[v] = true
		for i, b := range p.atoms {
			if seen[i] || !b.IsBinary() || b.Var != v || b.Equal(a) {
				continue
			}
			seen[i] = true
			out = append(out, b)
			frontier = append(frontier, b.Value)
		}
	}
	return out
}

func sortedVars(set map[Variable]bool) []Variable {
	out := make([]Variable, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
