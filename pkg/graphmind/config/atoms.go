package config

import (
	"fmt"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

// AtomSpec is one atom of a YAML pattern. Exactly one field is set.
//
//	- isa: {var: x, type: person}
//	- rel: {type: friendship, vars: [x, y]}
//	- rel: {type: located-in, players: [{role: container, var: x}, {role: contained, var: y}]}
//	- has: {var: x, type: name, value: n}
//	- has: {var: x, type: name, literal: Alice}
//	- id: {var: x, id: alice}
//	- value: {var: n, op: ">", literal: 30}
//	- or: [[<atoms>], [<atoms>]]
type AtomSpec struct {
	Isa   *IsaSpec     `yaml:"isa,omitempty"`
	Rel   *RelSpec     `yaml:"rel,omitempty"`
	Has   *HasSpec     `yaml:"has,omitempty"`
	ID    *IDSpec      `yaml:"id,omitempty"`
	Value *ValueSpec   `yaml:"value,omitempty"`
	Or    [][]AtomSpec `yaml:"or,omitempty"`
}

type IsaSpec struct {
	Var  string `yaml:"var"`
	Type string `yaml:"type"`
}

type RelSpec struct {
	Type    string       `yaml:"type"`
	Vars    []string     `yaml:"vars,omitempty"`
	Players []PlayerSpec `yaml:"players,omitempty"`
}

type PlayerSpec struct {
	Role string `yaml:"role"`
	Var  string `yaml:"var"`
}

type HasSpec struct {
	Var     string `yaml:"var"`
	Type    string `yaml:"type"`
	Value   string `yaml:"value,omitempty"`
	Literal any    `yaml:"literal,omitempty"`
}

type IDSpec struct {
	Var string `yaml:"var"`
	ID  string `yaml:"id"`
}

type ValueSpec struct {
	Var     string `yaml:"var"`
	Op      string `yaml:"op"`
	Literal any    `yaml:"literal"`
}

// QuerySpec is a query document: a pattern plus its selected variables.
type QuerySpec struct {
	Match  []AtomSpec `yaml:"match"`
	Select []string   `yaml:"select,omitempty"`
}

// Pattern builds and validates the query pattern.
func (q QuerySpec) Pattern() (*pattern.Pattern, error) {
	atoms, opts, err := buildConjunction(q.Match)
	if err != nil {
		return nil, err
	}
	if len(q.Select) > 0 {
		vars := make([]pattern.Variable, len(q.Select))
		for i, v := range q.Select {
			vars[i] = pattern.Variable(v)
		}
		opts = append(opts, pattern.Select(vars...))
	}
	return pattern.New(atoms, opts...)
}

func buildConjunction(specs []AtomSpec) ([]pattern.Atom, []pattern.Option, error) {
	var atoms []pattern.Atom
	var opts []pattern.Option
	for i, s := range specs {
		if len(s.Or) > 0 {
			branches := make([]*pattern.Pattern, 0, len(s.Or))
			for _, br := range s.Or {
				bAtoms, bOpts, err := buildConjunction(br)
				if err != nil {
					return nil, nil, err
				}
				branches = append(branches, pattern.Branch(bAtoms, bOpts...))
			}
			opts = append(opts, pattern.Or(branches...))
			continue
		}
		as, err := s.atoms()
		if err != nil {
			return nil, nil, fmt.Errorf("atom %d: %w", i, err)
		}
		atoms = append(atoms, as...)
	}
	return atoms, opts, nil
}

// atoms converts a single spec. The has shorthand with a literal expands to
// two atoms.
func (s AtomSpec) atoms() ([]pattern.Atom, error) {
	set := 0
	for _, present := range []bool{s.Isa != nil, s.Rel != nil, s.Has != nil, s.ID != nil, s.Value != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, &internalerr.PatternError{Reason: fmt.Sprintf("atom must set exactly one of isa, rel, has, id, value, or; got %d", set)}
	}

	switch {
	case s.Isa != nil:
		return []pattern.Atom{pattern.Isa(pattern.Variable(s.Isa.Var), s.Isa.Type)}, nil
	case s.Rel != nil:
		a, err := s.Rel.atom()
		if err != nil {
			return nil, err
		}
		return []pattern.Atom{a}, nil
	case s.Has != nil:
		owner := pattern.Variable(s.Has.Var)
		if s.Has.Literal != nil {
			if s.Has.Value != "" {
				return nil, &internalerr.PatternError{Var: s.Has.Var, Reason: "has sets both value and literal"}
			}
			return pattern.HasValue(owner, s.Has.Type, s.Has.Literal), nil
		}
		return []pattern.Atom{pattern.Has(owner, s.Has.Type, pattern.Variable(s.Has.Value))}, nil
	case s.ID != nil:
		return []pattern.Atom{pattern.ID(pattern.Variable(s.ID.Var), concept.ID(s.ID.ID))}, nil
	default:
		return []pattern.Atom{pattern.Value(pattern.Variable(s.Value.Var), pattern.Op(s.Value.Op), s.Value.Literal)}, nil
	}
}

func (r RelSpec) atom() (pattern.Atom, error) {
	switch {
	case len(r.Vars) > 0 && len(r.Players) > 0:
		return pattern.Atom{}, &internalerr.PatternError{Reason: "rel sets both vars and players"}
	case len(r.Vars) == 2:
		return pattern.Rel(r.Type, pattern.Variable(r.Vars[0]), pattern.Variable(r.Vars[1])), nil
	case len(r.Players) == 2:
		a, b := r.Players[0], r.Players[1]
		return pattern.RolesRel(r.Type, a.Role, pattern.Variable(a.Var), b.Role, pattern.Variable(b.Var)), nil
	}
	return pattern.Atom{}, &internalerr.PatternError{Reason: "rel needs exactly two vars or two players"}
}

// headAtom converts a rule's then clause, which must be a single relation or
// resource atom.
func headAtom(s AtomSpec) (pattern.Atom, error) {
	switch {
	case s.Rel != nil && s.Isa == nil && s.Has == nil && s.ID == nil && s.Value == nil && len(s.Or) == 0:
		return s.Rel.atom()
	case s.Has != nil && s.Isa == nil && s.Rel == nil && s.ID == nil && s.Value == nil && len(s.Or) == 0:
		if s.Has.Value == "" {
			return pattern.Atom{}, fmt.Errorf("has head needs a value variable")
		}
		return pattern.Has(pattern.Variable(s.Has.Var), s.Has.Type, pattern.Variable(s.Has.Value)), nil
	}
	return pattern.Atom{}, fmt.Errorf("rule head must be a single rel or has atom")
}
