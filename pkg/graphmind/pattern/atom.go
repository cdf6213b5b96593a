// Package pattern is the reasoner's query model: atoms, conjunctive patterns
// with nested disjunctions, and the unifiers that rename their variables.
//
// Atoms and patterns are values. Every transformation returns a new pattern;
// nothing in this package mutates a pattern after New has returned it.
package pattern

import (
	"fmt"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
)

// Variable names a binding slot local to a query. Names starting with an
// underscore are system-generated, every other name is user-defined.
type Variable string

// IsUserDefined reports whether v came from the query author.
func (v Variable) IsUserDefined() bool {
	return v != "" && !strings.HasPrefix(string(v), "_")
}

func (v Variable) String() string { return "$" + string(v) }

// Kind tags the atom variant.
type Kind int

const (
	KindIsa Kind = iota + 1
	KindRelation
	KindResource
	KindIDPredicate
	KindValuePredicate
)

func (k Kind) String() string {
	switch k {
	case KindIsa:
		return "isa"
	case KindRelation:
		return "relation"
	case KindResource:
		return "resource"
	case KindIDPredicate:
		return "id"
	case KindValuePredicate:
		return "value"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op is a value comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNeq      Op = "!="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpContains Op = "contains"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpContains:
		return true
	}
	return false
}

// Holds evaluates "actual op expected".
func (op Op) Holds(actual, expected any) bool {
	if op == OpContains {
		s, ok1 := actual.(string)
		sub, ok2 := expected.(string)
		return ok1 && ok2 && strings.Contains(s, sub)
	}
	c, ok := concept.Compare(actual, expected)
	if !ok {
		return op == OpNeq
	}
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return false
}

// Atom is one constraint of a pattern.
//
// Isa uses Var and Type. Relation and Resource are binary: Var is the owner,
// Value the value variable. A relation's Roles are either both set (Roles[0]
// is played by Var, Roles[1] by Value) or both empty, meaning the role
// players are unordered. Predicates restrict Var by ID or by Op and Literal.
type Atom struct {
	Kind    Kind
	Var     Variable
	Value   Variable
	Type    string
	Roles   [2]string
	ID      concept.ID
	Op      Op
	Literal any
}

// Isa constrains v to instances of typ or its subtypes.
func Isa(v Variable, typ string) Atom {
	return Atom{Kind: KindIsa, Var: v, Type: typ}
}

// Rel is an unordered binary relation between a and b. typ may be empty.
func Rel(typ string, a, b Variable) Atom {
	return Atom{Kind: KindRelation, Var: a, Value: b, Type: typ}
}

// RolesRel is a relation with a playing roleA and b playing roleB.
func RolesRel(typ string, roleA string, a Variable, roleB string, b Variable) Atom {
	return Atom{Kind: KindRelation, Var: a, Value: b, Type: typ, Roles: [2]string{roleA, roleB}}
}

// Has binds value to a resource of type attr owned by owner.
func Has(owner Variable, attr string, value Variable) Atom {
	return Atom{Kind: KindResource, Var: owner, Value: value, Type: attr}
}

// HasValue is the "owner has attr literal" shorthand: a resource atom with a
// system value variable plus an equality predicate on it.
func HasValue(owner Variable, attr string, literal any) []Atom {
	v := Variable("_" + string(owner) + "_" + attr + "_" + concept.EncodeValue(literal))
	return []Atom{Has(owner, attr, v), Value(v, OpEq, literal)}
}

// ID pins v to a concept.
func ID(v Variable, id concept.ID) Atom {
	return Atom{Kind: KindIDPredicate, Var: v, ID: id}
}

// Value compares the resource bound to v with literal.
func Value(v Variable, op Op, literal any) Atom {
	return Atom{Kind: KindValuePredicate, Var: v, Op: op, Literal: concept.NormalizeValue(literal)}
}

// IsBinary reports whether the atom is a relation or resource atom.
func (a Atom) IsBinary() bool {
	return a.Kind == KindRelation || a.Kind == KindResource
}

// IsPredicate reports whether the atom only filters existing bindings.
func (a Atom) IsPredicate() bool {
	return a.Kind == KindIDPredicate || a.Kind == KindValuePredicate
}

// Unordered reports whether a relation atom has no role labels.
func (a Atom) Unordered() bool {
	return a.Kind == KindRelation && a.Roles[0] == "" && a.Roles[1] == ""
}

// OwnerVariable is the first variable of the atom.
func (a Atom) OwnerVariable() Variable { return a.Var }

// ValueVariable is the second variable of a binary atom, empty otherwise.
func (a Atom) ValueVariable() Variable {
	if a.IsBinary() {
		return a.Value
	}
	return ""
}

// TypeLabel returns the declared type and whether one is present.
func (a Atom) TypeLabel() (string, bool) { return a.Type, a.Type != "" }

// Vars returns the atom's variables, owner first.
func (a Atom) Vars() []Variable {
	if a.IsBinary() {
		if a.Var == a.Value {
			return []Variable{a.Var}
		}
		return []Variable{a.Var, a.Value}
	}
	return []Variable{a.Var}
}

// HasVar reports whether v is one of the atom's variables.
func (a Atom) HasVar(v Variable) bool {
	return a.Var == v || (a.IsBinary() && a.Value == v)
}

// IsUserDefined reports whether all of the atom's variables are user-defined.
func (a Atom) IsUserDefined() bool {
	for _, v := range a.Vars() {
		if !v.IsUserDefined() {
			return false
		}
	}
	return true
}

// Rename substitutes variables by u without capture avoidance. Use
// Pattern.Apply when the atom lives in a pattern.
func (a Atom) Rename(u Unifier) Atom {
	a.Var = u.Apply(a.Var)
	if a.IsBinary() {
		a.Value = u.Apply(a.Value)
	}
	return a
}

// Equal is structural equality: same variant, variables, type and values.
func (a Atom) Equal(o Atom) bool {
	return a.Kind == o.Kind && a.Var == o.Var && a.Value == o.Value &&
		a.Type == o.Type && a.Roles == o.Roles && a.ID == o.ID && a.Op == o.Op &&
		literalEqual(a.Literal, o.Literal)
}

// Equivalent compares shape up to variable renaming and predicate values.
func (a Atom) Equivalent(o Atom) bool {
	if a.Kind != o.Kind || a.Type != o.Type {
		return false
	}
	switch a.Kind {
	case KindRelation:
		return (a.Var == a.Value) == (o.Var == o.Value) && rolesEquivalent(a, o)
	case KindResource:
		return (a.Var == a.Value) == (o.Var == o.Value)
	case KindValuePredicate:
		return a.Op == o.Op
	}
	return true
}

func rolesEquivalent(a, o Atom) bool {
	if a.Roles == o.Roles {
		return true
	}
	return a.Roles[0] == o.Roles[1] && a.Roles[1] == o.Roles[0]
}

func literalEqual(x, y any) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	c, ok := concept.Compare(x, y)
	return ok && c == 0
}

// Swapped returns a relation atom with its role players exchanged. The
// result constrains the same facts.
func (a Atom) Swapped() Atom {
	if a.Kind != KindRelation {
		return a
	}
	a.Var, a.Value = a.Value, a.Var
	a.Roles[0], a.Roles[1] = a.Roles[1], a.Roles[0]
	return a
}

func (a Atom) String() string {
	switch a.Kind {
	case KindIsa:
		return fmt.Sprintf("%s isa %s", a.Var, a.Type)
	case KindRelation:
		var players string
		if a.Unordered() {
			players = fmt.Sprintf("(%s, %s)", a.Var, a.Value)
		} else {
			players = fmt.Sprintf("(%s: %s, %s: %s)", a.Roles[0], a.Var, a.Roles[1], a.Value)
		}
		if a.Type == "" {
			return players
		}
		return players + " isa " + a.Type
	case KindResource:
		return fmt.Sprintf("%s has %s %s", a.Var, a.Type, a.Value)
	case KindIDPredicate:
		return fmt.Sprintf("%s id '%s'", a.Var, a.ID)
	case KindValuePredicate:
		return fmt.Sprintf("%s value %s %s", a.Var, a.Op, formatLiteral(a.Literal))
	}
	return fmt.Sprintf("<%s %s>", a.Kind, a.Var)
}

func formatLiteral(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprint(v)
}

// Canonical renames the atom's variables to positional system names, with
// role players in sorted role order. Equivalent atoms share one canonical
// form. toCanonical maps the atom's variables onto the canonical names.
func Canonical(a Atom) (canon Atom, toCanonical Unifier) {
	if a.Kind == KindRelation && a.Roles[0] > a.Roles[1] {
		a = a.Swapped()
	}
	toCanonical = Unifier{}
	for i, v := range a.Vars() {
		toCanonical[v] = Variable(fmt.Sprintf("_g%d", i))
	}
	return a.Rename(toCanonical), toCanonical
}

// GoalKey identifies the atom up to variable renaming: atoms with equal keys
// are equivalent and share resolved answers.
func GoalKey(a Atom) (key string, toCanonical Unifier) {
	canon, u := Canonical(a)
	return canon.String(), u
}
