// Package unify computes the variable substitutions that align one atom, or
// one set of atoms, with another.
package unify

import (
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

// Unify returns the unifier that renames child's variables onto parent's.
// Identity substitutions are omitted. types may be nil, in which case
// declared types must match exactly.
//
// When parent's role players are unordered and both orientations are valid,
// the mapping leaving more user-defined variables in place wins; on a tie
// the positional mapping (owner→owner, value→value) is used.
func Unify(child, parent pattern.Atom, types schema.Checker) (pattern.Unifier, error) {
	cands, err := candidates(child, parent, types)
	if err != nil {
		return nil, err
	}
	best, bestScore := cands[0], keptUserNames(cands[0])
	for _, c := range cands[1:] {
		if s := keptUserNames(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return compact(best), nil
}

// All returns every valid unifier of child onto parent. For relations with
// unordered role players this is both orientations; rule expansion needs all
// of them to stay complete.
func All(child, parent pattern.Atom, types schema.Checker) ([]pattern.Unifier, error) {
	cands, err := candidates(child, parent, types)
	if err != nil {
		return nil, err
	}
	out := make([]pattern.Unifier, 0, len(cands))
	seen := map[string]bool{}
	for _, c := range cands {
		u := compact(c)
		if k := u.String(); !seen[k] {
			seen[k] = true
			out = append(out, u)
		}
	}
	return out, nil
}

func fail(child, parent pattern.Atom, reason string) error {
	return &internalerr.UnificationError{Child: child.String(), Parent: parent.String(), Reason: reason}
}

func candidates(child, parent pattern.Atom, types schema.Checker) ([]pattern.Unifier, error) {
	if child.Kind != parent.Kind {
		return nil, fail(child, parent, "incompatible atom kinds "+child.Kind.String()+"/"+parent.Kind.String())
	}
	if !typesCompatible(types, child.Type, parent.Type) {
		return nil, fail(child, parent, "incompatible types")
	}

	var swaps []bool
	switch child.Kind {
	case pattern.KindRelation:
		swaps = relationOrders(child, parent)
		if len(swaps) == 0 {
			return nil, fail(child, parent, "role mismatch")
		}
	case pattern.KindResource:
		swaps = []bool{false}
	case pattern.KindIsa, pattern.KindIDPredicate, pattern.KindValuePredicate:
		u := pattern.Unifier{child.Var: parent.Var}
		return []pattern.Unifier{u}, nil
	default:
		return nil, fail(child, parent, "unknown atom kind")
	}

	var out []pattern.Unifier
	for _, swap := range swaps {
		target := parent
		if swap {
			target = parent.Swapped()
		}
		u := pattern.Unifier{}
		if err := u.Bind(child.Var, target.Var); err != nil {
			continue
		}
		if err := u.Bind(child.Value, target.Value); err != nil {
			continue
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, fail(child, parent, "conflicting substitutions")
	}
	return out, nil
}

// relationOrders lists the orientations under which child's role players
// line up with parent's. Positional comes first.
func relationOrders(child, parent pattern.Atom) []bool {
	if child.Unordered() || parent.Unordered() {
		return []bool{false, true}
	}
	var out []bool
	if child.Roles == parent.Roles {
		out = append(out, false)
	}
	if child.Roles[0] == parent.Roles[1] && child.Roles[1] == parent.Roles[0] {
		out = append(out, true)
	}
	return out
}

func typesCompatible(types schema.Checker, a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	if types == nil {
		return false
	}
	return schema.Compatible(types, a, b)
}

// injective rejects unifiers folding two distinct child variables onto one
// parent variable. Only set unification needs it; rule heads may fold.
func injective(u pattern.Unifier) bool {
	_, ok := u.Inverse()
	return ok
}

func keptUserNames(u pattern.Unifier) int {
	n := 0
	for k, v := range u {
		if k == v && k.IsUserDefined() {
			n++
		}
	}
	return n
}

func compact(u pattern.Unifier) pattern.Unifier {
	out := pattern.Unifier{}
	for k, v := range u {
		if k != v {
			out[k] = v
		}
	}
	return out
}

// Sets unifies a set of child atoms with a set of parent atoms: every child
// atom must map onto a distinct, equivalent parent atom under one consistent
// unifier. Predicates are matched by shape only.
func Sets(child, parent []pattern.Atom, types schema.Checker) (pattern.Unifier, error) {
	if len(child) != len(parent) {
		return nil, &internalerr.UnificationError{Reason: "atom sets differ in size"}
	}
	used := make([]bool, len(parent))
	var search func(i int, acc pattern.Unifier) (pattern.Unifier, bool)
	search = func(i int, acc pattern.Unifier) (pattern.Unifier, bool) {
		if i == len(child) {
			return acc, true
		}
		for j, p := range parent {
			if used[j] || !child[i].Equivalent(p) {
				continue
			}
			cands, err := candidates(child[i], p, types)
			if err != nil {
				continue
			}
			for _, c := range cands {
				merged, err := acc.Merge(c)
				if err != nil || !injective(merged) {
					continue
				}
				used[j] = true
				if res, ok := search(i+1, merged); ok {
					return res, true
				}
				used[j] = false
			}
		}
		return nil, false
	}
	res, ok := search(0, pattern.Unifier{})
	if !ok {
		return nil, &internalerr.UnificationError{Reason: "no consistent mapping between atom sets"}
	}
	return compact(res), nil
}
