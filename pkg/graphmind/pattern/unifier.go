package pattern

import (
	"fmt"
	"sort"
	"strings"
)

// Unifier renames variables: key becomes value. Variables without an entry
// pass through unchanged.
type Unifier map[Variable]Variable

// Apply returns the substitution for v.
func (u Unifier) Apply(v Variable) Variable {
	if w, ok := u[v]; ok {
		return w
	}
	return v
}

// Clone returns a copy that can be modified freely.
func (u Unifier) Clone() Unifier {
	out := make(Unifier, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Bind adds k→v, failing when k already has a different substitution.
func (u Unifier) Bind(k, v Variable) error {
	if cur, ok := u[k]; ok && cur != v {
		return fmt.Errorf("%s already maps to %s, cannot map to %s", k, cur, v)
	}
	u[k] = v
	return nil
}

// Merge combines two unifiers, failing on conflicting substitutions.
func (u Unifier) Merge(o Unifier) (Unifier, error) {
	out := u.Clone()
	for k, v := range o {
		if err := out.Bind(k, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Compose returns the unifier equivalent to applying u then o.
func (u Unifier) Compose(o Unifier) Unifier {
	out := make(Unifier, len(u)+len(o))
	for k, v := range u {
		out[k] = o.Apply(v)
	}
	for k, v := range o {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Inverse swaps keys and values. ok is false when two keys share a value.
func (u Unifier) Inverse() (inv Unifier, ok bool) {
	inv = make(Unifier, len(u))
	for k, v := range u {
		if _, dup := inv[v]; dup {
			return nil, false
		}
		inv[v] = k
	}
	return inv, true
}

// Values returns the set of substitution targets.
func (u Unifier) Values() map[Variable]bool {
	out := make(map[Variable]bool, len(u))
	for _, v := range u {
		out[v] = true
	}
	return out
}

func (u Unifier) String() string {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("$%s→%s", k, u[Variable(k)])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// captureAvoiding extends u so that a variable of vars that is the target
// of some substitution, but is not itself substituted, moves to a fresh
// name instead of silently merging with the renamed variable.
func captureAvoiding(u Unifier, vars []Variable) Unifier {
	targets := u.Values()
	used := make(map[Variable]bool, len(vars)+len(targets))
	for _, v := range vars {
		used[v] = true
	}
	for v := range targets {
		used[v] = true
	}
	full := u.Clone()
	for _, v := range vars {
		if _, renamed := u[v]; renamed || !targets[v] {
			continue
		}
		fresh := FreshVariable(v, used)
		used[fresh] = true
		full[v] = fresh
	}
	return full
}

// FreshVariable returns a system variable derived from base that is not in used.
func FreshVariable(base Variable, used map[Variable]bool) Variable {
	stem := "_" + strings.TrimLeft(string(base), "_")
	for i := 1; ; i++ {
		cand := Variable(fmt.Sprintf("%s%d", stem, i))
		if !used[cand] {
			return cand
		}
	}
}
