package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("duplicate entry")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrPattern           = errors.New("malformed pattern")
	ErrUnification       = errors.New("unification failed")
	ErrIllegalQueryState = errors.New("illegal query state")
	ErrRuleLoad          = errors.New("rule load failed")
)

// PatternError reports a malformed or self-contradictory atom or pattern.
// It aborts the query it was raised for.
type PatternError struct {
	Atom   string // rendered offending atom, may be empty
	Var    string // offending variable, may be empty
	Reason string
}

func (e *PatternError) Error() string {
	msg := "pattern: " + e.Reason
	if e.Var != "" {
		msg += fmt.Sprintf(" (variable $%s)", e.Var)
	}
	if e.Atom != "" {
		msg += fmt.Sprintf(" in %s", e.Atom)
	}
	return msg
}

func (e *PatternError) Unwrap() error { return ErrPattern }

// UnificationError is local to a single rule branch. The reasoner recovers
// from it by skipping the branch.
type UnificationError struct {
	Child  string
	Parent string
	Reason string
}

func (e *UnificationError) Error() string {
	return fmt.Sprintf("unify %s with %s: %s", e.Child, e.Parent, e.Reason)
}

func (e *UnificationError) Unwrap() error { return ErrUnification }

// IllegalQueryStateError reports a missing query parameter or a referenced
// instance that is absent from the graph.
type IllegalQueryStateError struct {
	Reason string
}

func (e *IllegalQueryStateError) Error() string {
	return "illegal query state: " + e.Reason
}

func (e *IllegalQueryStateError) Unwrap() error { return ErrIllegalQueryState }

// RuleLoadError is raised while building a session when a rule fails validation.
type RuleLoadError struct {
	Rule   string
	Reason string
}

func (e *RuleLoadError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Reason)
}

func (e *RuleLoadError) Unwrap() error { return ErrRuleLoad }
