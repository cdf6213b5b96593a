package config

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/rule"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// Knowledge is a knowledge document: schema types, instance data and rules.
type Knowledge struct {
	Types     []TypeSpec     `yaml:"types"`
	Entities  []EntitySpec   `yaml:"entities"`
	Relations []RelationSpec `yaml:"relations"`
	Rules     []RuleSpec     `yaml:"rules"`
}

// TypeSpec declares a schema type. Relation types may name their two roles.
type TypeSpec struct {
	Label string   `yaml:"label"`
	Kind  string   `yaml:"kind"`
	Super string   `yaml:"super,omitempty"`
	Roles []string `yaml:"roles,omitempty"`
}

// EntitySpec is an entity with its attributes. An attribute value may be a
// scalar or a list of scalars.
type EntitySpec struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// RelationSpec is a stored binary relation between two instances.
type RelationSpec struct {
	Type    string           `yaml:"type"`
	Players []RolePlayerSpec `yaml:"players"`
}

// RolePlayerSpec names the instance playing a role.
type RolePlayerSpec struct {
	Role string `yaml:"role"`
	ID   string `yaml:"id"`
}

// RuleSpec is an inference rule: when the body matches, then the head holds.
type RuleSpec struct {
	Name string     `yaml:"name"`
	When []AtomSpec `yaml:"when"`
	Then AtomSpec   `yaml:"then"`
}

// LoadKnowledge loads a knowledge document from a YAML file
func LoadKnowledge(path string) (*Knowledge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKnowledge(data)
}

// ParseKnowledge decodes a knowledge document.
func ParseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// LoadQuery loads a query document from a YAML file.
func LoadQuery(path string) (*QuerySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var q QuerySpec
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// BuildRules converts the document's rules. Schema checks happen when the
// rules are indexed.
func (k *Knowledge) BuildRules() ([]rule.InferenceRule, error) {
	out := make([]rule.InferenceRule, 0, len(k.Rules))
	for _, rs := range k.Rules {
		atoms, opts, err := buildConjunction(rs.When)
		if err != nil {
			return nil, &internalerr.RuleLoadError{Rule: rs.Name, Reason: err.Error()}
		}
		head, err := headAtom(rs.Then)
		if err != nil {
			return nil, &internalerr.RuleLoadError{Rule: rs.Name, Reason: err.Error()}
		}
		if head.Var == head.Value {
			opts = append(opts, pattern.AllowSelfReference())
		}
		body, err := pattern.New(atoms, opts...)
		if err != nil {
			return nil, &internalerr.RuleLoadError{Rule: rs.Name, Reason: err.Error()}
		}
		out = append(out, rule.InferenceRule{Name: rs.Name, Body: body, Head: head})
	}
	return out, nil
}

// Apply writes the document's types and instances to st and returns its
// rules, validated against the resulting schema.
func (k *Knowledge) Apply(ctx context.Context, st store.Store) ([]rule.InferenceRule, error) {
	if err := k.applyTypes(ctx, st); err != nil {
		return nil, err
	}
	for _, e := range k.Entities {
		if err := applyEntity(ctx, st, e); err != nil {
			return nil, err
		}
	}
	for i, r := range k.Relations {
		players := make([]store.RolePlayer, len(r.Players))
		for j, p := range r.Players {
			players[j] = store.RolePlayer{Role: p.Role, ID: concept.ID(p.ID)}
		}
		if _, _, err := st.PersistRelation(ctx, r.Type, players); err != nil {
			return nil, fmt.Errorf("relation %d (%s): %w", i, r.Type, err)
		}
	}
	rules, err := k.BuildRules()
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := r.Validate(st); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// applyTypes declares types so that every super type goes first, whatever
// the document order.
func (k *Knowledge) applyTypes(ctx context.Context, st store.Store) error {
	pending := append([]TypeSpec(nil), k.Types...)
	declared := map[string]bool{}
	for len(pending) > 0 {
		var rest []TypeSpec
		for _, ts := range pending {
			if ts.Super != "" && !declared[ts.Super] {
				if _, known := st.TypeOf(ts.Super); !known {
					rest = append(rest, ts)
					continue
				}
			}
			kind, err := concept.ParseKind(ts.Kind)
			if err != nil {
				return fmt.Errorf("type %q: %w: %v", ts.Label, internalerr.ErrInvalidInput, err)
			}
			t := schema.Type{Label: ts.Label, Kind: kind, Super: ts.Super, Roles: ts.Roles}
			if err := st.PutType(ctx, t); err != nil {
				return err
			}
			declared[ts.Label] = true
		}
		if len(rest) == len(pending) {
			return fmt.Errorf("type %q: super type %q: %w", rest[0].Label, rest[0].Super, internalerr.ErrNotFound)
		}
		pending = rest
	}
	return nil
}

func applyEntity(ctx context.Context, st store.Store, e EntitySpec) error {
	c, err := st.PutEntity(ctx, concept.ID(e.ID), e.Type)
	if err != nil {
		return fmt.Errorf("entity %q: %w", e.ID, err)
	}
	attrs := make([]string, 0, len(e.Attributes))
	for a := range e.Attributes {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	for _, attr := range attrs {
		values, ok := e.Attributes[attr].([]any)
		if !ok {
			values = []any{e.Attributes[attr]}
		}
		for _, v := range values {
			res, err := st.PutResource(ctx, attr, v)
			if err != nil {
				return fmt.Errorf("entity %q attribute %s: %w", e.ID, attr, err)
			}
			if err := st.PutHas(ctx, c.ID, res.ID); err != nil {
				return fmt.Errorf("entity %q attribute %s: %w", e.ID, attr, err)
			}
		}
	}
	return nil
}
