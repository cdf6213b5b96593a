package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
)

func TestLoadQuery(t *testing.T) {
	q, err := LoadQuery("testdata/query.yaml")
	require.NoError(t, err)
	p, err := q.Pattern()
	require.NoError(t, err)

	assert.Equal(t, []pattern.Variable{"p"}, p.Selected())
	atoms := p.Atoms()
	require.Len(t, atoms, 4)
	assert.Equal(t, pattern.Isa("p", "person"), atoms[0])
	assert.Equal(t, pattern.RolesRel("resides", "resident", "p", "residence", "c"), atoms[1])
	assert.Equal(t, pattern.HasValue("c", "name", "Cambridge"), atoms[2:])

	or := p.Disjunctions()
	require.Len(t, or, 1)
	require.Len(t, or[0], 2)
	assert.Equal(t, []pattern.Atom{pattern.Has("p", "age", "a"), pattern.Value("a", pattern.OpLt, 35)}, or[0][0].Atoms())
	assert.Equal(t, []pattern.Atom{pattern.ID("p", "bob")}, or[0][1].Atoms())
}

func TestQuerySpecErrors(t *testing.T) {
	tests := map[string]string{
		"two kinds in one atom": `match: [{isa: {var: x, type: city}, id: {var: x, id: uk}}]`,
		"empty atom":            `match: [{}]`,
		"rel with one var":      `match: [{rel: {type: knows, vars: [x]}}]`,
		"rel vars and players":  `match: [{rel: {type: knows, vars: [x, y], players: [{role: a, var: x}, {role: b, var: y}]}}]`,
		"has value and literal": `match: [{has: {var: x, type: name, value: n, literal: Bob}}]`,
		"unknown selection":     "match: [{isa: {var: x, type: city}}]\nselect: [y]",
		"empty pattern":         `match: []`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			var q QuerySpec
			require.NoError(t, yaml.Unmarshal([]byte(doc), &q))
			_, err := q.Pattern()
			assert.ErrorIs(t, err, internalerr.ErrPattern)
		})
	}
}

func TestBuildRules(t *testing.T) {
	k, err := ParseKnowledge([]byte(`
rules:
  - name: knows-self
    when:
      - isa: {var: x, type: person}
    then:
      rel: {type: knows, vars: [x, x]}
  - name: alias
    when:
      - has: {var: x, type: name, value: n}
    then:
      has: {var: x, type: alias, value: n}
`))
	require.NoError(t, err)
	rules, err := k.BuildRules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Body.AllowsSelfReference())
	assert.Equal(t, pattern.Rel("knows", "x", "x"), rules[0].Head)
	assert.Equal(t, pattern.Has("x", "alias", "n"), rules[1].Head)

	for name, doc := range map[string]string{
		"head with two atoms": `
rules:
  - name: bad
    when: [{isa: {var: x, type: person}}]
    then: {isa: {var: x, type: person}, rel: {type: knows, vars: [x, y]}}`,
		"isa head": `
rules:
  - name: bad
    when: [{isa: {var: x, type: person}}]
    then: {isa: {var: x, type: person}}`,
		"empty body": `
rules:
  - name: bad
    when: []
    then: {rel: {type: knows, vars: [x, y]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			k, err := ParseKnowledge([]byte(doc))
			require.NoError(t, err)
			_, err = k.BuildRules()
			assert.ErrorIs(t, err, internalerr.ErrRuleLoad)
		})
	}
}
