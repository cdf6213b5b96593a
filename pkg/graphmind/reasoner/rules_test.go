package reasoner_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoner"
	"github.com/cognicore/graphmind/pkg/graphmind/rule"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/store/sqlite"
)

// withExtraRules reloads the index with the rules of testdata/extra.yaml
// added to the geography ones.
func withExtraRules(t *testing.T, st store.Store, geo *rule.Index) *rule.Index {
	t.Helper()
	k, err := config.LoadKnowledge("testdata/extra.yaml")
	require.NoError(t, err)
	extra, err := k.Apply(context.Background(), st)
	require.NoError(t, err)
	idx, err := rule.NewIndex(append(geo.Rules(), extra...), st)
	require.NoError(t, err)
	return idx
}

// pairs renders answers as "a-b" strings over two variables.
func pairs(s *answer.Set, a, b pattern.Variable) []string {
	var out []string
	for _, ans := range s.Answers() {
		out = append(out, fmt.Sprintf("%s-%s", ans[a].ID, ans[b].ID))
	}
	return out
}

func TestReflexiveRuleHead(t *testing.T) {
	q := pattern.MustNew([]pattern.Atom{pattern.RolesRel("knows", "knower", "a", "known", "b")})
	want := []string{"alice-alice", "alice-bob", "bob-bob", "carol-carol", "dave-dave"}

	backends(t, func(t *testing.T, st store.Store, geo *rule.Index) {
		rules := withExtraRules(t, st, geo)
		s := newSession(t, st, rules, reasoner.Config{})

		res, _ := resolve(t, s, q, false)
		assert.ElementsMatch(t, want, pairs(res, "a", "b"))

		self, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("knows", "knower", "a", "known", "b"),
			pattern.ID("b", "carol"),
		}), false)
		assert.Equal(t, []string{"carol-carol"}, pairs(self, "a", "b"))

		_, stats := resolve(t, s, q, true)
		assert.Equal(t, 4, stats.Materialized)
		stored, _ := resolve(t, newSession(t, st, nil, reasoner.Config{}), q, false)
		assert.ElementsMatch(t, want, pairs(stored, "a", "b"))
	})
}

func TestDisjunctiveRuleBody(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store, geo *rule.Index) {
		s := newSession(t, st, withExtraRules(t, st, geo), reasoner.Config{})

		res, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("near", "here", "x", "there", "y"),
			pattern.ID("x", "england"),
		}), false)
		assert.ElementsMatch(t, []string{"cambridge", "europe", "london", "uk"}, column(res, "y"))
	})
}

func TestResourceRuleHead(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store, geo *rule.Index) {
		s := newSession(t, st, withExtraRules(t, st, geo), reasoner.Config{})

		res, stats := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.Has("x", "city-name", "n"),
		}), false)
		assert.ElementsMatch(t, []string{"cambridge", "geneva", "london", "paris"}, column(res, "x"))
		for _, a := range res.Answers() {
			assert.Equal(t, a["x"].ID, concept.ID(strings.ToLower(a["n"].Value.(string))))
		}
		assert.Positive(t, stats.RuleExpansions)
	})
}

func TestSubtypeRuleHead(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store, geo *rule.Index) {
		s := newSession(t, st, withExtraRules(t, st, geo), reasoner.Config{})

		// the seated-in rule answers located-in queries too
		res, _ := resolve(t, s, pattern.MustNew(pattern.Conj(
			[]pattern.Atom{pattern.RolesRel("located-in", "part", "x", "whole", "y")},
			pattern.HasValue("x", "name", "Geneva"),
		)), false)
		assert.Equal(t, []string{"europe"}, column(res, "y"))

		seated, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("seated-in", "part", "x", "whole", "y"),
		}), false)
		assert.Equal(t, []string{"geneva-europe"}, pairs(seated, "x", "y"))

		// a supertype fact is not a subtype fact
		cambridge, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.RolesRel("seated-in", "part", "x", "whole", "y"),
			pattern.ID("x", "cambridge"),
		}), false)
		assert.Equal(t, 0, cambridge.Len())
	})
}

func TestUnorderedRelationQuery(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store, rules *rule.Index) {
		s := newSession(t, st, rules, reasoner.Config{})

		// stored only: both orientations of the one knows fact
		knows, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{pattern.Rel("knows", "a", "b")}), false)
		assert.ElementsMatch(t, []string{"alice-bob", "bob-alice"}, pairs(knows, "a", "b"))

		// derived: uk as part and as whole
		uk, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.Rel("located-in", "x", "y"),
			pattern.ID("x", "uk"),
		}), false)
		assert.ElementsMatch(t, []string{"cambridge", "england", "europe", "london"}, column(uk, "y"))
	})
}

func TestUntypedRelationQuery(t *testing.T) {
	backends(t, func(t *testing.T, st store.Store, rules *rule.Index) {
		s := newSession(t, st, rules, reasoner.Config{})

		res, _ := resolve(t, s, pattern.MustNew([]pattern.Atom{
			pattern.Rel("", "x", "y"),
			pattern.ID("x", "alice"),
		}), false)
		// stored and derived residences plus the knows fact
		assert.ElementsMatch(t, []string{"bob", "cambridge", "england", "europe", "uk"}, column(res, "y"))
	})
}

func TestSQLiteMaterializationUnderContention(t *testing.T) {
	for i := 0; i < 10; i++ {
		st, err := sqlite.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "geo.db"))
		require.NoError(t, err)
		rules := loadGeo(t, st)
		s := newSession(t, st, rules, reasoner.Config{Parallelism: 8})

		_, stats := resolve(t, s, cambridgeIn(), true)
		assert.Equal(t, 6, stats.Materialized, "run %d", i)
		require.NoError(t, st.Close())
	}
}
