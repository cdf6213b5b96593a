package reasoner

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/unify"
)

// Stats describes one resolution.
type Stats struct {
	Iterations     int  // fixpoint rounds run
	Goals          int  // distinct tabled goals
	RuleExpansions int  // rule bodies resolved
	Lookups        int  // leaf lookups sent to the store
	CacheHits      int  // leaf lookups served from the cache
	Materialized   int  // relations newly written to the store
	Partial        bool // the iteration limit stopped the fixpoint
}

type resolution struct {
	answers *answer.Set
	stats   Stats
}

// goalPath is the set of goals being expanded on the current call path. It
// is copied on extension so parallel branches never share one.
type goalPath map[string]bool

func (p goalPath) with(key string) goalPath {
	out := make(goalPath, len(p)+1)
	for k := range p {
		out[k] = true
	}
	out[key] = true
	return out
}

// engine runs one resolution. The goal table lives across fixpoint rounds,
// the done set is reset every round.
type engine struct {
	s           *Session
	materialize bool
	cache       *lru.Cache[string, *answer.Set]

	mu      sync.Mutex
	table   map[string]*answer.Set
	done    map[string]bool
	grew    bool
	derived map[string]map[string]derivation // goal key -> relation key -> fact
	persist map[string]bool                  // goals reached from materializable atoms
	stats   Stats
}

func newEngine(s *Session, materialize bool) (*engine, error) {
	cache, err := lru.New[string, *answer.Set](s.cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &engine{
		s:           s,
		materialize: materialize,
		cache:       cache,
		table:       make(map[string]*answer.Set),
		done:        make(map[string]bool),
		derived:     make(map[string]map[string]derivation),
		persist:     make(map[string]bool),
	}, nil
}

func (e *engine) fixpoint(ctx context.Context, query *pattern.Pattern) (*resolution, error) {
	var result *answer.Set
	for iter := 1; ; iter++ {
		e.mu.Lock()
		e.done = make(map[string]bool)
		e.grew = false
		e.mu.Unlock()

		res, err := e.conjunction(ctx, query, answer.Unit(), goalPath{})
		if err != nil {
			return nil, err
		}
		result = res
		e.stats.Iterations = iter
		e.s.logger.Debug("Fixpoint round",
			zap.Int("iteration", iter),
			zap.Int("answers", res.Len()),
			zap.Bool("grew", e.grew))
		if !e.grew {
			break
		}
		if iter >= e.s.cfg.MaxIterations {
			e.stats.Partial = true
			e.s.logger.Warn("Iteration limit reached, returning partial answers",
				zap.Int("max_iterations", e.s.cfg.MaxIterations),
				zap.String("pattern", query.String()))
			break
		}
	}
	if e.materialize {
		if err := e.persistDerived(ctx); err != nil {
			return nil, err
		}
	}
	e.stats.Goals = len(e.table)
	return &resolution{answers: result.Project(query.OutputVars()), stats: e.stats}, nil
}

// conjunction extends every answer of input with the answers of p. Atoms
// run in pattern order, predicates filter as soon as their variable is
// bound, and disjunctions run last against the partial answers.
func (e *engine) conjunction(ctx context.Context, p *pattern.Pattern, input *answer.Set, path goalPath) (*answer.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	preds := p.Predicates()
	cur, err := e.seedIDs(ctx, p, input)
	if err != nil {
		return nil, err
	}
	cur = filterPredicates(cur, preds, false)

	for _, a := range p.Constraints() {
		if cur.Len() == 0 {
			return cur, nil
		}
		next, err := e.atom(ctx, a, cur, path)
		if err != nil {
			return nil, err
		}
		cur = filterPredicates(next, preds, false)
	}
	for _, branches := range p.Disjunctions() {
		if cur.Len() == 0 {
			return cur, nil
		}
		next, err := e.disjunction(ctx, branches, cur, path)
		if err != nil {
			return nil, err
		}
		cur = filterPredicates(next, preds, false)
	}
	return filterPredicates(cur, preds, true), nil
}

// seedIDs binds variables pinned by an id predicate before any lookup runs,
// so the store sees them as bound. Only variables the conjunction binds
// itself are seeded.
func (e *engine) seedIDs(ctx context.Context, p *pattern.Pattern, cur *answer.Set) (*answer.Set, error) {
	local := map[pattern.Variable]bool{}
	for _, a := range p.Constraints() {
		for _, v := range a.Vars() {
			local[v] = true
		}
	}
	for _, pr := range p.Predicates() {
		if pr.Kind != pattern.KindIDPredicate || !local[pr.Var] {
			continue
		}
		c, ok, err := e.s.store.Concept(ctx, pr.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return answer.NewSet(), nil
		}
		out := answer.NewSet()
		for _, a := range cur.Answers() {
			if _, bound := a[pr.Var]; !bound {
				a[pr.Var] = c
			}
			out.Add(a)
		}
		cur = out
	}
	return cur, nil
}

// filterPredicates drops answers failing a predicate on a bound variable.
// With strict set, an answer that leaves a predicate's variable unbound
// fails as well.
func filterPredicates(s *answer.Set, preds []pattern.Atom, strict bool) *answer.Set {
	if len(preds) == 0 {
		return s
	}
	return s.Filter(func(a answer.Answer) bool {
		for _, pr := range preds {
			c, ok := a[pr.Var]
			if !ok {
				if strict {
					return false
				}
				continue
			}
			if !store.MatchPredicate(pr, c) {
				return false
			}
		}
		return true
	})
}

func (e *engine) atom(ctx context.Context, a pattern.Atom, cur *answer.Set, path goalPath) (*answer.Set, error) {
	if len(e.s.rules.Candidates(a)) == 0 {
		return e.leaf(ctx, a, cur)
	}
	goal, err := e.goal(ctx, a, path)
	if err != nil {
		return nil, err
	}
	return cur.Join(goal), nil
}

// leaf evaluates an atom no rule can derive, one store lookup per partial
// answer.
func (e *engine) leaf(ctx context.Context, a pattern.Atom, cur *answer.Set) (*answer.Set, error) {
	out := answer.NewSet()
	for _, b := range cur.Answers() {
		found, err := e.lookup(ctx, a, b)
		if err != nil {
			return nil, err
		}
		for _, f := range found.Answers() {
			if merged, ok := b.Merge(f); ok {
				out.Add(merged)
			}
		}
	}
	return out, nil
}

func (e *engine) lookup(ctx context.Context, a pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	key := a.String() + "|" + bindings.Project(a.Vars()).Key()
	if hit, ok := e.cache.Get(key); ok {
		e.mu.Lock()
		e.stats.CacheHits++
		e.mu.Unlock()
		return hit, nil
	}
	res, err := e.s.store.Lookup(ctx, a, bindings)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, res)
	e.mu.Lock()
	e.stats.Lookups++
	e.mu.Unlock()
	return res, nil
}

// goal resolves a derivable atom through the table. A goal already resolved
// this round, or currently being expanded further up the call path, answers
// with what the table holds so far; the next round picks up the rest.
func (e *engine) goal(ctx context.Context, a pattern.Atom, path goalPath) (*answer.Set, error) {
	canon, toCanon := pattern.Canonical(a)
	key := canon.String()
	back, _ := toCanon.Inverse()

	e.mu.Lock()
	if e.materialize && a.Kind == pattern.KindRelation && a.Type != "" && a.IsUserDefined() {
		e.persist[key] = true
	}
	if e.done[key] || path[key] {
		known := e.table[key]
		e.mu.Unlock()
		if known == nil {
			return answer.NewSet(), nil
		}
		return known.Apply(back), nil
	}
	e.mu.Unlock()

	found, err := e.expand(ctx, canon, key, path.with(key))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	prev := e.table[key]
	merged := found
	if prev != nil {
		merged = prev.Union(found)
	}
	if merged.Len() > prev.Len() {
		e.grew = true
	}
	e.table[key] = merged
	e.done[key] = true
	e.mu.Unlock()
	return merged.Apply(back), nil
}

// expand answers a canonical goal: stored facts plus every rule body that
// unifies with it, projected onto the goal's variables.
func (e *engine) expand(ctx context.Context, canon pattern.Atom, key string, path goalPath) (*answer.Set, error) {
	out, err := e.lookup(ctx, canon, answer.Answer{})
	if err != nil {
		return nil, err
	}
	vars := canon.Vars()
	for _, r := range e.s.rules.Candidates(canon) {
		target, folds := foldTarget(r.Head, canon)
		unifiers, err := unify.All(r.Head, target, e.s.store)
		if err != nil {
			var ue *internalerr.UnificationError
			if !errors.As(err, &ue) {
				return nil, err
			}
			e.s.logger.Debug("Skipping rule", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		for _, u := range unifiers {
			body := r.Body.Apply(u)
			res, err := e.conjunction(ctx, body, answer.Unit(), path)
			if err != nil {
				return nil, err
			}
			if folds {
				res = bindBoth(res, canon.Var, canon.Value)
			}
			proj := res.Project(vars).Filter(func(a answer.Answer) bool { return len(a) == len(vars) })
			e.mu.Lock()
			e.stats.RuleExpansions++
			e.mu.Unlock()
			if e.materialize {
				e.record(key, r.Head, r.Name, u, proj)
			}
			out = out.Union(proj)
		}
	}
	return out, nil
}

// foldTarget adapts a goal with two distinct players to a rule head that
// names one variable twice, such as (knower: $x, known: $x). The head is
// unified with the goal's owner in both positions; bindBoth later copies
// the owner's concept to the value variable.
func foldTarget(head, goal pattern.Atom) (pattern.Atom, bool) {
	if head.Kind != pattern.KindRelation || head.Var != head.Value || goal.Var == goal.Value {
		return goal, false
	}
	goal.Value = goal.Var
	return goal, true
}

func bindBoth(s *answer.Set, owner, value pattern.Variable) *answer.Set {
	out := answer.NewSet()
	for _, a := range s.Answers() {
		c, ok := a[owner]
		if !ok {
			continue
		}
		a[value] = c
		out.Add(a)
	}
	return out
}

// disjunction evaluates every branch against the partial answers and unions
// the results. Branches run concurrently up to the configured parallelism.
func (e *engine) disjunction(ctx context.Context, branches []*pattern.Pattern, cur *answer.Set, path goalPath) (*answer.Set, error) {
	results := make([]*answer.Set, len(branches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.s.cfg.Parallelism)
	for i, br := range branches {
		i, br := i, br
		g.Go(func() error {
			res, err := e.conjunction(gctx, br, cur, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := answer.NewSet()
	for _, res := range results {
		out = out.Union(res)
	}
	return out, nil
}
