package reasoner

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// derivation is a relation instance a rule produced.
type derivation struct {
	typ     string
	players []store.RolePlayer
}

// record keeps the relation facts a rule head derived for a goal. Heads
// without role labels take the roles declared on their relation type; a
// head whose type declares none cannot be persisted and is skipped.
func (e *engine) record(key string, head pattern.Atom, ruleName string, u pattern.Unifier, derived *answer.Set) {
	if head.Kind != pattern.KindRelation || derived.Len() == 0 {
		return
	}
	roles, ok := e.headRoles(head)
	if !ok {
		e.s.logger.Debug("Relation type declares no roles, not materializing",
			zap.String("rule", ruleName), zap.String("type", head.Type))
		return
	}
	owner, value := u.Apply(head.Var), u.Apply(head.Value)

	e.mu.Lock()
	defer e.mu.Unlock()
	facts := e.derived[key]
	if facts == nil {
		facts = make(map[string]derivation)
		e.derived[key] = facts
	}
	for _, a := range derived.Answers() {
		ps := [2]store.RolePlayer{
			{Role: roles[0], ID: a[owner].ID},
			{Role: roles[1], ID: a[value].ID},
		}
		facts[store.RelationKey(head.Type, ps)] = derivation{typ: head.Type, players: ps[:]}
	}
}

func (e *engine) headRoles(head pattern.Atom) ([2]string, bool) {
	if !head.Unordered() {
		return head.Roles, true
	}
	for label := head.Type; label != ""; {
		t, ok := e.s.store.TypeOf(label)
		if !ok {
			break
		}
		if len(t.Roles) == 2 {
			return [2]string{t.Roles[0], t.Roles[1]}, true
		}
		label = t.Super
	}
	return [2]string{}, false
}

// persistDerived writes the derived facts of every goal a materializable
// query atom reached. The store deduplicates by content and the session's
// flight group keeps concurrent resolutions from racing on one fact, so the
// order goals were resolved in does not change what ends up stored.
func (e *engine) persistDerived(ctx context.Context) error {
	facts := map[string]derivation{}
	for key := range e.persist {
		for rk, d := range e.derived[key] {
			facts[rk] = d
		}
	}
	keys := make([]string, 0, len(facts))
	for rk := range facts {
		keys = append(keys, rk)
	}
	sort.Strings(keys)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.s.cfg.Parallelism)
	for _, rk := range keys {
		rk := rk
		d := facts[rk]
		g.Go(func() error {
			// callers sharing a flight see one result; only the executing
			// engine counts the write
			_, err, _ := e.s.flight.Do(rk, func() (any, error) {
				_, created, err := e.s.store.PersistRelation(gctx, d.typ, d.players)
				if created {
					e.mu.Lock()
					e.stats.Materialized++
					e.mu.Unlock()
				}
				return created, err
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if e.stats.Materialized > 0 {
		e.s.logger.Debug("Materialized derived relations", zap.Int("count", e.stats.Materialized))
	}
	return nil
}
