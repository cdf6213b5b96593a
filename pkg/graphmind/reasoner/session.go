// Package reasoner answers patterns against a store, folding in the facts
// inference rules derive.
//
// Resolution is tabled: each query atom with applicable rules becomes a goal
// whose answers are the stored facts plus the projected answers of every rule
// body that unifies with it. Goals are re-resolved in rounds until no goal
// gains an answer, so recursive rules reach their fixpoint. With
// materialization on, the derived relations are written back to the store.
package reasoner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/rule"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// Config tunes resolution.
type Config struct {
	MaxIterations int           `yaml:"max_iterations"`
	Parallelism   int           `yaml:"parallelism"` // concurrent disjunction branches
	CacheSize     int           `yaml:"cache_size"`  // leaf lookups kept per resolution
	Timeout       time.Duration `yaml:"timeout"`     // zero means no limit
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 50,
		Parallelism:   4,
		CacheSize:     4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Parallelism <= 0 {
		c.Parallelism = d.Parallelism
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	return c
}

// Session holds everything a resolution needs. It is safe for concurrent
// Resolve calls; each resolution has its own goal table.
type Session struct {
	id     string
	store  store.Store
	rules  *rule.Index
	cfg    Config
	logger *zap.Logger

	flight singleflight.Group // materialization, keyed by relation content

	mu     sync.Mutex
	closed bool
}

// New creates a session over st. rules may be nil for a session that only
// reads stored facts. A nil logger discards output.
func New(st store.Store, rules *rule.Index, cfg Config, logger *zap.Logger) (*Session, error) {
	if st == nil {
		return nil, fmt.Errorf("reasoner: nil store: %w", internalerr.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules == nil {
		var err error
		if rules, err = rule.NewIndex(nil, st); err != nil {
			return nil, err
		}
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		store:  st,
		rules:  rules,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("session", id)),
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Rules returns the session's rule index.
func (s *Session) Rules() *rule.Index { return s.rules }

// Close ends the session. The store stays open; it belongs to the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Resolve returns the answers to query, derived facts included. With
// materialize set, derived relations between user-defined variables are
// persisted to the store. The pattern is checked against the schema before
// anything runs; evaluation starts on the first call to Stream.Next.
func (s *Session) Resolve(ctx context.Context, query *pattern.Pattern, materialize bool) (*Stream, error) {
	return s.ResolveLimit(ctx, query, materialize, 0)
}

// ResolveLimit is Resolve stopping after limit answers. A limit of zero or
// less means no limit.
func (s *Session) ResolveLimit(ctx context.Context, query *pattern.Pattern, materialize bool, limit int) (*Stream, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, &internalerr.IllegalQueryStateError{Reason: "session is closed"}
	}
	if query == nil {
		return nil, &internalerr.IllegalQueryStateError{Reason: "no pattern provided"}
	}
	if err := checkTypes(s.store, query); err != nil {
		return nil, err
	}
	run := func() (*resolution, error) {
		return s.run(ctx, query, materialize)
	}
	return newStream(run, query.OutputVars(), limit), nil
}

func (s *Session) run(ctx context.Context, query *pattern.Pattern, materialize bool) (*resolution, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	e, err := newEngine(s, materialize)
	if err != nil {
		return nil, err
	}
	res, err := e.fixpoint(ctx, query)
	if err != nil {
		s.logger.Warn("Resolution failed", zap.Error(err), zap.String("pattern", query.String()))
		return nil, err
	}
	s.logger.Info("Resolution finished",
		zap.Int("answers", res.answers.Len()),
		zap.Int("iterations", res.stats.Iterations),
		zap.Int("goals", res.stats.Goals),
		zap.Int("materialized", res.stats.Materialized),
		zap.Bool("partial", res.stats.Partial),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

// checkTypes rejects patterns naming unknown types or constraining one
// variable with isa types that share no instance. Sibling disjunction
// branches are alternatives and are checked independently.
func checkTypes(types schema.Checker, p *pattern.Pattern) error {
	return checkIsa(types, p, map[pattern.Variable]string{})
}

func checkIsa(types schema.Checker, q *pattern.Pattern, isa map[pattern.Variable]string) error {
	for _, a := range q.Atoms() {
		if a.Type != "" {
			if _, ok := types.TypeOf(a.Type); !ok {
				return &internalerr.PatternError{Atom: a.String(), Reason: fmt.Sprintf("unknown type %q", a.Type)}
			}
		}
		if a.Kind != pattern.KindIsa {
			continue
		}
		if prev, ok := isa[a.Var]; ok && !schema.Compatible(types, prev, a.Type) {
			return &internalerr.PatternError{
				Atom:   a.String(),
				Var:    string(a.Var),
				Reason: fmt.Sprintf("conflicting isa constraints %q and %q", prev, a.Type),
			}
		}
		if prev, ok := isa[a.Var]; !ok || types.IsSubtype(a.Type, prev) {
			isa[a.Var] = a.Type
		}
	}
	for _, branches := range q.Disjunctions() {
		for _, br := range branches {
			scoped := make(map[pattern.Variable]string, len(isa))
			for v, t := range isa {
				scoped[v] = t
			}
			if err := checkIsa(types, br, scoped); err != nil {
				return err
			}
		}
	}
	return nil
}
