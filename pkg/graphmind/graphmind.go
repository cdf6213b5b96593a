package graphmind

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/graphmind/pkg/graphmind/aggregate"
	"github.com/cognicore/graphmind/pkg/graphmind/analytics"
	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoner"
	"github.com/cognicore/graphmind/pkg/graphmind/rule"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// Graphmind is the main knowledge graph facade
type Graphmind struct {
	store   store.Store
	session *reasoner.Session
	logger  *zap.Logger
}

// Options configures a Graphmind instance
type Options struct {
	Store    store.Store
	Rules    *rule.Index
	Reasoner reasoner.Config
	Logger   *zap.Logger
}

// New creates a Graphmind instance with the given dependencies
func New(opts Options) (*Graphmind, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("graphmind: store is required: %w", internalerr.ErrInvalidInput)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sess, err := reasoner.New(opts.Store, opts.Rules, opts.Reasoner, logger)
	if err != nil {
		return nil, err
	}
	return &Graphmind{store: opts.Store, session: sess, logger: logger}, nil
}

// Open loads configuration and knowledge through l and wires the result.
func Open(ctx context.Context, l *config.Loader, logger *zap.Logger) (*Graphmind, error) {
	comp, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	g, err := New(Options{
		Store:    comp.Store,
		Rules:    comp.Rules,
		Reasoner: comp.Config.Reasoner,
		Logger:   logger,
	})
	if err != nil {
		comp.Store.Close()
		return nil, err
	}
	return g, nil
}

// Close cleanly shuts down the session and the store
func (g *Graphmind) Close() error {
	if err := g.session.Close(); err != nil {
		return err
	}
	return g.store.Close()
}

// Store returns the underlying store.
func (g *Graphmind) Store() store.Store { return g.store }

// Rules returns the loaded rule index.
func (g *Graphmind) Rules() *rule.Index { return g.session.Rules() }

// QueryOptions controls a query.
type QueryOptions struct {
	Materialize bool // persist derived relations
	Limit       int  // zero means all answers
}

// Result holds a query's answers and how they were obtained.
type Result struct {
	Answers *answer.Set
	Vars    []pattern.Variable
	Stats   reasoner.Stats
}

// Query resolves q, derived facts included.
func (g *Graphmind) Query(ctx context.Context, q *pattern.Pattern, opts QueryOptions) (*Result, error) {
	stream, err := g.session.ResolveLimit(ctx, q, opts.Materialize, opts.Limit)
	if err != nil {
		return nil, err
	}
	answers, err := stream.Collect()
	if err != nil {
		return nil, err
	}
	return &Result{Answers: answers, Vars: stream.Vars(), Stats: stream.Stats()}, nil
}

// Aggregate resolves q and folds the values bound to v with op.
func (g *Graphmind) Aggregate(ctx context.Context, q *pattern.Pattern, op aggregate.Op, v pattern.Variable) (any, bool, error) {
	stream, err := g.session.Resolve(ctx, q, false)
	if err != nil {
		return nil, false, err
	}
	return aggregate.Run(op, stream, v)
}

// Path returns a shortest path between two stored instances.
func (g *Graphmind) Path(ctx context.Context, q analytics.PathQuery) ([]concept.Concept, bool, error) {
	return analytics.ShortestPath(ctx, g.store, q)
}
