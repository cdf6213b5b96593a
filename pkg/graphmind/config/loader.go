package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/rule"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/store/memstore"
	"github.com/cognicore/graphmind/pkg/graphmind/store/sqlite"
)

// Loader loads the configuration and knowledge documents and constructs
// the components a reasoning session needs.
type Loader struct {
	ConfigPath     string
	KnowledgePaths []string
}

// Components holds all loaded components. The caller owns Store.
type Components struct {
	Config *Config
	Store  store.Store
	Rules  *rule.Index
}

// Load reads the configuration, opens the store it names, applies every
// knowledge document in order and indexes the collected rules.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	comp := &Components{}

	// Load configuration
	if l.ConfigPath != "" {
		cfg, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		comp.Config = cfg
	} else {
		cfg := Default()
		comp.Config = &cfg
	}

	st, err := OpenStore(ctx, comp.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	comp.Store = st

	// Load knowledge documents; rules from every document share one index
	var rules []rule.InferenceRule
	for _, path := range l.KnowledgePaths {
		k, err := LoadKnowledge(path)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("load knowledge %s: %w", path, err)
		}
		rs, err := k.Apply(ctx, st)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("apply knowledge %s: %w", path, err)
		}
		rules = append(rules, rs...)
	}

	idx, err := rule.NewIndex(rules, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("index rules: %w", err)
	}
	comp.Rules = idx
	return comp, nil
}

// OpenStore opens the backend named by the storage settings.
func OpenStore(ctx context.Context, s Storage) (store.Store, error) {
	switch strings.ToLower(s.Driver) {
	case "", "memory":
		return memstore.New(), nil
	case "sqlite":
		if s.Path == "" {
			return nil, fmt.Errorf("sqlite path: %w", internalerr.ErrInvalidConfig)
		}
		return sqlite.OpenSQLite(ctx, s.Path)
	}
	return nil, fmt.Errorf("storage driver %q: %w", s.Driver, internalerr.ErrInvalidConfig)
}
