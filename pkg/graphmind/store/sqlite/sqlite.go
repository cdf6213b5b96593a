package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
)

// sqliteStore implements the Store interface using SQLite. The type
// hierarchy is mirrored in memory so subtype checks never hit the database.
// Reads use the whole pool; writes go through one at a time.
type sqliteStore struct {
	db     *sql.DB
	schema *schema.Schema
	wmu    sync.Mutex
}

// dsnParams apply to every pooled connection. Transactions take the write
// lock at BEGIN so a read-then-write never has to upgrade under WAL.
const dsnParams = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + dsnParams
}

// OpenSQLite opens a SQLite database with WAL mode enabled and loads its
// schema types.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", path, internalerr.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w: %v", path, internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &sqliteStore{db: db, schema: schema.New()}
	if err := s.loadTypes(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS types (
	label TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	super TEXT NOT NULL DEFAULT '',
	roles TEXT NOT NULL DEFAULT '[]',
	depth INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	type TEXT NOT NULL,
	value TEXT,
	rkey TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS relations (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	role_a TEXT NOT NULL,
	player_a TEXT NOT NULL,
	role_b TEXT NOT NULL,
	player_b TEXT NOT NULL,
	rkey TEXT UNIQUE NOT NULL,
	FOREIGN KEY(id) REFERENCES concepts(id) ON DELETE CASCADE,
	FOREIGN KEY(player_a) REFERENCES concepts(id) ON DELETE CASCADE,
	FOREIGN KEY(player_b) REFERENCES concepts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS has (
	owner TEXT NOT NULL,
	resource TEXT NOT NULL,
	PRIMARY KEY(owner, resource),
	FOREIGN KEY(owner) REFERENCES concepts(id) ON DELETE CASCADE,
	FOREIGN KEY(resource) REFERENCES concepts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_concepts_type ON concepts(type);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(type);
CREATE INDEX IF NOT EXISTS idx_relations_player_a ON relations(player_a);
CREATE INDEX IF NOT EXISTS idx_relations_player_b ON relations(player_b);
CREATE INDEX IF NOT EXISTS idx_has_resource ON has(resource);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) loadTypes(ctx context.Context) error {
	// depth order guarantees super types are declared first
	rows, err := s.db.QueryContext(ctx, `SELECT label, kind, super, roles FROM types ORDER BY depth, label`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var label, kind, super, roles string
		if err := rows.Scan(&label, &kind, &super, &roles); err != nil {
			return err
		}
		k, err := concept.ParseKind(kind)
		if err != nil {
			return err
		}
		t := schema.Type{Label: label, Kind: k, Super: super}
		if err := json.Unmarshal([]byte(roles), &t.Roles); err != nil {
			return fmt.Errorf("type %q roles: %w", label, err)
		}
		if err := s.schema.Put(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqliteStore) TypeOf(label string) (schema.Type, bool) { return s.schema.TypeOf(label) }

func (s *sqliteStore) IsSubtype(sub, super string) bool { return s.schema.IsSubtype(sub, super) }

func (s *sqliteStore) Subtypes(label string) []string { return s.schema.Subtypes(label) }

// PutType declares a type in memory first, so hierarchy errors never reach
// the table.
func (s *sqliteStore) PutType(ctx context.Context, t schema.Type) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.schema.Put(t); err != nil {
		return err
	}
	roles, err := json.Marshal(t.Roles)
	if err != nil {
		return err
	}
	depth := 0
	for cur := t.Super; cur != ""; {
		depth++
		sup, _ := s.schema.TypeOf(cur)
		cur = sup.Super
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO types(label, kind, super, roles, depth) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(label) DO UPDATE SET kind = excluded.kind, super = excluded.super, roles = excluded.roles, depth = excluded.depth`,
		t.Label, t.Kind.String(), t.Super, string(roles), depth)
	return err
}

func (s *sqliteStore) PutEntity(ctx context.Context, id concept.ID, typ string) (concept.Concept, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.requireKind(typ, concept.KindEntity); err != nil {
		return concept.Concept{}, err
	}
	if id == "" {
		id = concept.NewID()
	}
	existing, found, err := s.Concept(ctx, id)
	if err != nil {
		return concept.Concept{}, err
	}
	if found {
		if existing.Type != typ {
			return concept.Concept{}, fmt.Errorf("entity %s already has type %q: %w", id, existing.Type, internalerr.ErrDuplicate)
		}
		return existing, nil
	}
	c := concept.Concept{ID: id, Kind: concept.KindEntity, Type: typ}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO concepts(id, kind, type) VALUES (?, ?, ?)`,
		string(c.ID), c.Kind.String(), c.Type); err != nil {
		return concept.Concept{}, err
	}
	return c, nil
}

func (s *sqliteStore) PutResource(ctx context.Context, typ string, value any) (concept.Concept, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.requireKind(typ, concept.KindResource); err != nil {
		return concept.Concept{}, err
	}
	value = concept.NormalizeValue(value)
	key := store.ResourceKey(typ, value)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO concepts(id, kind, type, value, rkey) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(rkey) DO NOTHING`,
		string(concept.NewID()), concept.KindResource.String(), typ, concept.EncodeValue(value), key)
	if err != nil {
		return concept.Concept{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, type, value FROM concepts WHERE rkey = ?`, key)
	return scanConcept(row)
}

func (s *sqliteStore) PutHas(ctx context.Context, owner, resource concept.ID) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, ok, err := s.Concept(ctx, owner); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("owner %s: %w", owner, internalerr.ErrNotFound)
	}
	res, ok, err := s.Concept(ctx, resource)
	if err != nil {
		return err
	}
	if !ok || res.Kind != concept.KindResource {
		return fmt.Errorf("resource %s: %w", resource, internalerr.ErrNotFound)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO has(owner, resource) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		string(owner), string(resource))
	return err
}

func (s *sqliteStore) PersistRelation(ctx context.Context, typ string, players []store.RolePlayer) (concept.Concept, bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	ps, err := store.ValidateRelation(s.schema, typ, players)
	if err != nil {
		return concept.Concept{}, false, err
	}
	key := store.RelationKey(typ, ps)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return concept.Concept{}, false, err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM relations WHERE rkey = ?`, key).Scan(&existing)
	switch {
	case err == nil:
		return concept.Concept{ID: concept.ID(existing), Kind: concept.KindRelation, Type: typ}, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return concept.Concept{}, false, err
	}

	for _, p := range ps {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM concepts WHERE id = ?`, string(p.ID)).Scan(&n); err != nil {
			return concept.Concept{}, false, err
		}
		if n == 0 {
			return concept.Concept{}, false, fmt.Errorf("role player %s: %w", p.ID, internalerr.ErrNotFound)
		}
	}

	c := concept.Concept{ID: concept.NewID(), Kind: concept.KindRelation, Type: typ}
	if _, err := tx.ExecContext(ctx, `INSERT INTO concepts(id, kind, type) VALUES (?, ?, ?)`,
		string(c.ID), c.Kind.String(), typ); err != nil {
		return concept.Concept{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO relations(id, type, role_a, player_a, role_b, player_b, rkey) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), typ, ps[0].Role, string(ps[0].ID), ps[1].Role, string(ps[1].ID), key); err != nil {
		return concept.Concept{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return concept.Concept{}, false, err
	}
	return c, true, nil
}

func (s *sqliteStore) Concept(ctx context.Context, id concept.ID) (concept.Concept, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, type, value FROM concepts WHERE id = ?`, string(id))
	c, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return concept.Concept{}, false, nil
	}
	if err != nil {
		return concept.Concept{}, false, err
	}
	return c, true, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{Types: len(s.schema.All())}
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM concepts GROUP BY kind`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return st, err
		}
		switch kind {
		case concept.KindEntity.String():
			st.Entities = n
		case concept.KindRelation.String():
			st.Relations = n
		case concept.KindResource.String():
			st.Resources = n
		}
	}
	return st, rows.Err()
}

func (s *sqliteStore) Lookup(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	switch atom.Kind {
	case pattern.KindIsa:
		return s.lookupIsa(ctx, atom, bindings)
	case pattern.KindRelation:
		return s.lookupRelation(ctx, atom, bindings)
	case pattern.KindResource:
		return s.lookupResource(ctx, atom, bindings)
	case pattern.KindIDPredicate, pattern.KindValuePredicate:
		return s.lookupPredicate(ctx, atom, bindings)
	}
	return nil, fmt.Errorf("lookup %s: %w", atom, internalerr.ErrInvalidInput)
}

func (s *sqliteStore) lookupIsa(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	out := answer.NewSet()
	if b, ok := bindings[atom.Var]; ok {
		c, found, err := s.Concept(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if found && store.TypeMatches(s.schema, c.Type, atom.Type) {
			out.Add(answer.Answer{atom.Var: c})
		}
		return out, nil
	}
	types := s.schema.Subtypes(atom.Type)
	if len(types) == 0 {
		return out, nil
	}
	cs, err := s.queryConcepts(ctx,
		`SELECT id, kind, type, value FROM concepts WHERE type IN (`+placeholders(len(types))+`)`,
		stringArgs(types)...)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		out.Add(answer.Answer{atom.Var: c})
	}
	return out, nil
}

func (s *sqliteStore) lookupRelation(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	var where []string
	var args []any
	if atom.Type != "" {
		types := s.schema.Subtypes(atom.Type)
		if len(types) == 0 {
			return answer.NewSet(), nil
		}
		where = append(where, "type IN ("+placeholders(len(types))+")")
		args = append(args, stringArgs(types)...)
	}
	for _, v := range []pattern.Variable{atom.Var, atom.Value} {
		if b, ok := bindings[v]; ok {
			where = append(where, "(player_a = ? OR player_b = ?)")
			args = append(args, string(b.ID), string(b.ID))
		}
	}
	q := `SELECT id, type, role_a, player_a, role_b, player_b FROM relations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var rels []store.Relation
	for rows.Next() {
		var id, typ, roleA, playerA, roleB, playerB string
		if err := rows.Scan(&id, &typ, &roleA, &playerA, &roleB, &playerB); err != nil {
			rows.Close()
			return nil, err
		}
		rels = append(rels, store.Relation{
			ID:   concept.ID(id),
			Type: typ,
			Players: [2]store.RolePlayer{
				{Role: roleA, ID: concept.ID(playerA)},
				{Role: roleB, ID: concept.ID(playerB)},
			},
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cache := map[concept.ID]concept.Concept{}
	out := answer.NewSet()
	for _, rel := range rels {
		var players [2]concept.Concept
		for i, p := range rel.Players {
			c, err := s.cachedConcept(ctx, cache, p.ID)
			if err != nil {
				return nil, err
			}
			players[i] = c
		}
		for _, a := range store.MatchRelation(s.schema, atom, rel, players, bindings) {
			out.Add(a)
		}
	}
	return out, nil
}

func (s *sqliteStore) lookupResource(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	types := s.schema.Subtypes(atom.Type)
	if len(types) == 0 {
		return answer.NewSet(), nil
	}
	q := `SELECT h.owner, h.resource FROM has h JOIN concepts c ON c.id = h.resource
WHERE c.type IN (` + placeholders(len(types)) + `)`
	args := stringArgs(types)
	if b, ok := bindings[atom.Var]; ok {
		q += " AND h.owner = ?"
		args = append(args, string(b.ID))
	}
	if b, ok := bindings[atom.Value]; ok {
		q += " AND h.resource = ?"
		args = append(args, string(b.ID))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var pairs [][2]concept.ID
	for rows.Next() {
		var owner, res string
		if err := rows.Scan(&owner, &res); err != nil {
			rows.Close()
			return nil, err
		}
		pairs = append(pairs, [2]concept.ID{concept.ID(owner), concept.ID(res)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cache := map[concept.ID]concept.Concept{}
	out := answer.NewSet()
	for _, p := range pairs {
		if atom.Var == atom.Value && p[0] != p[1] {
			continue
		}
		owner, err := s.cachedConcept(ctx, cache, p[0])
		if err != nil {
			return nil, err
		}
		res, err := s.cachedConcept(ctx, cache, p[1])
		if err != nil {
			return nil, err
		}
		out.Add(answer.Answer{atom.Var: owner, atom.Value: res})
	}
	return out, nil
}

func (s *sqliteStore) lookupPredicate(ctx context.Context, atom pattern.Atom, bindings answer.Answer) (*answer.Set, error) {
	var cs []concept.Concept
	switch b, bound := bindings[atom.Var]; {
	case bound:
		c, ok, err := s.Concept(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			cs = append(cs, c)
		}
	case atom.Kind == pattern.KindIDPredicate:
		c, ok, err := s.Concept(ctx, atom.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			cs = append(cs, c)
		}
	default:
		var err error
		cs, err = s.queryConcepts(ctx, `SELECT id, kind, type, value FROM concepts WHERE kind = ?`, concept.KindResource.String())
		if err != nil {
			return nil, err
		}
	}
	out := answer.NewSet()
	for _, c := range cs {
		if store.MatchPredicate(atom, c) {
			out.Add(answer.Answer{atom.Var: c})
		}
	}
	return out, nil
}

func (s *sqliteStore) cachedConcept(ctx context.Context, cache map[concept.ID]concept.Concept, id concept.ID) (concept.Concept, error) {
	if c, ok := cache[id]; ok {
		return c, nil
	}
	c, ok, err := s.Concept(ctx, id)
	if err != nil {
		return concept.Concept{}, err
	}
	if !ok {
		return concept.Concept{}, fmt.Errorf("concept %s: %w", id, internalerr.ErrNotFound)
	}
	cache[id] = c
	return c, nil
}

func (s *sqliteStore) queryConcepts(ctx context.Context, q string, args ...any) ([]concept.Concept, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []concept.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConcept(row scanner) (concept.Concept, error) {
	var id, kind, typ string
	var value sql.NullString
	if err := row.Scan(&id, &kind, &typ, &value); err != nil {
		return concept.Concept{}, err
	}
	k, err := concept.ParseKind(kind)
	if err != nil {
		return concept.Concept{}, err
	}
	c := concept.Concept{ID: concept.ID(id), Kind: k, Type: typ}
	if value.Valid {
		v, err := concept.DecodeValue(value.String)
		if err != nil {
			return concept.Concept{}, err
		}
		c.Value = v
	}
	return c, nil
}

func (s *sqliteStore) requireKind(typ string, kind concept.Kind) error {
	t, ok := s.schema.TypeOf(typ)
	if !ok {
		return fmt.Errorf("type %q: %w", typ, internalerr.ErrNotFound)
	}
	if t.Kind != kind {
		return fmt.Errorf("type %q is a %s, not a %s: %w", typ, t.Kind, kind, internalerr.ErrInvalidInput)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
