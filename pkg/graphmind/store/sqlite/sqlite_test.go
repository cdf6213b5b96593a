package sqlite

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/graphmind/pkg/graphmind/answer"
	"github.com/cognicore/graphmind/pkg/graphmind/concept"
	"github.com/cognicore/graphmind/pkg/graphmind/pattern"
	"github.com/cognicore/graphmind/pkg/graphmind/store"
	"github.com/cognicore/graphmind/pkg/graphmind/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "graph.db"))
		require.NoError(t, err)
		return st
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	storetest.Seed(t, st)
	first, created, err := st.PersistRelation(ctx, "located-in", []store.RolePlayer{
		{Role: "part", ID: "cambridge"},
		{Role: "whole", ID: "uk"},
	})
	require.NoError(t, err)
	require.True(t, created)
	name, err := st.PutResource(ctx, "name", "Cambridge")
	require.NoError(t, err)
	require.NoError(t, st.PutHas(ctx, "cambridge", name.ID))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	// the hierarchy is rebuilt from the types table
	assert.True(t, st.IsSubtype("city", "place"))
	typ, ok := st.TypeOf("located-in")
	require.True(t, ok)
	assert.Equal(t, []string{"part", "whole"}, typ.Roles)

	again, created, err := st.PersistRelation(ctx, "located-in", []store.RolePlayer{
		{Role: "whole", ID: "uk"},
		{Role: "part", ID: "cambridge"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	res, err := st.Lookup(ctx, pattern.Has("x", "name", "n"), answer.Answer{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	a := res.Answers()[0]
	assert.Equal(t, concept.ID("cambridge"), a["x"].ID)
	assert.Equal(t, "Cambridge", a["n"].Value)
}

func TestSQLiteConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer st.Close()
	storetest.Seed(t, st)

	pairs := [][2]concept.ID{
		{"cambridge", "uk"},
		{"paris", "uk"},
		{"cambridge", "paris"},
		{"uk", "cambridge"},
	}
	var created atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 32; i++ {
		pair := pairs[i%len(pairs)]
		g.Go(func() error {
			_, ok, err := st.PersistRelation(gctx, "located-in", []store.RolePlayer{
				{Role: "part", ID: pair[0]},
				{Role: "whole", ID: pair[1]},
			})
			if ok {
				created.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(len(pairs)), created.Load())

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(pairs), stats.Relations)
}

func TestSQLitePragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	opened, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer opened.Close()
	st := opened.(*sqliteStore)

	// hold several connections at once so the pool cannot hand back the same one
	for i := 0; i < 3; i++ {
		conn, err := st.db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var fk, timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 1, fk, "connection %d", i)
		assert.Equal(t, 5000, timeout, "connection %d", i)
	}
}
