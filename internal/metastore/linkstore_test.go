package metastore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/bi-genie/internal/metastore"
	"github.com/Rrens/bi-genie/internal/metastore/sqlite"
)

func newSQLiteStore(t *testing.T) (*metastore.LinkStore, *metastore.Router) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "superset.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE dashboard_slices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dashboard_id INTEGER,
		slice_id INTEGER,
		CONSTRAINT uq_dashboard_slice UNIQUE (dashboard_id, slice_id)
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	router := metastore.NewRouter()
	router.RegisterAdapter("sqlite", sqlite.NewAdapter)
	t.Cleanup(router.CloseAll)

	return metastore.NewLinkStore(router, "sqlite", metastore.ConnectionConfig{DSN: path}), router
}

func TestLinkStore_LinkIsIdempotent(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	created, err := store.Link(ctx, 10, 101)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Link(ctx, 10, 101)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = store.Link(ctx, 10, 102)
	require.NoError(t, err)
	assert.True(t, created)

	links, err := store.Links(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102}, links)
}

func TestLinkStore_ConcurrentLinksOfSamePair(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = store.Link(ctx, 20, 201)
		}()
	}
	wg.Wait()

	createdCount := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	links, err := store.Links(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, []int{201}, links)
}

func TestLinkStore_Ping(t *testing.T) {
	store, router := newSQLiteStore(t)

	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, 1, router.PoolSize())
}

func TestRouter_UnsupportedDriver(t *testing.T) {
	router := metastore.NewRouter()
	router.RegisterAdapter("sqlite", sqlite.NewAdapter)

	_, err := router.GetAdapter(context.Background(), "oracle", metastore.ConnectionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported metastore driver")
	assert.Equal(t, []string{"sqlite"}, router.SupportedDrivers())
}

func TestSQLiteAdapter_DuplicateInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE dashboard_slices (dashboard_id INTEGER, slice_id INTEGER, UNIQUE (dashboard_id, slice_id))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	adapter := sqlite.NewAdapter()
	require.NoError(t, adapter.Connect(context.Background(), metastore.ConnectionConfig{DSN: "sqlite://" + path}))
	defer adapter.Close()

	require.NoError(t, adapter.InsertLink(context.Background(), 1, 2))
	err = adapter.InsertLink(context.Background(), 1, 2)
	assert.ErrorIs(t, err, metastore.ErrDuplicateLink)
}
