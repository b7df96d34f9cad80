package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/types"
)

const bodyMapping = `{"properties": {"body": {"type": "text", "analyzer": "simple"}}}`

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "intervalq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, MigrateUp(database))
	return database
}

func newTestStore(t *testing.T) *MappingStore {
	t.Helper()
	queries, err := LoadQueries(openTestDB(t))
	require.NoError(t, err)
	return NewMappingStore(queries, mapping.StandardAnalyzer)
}

func TestMappingStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.Put(ctx, "docs", []byte(bodyMapping))
	require.NoError(t, err)
	assert.Equal(t, "docs", created.Name)
	assert.False(t, types.IndexIDTime(created.ID).IsZero(), "index id should be a UUIDv7")

	got, err := store.Get(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.JSONEq(t, bodyMapping, got.Mapping)

	// replacing keeps the id
	replaced, err := store.Put(ctx, "docs", []byte(`{"properties": {"title": {"type": "text"}}}`))
	require.NoError(t, err)
	assert.Equal(t, created.ID, replaced.ID)
	assert.Equal(t, created.CreatedAt, replaced.CreatedAt)

	r, err := store.Resolver(ctx, "docs")
	require.NoError(t, err)
	_, err = r.Resolve("title", "")
	require.NoError(t, err)
	_, err = r.Resolve("body", "")
	assert.True(t, errors.Is(err, types.ErrNoSuchField))
}

func TestMappingStore_UnknownIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrUnknownIndex))

	_, err = store.Resolver(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrUnknownIndex))

	err = store.Delete(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrUnknownIndex))
}

func TestMappingStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tests := []struct {
		name    string
		index   string
		mapping string
	}{
		{"empty index", "", bodyMapping},
		{"not json", "docs", `{"properties":`},
		{"unknown analyzer", "docs", `{"properties": {"body": {"type": "text", "analyzer": "klingon"}}}`},
		{"unknown search analyzer", "docs", `{"properties": {"body": {"type": "text", "search_analyzer": "klingon"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put(ctx, tt.index, []byte(tt.mapping))
			require.Error(t, err)
		})
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMappingStore_ListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := store.Put(ctx, name, []byte(bodyMapping))
		require.NoError(t, err)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)

	require.NoError(t, store.Delete(ctx, "mid"))
	_, err = store.Resolver(ctx, "mid")
	assert.True(t, errors.Is(err, types.ErrUnknownIndex))
}

func TestMappingStore_ResolverCached(t *testing.T) {
	ctx := context.Background()
	queries, err := LoadQueries(openTestDB(t))
	require.NoError(t, err)

	writer := NewMappingStore(queries, mapping.StandardAnalyzer)
	_, err = writer.Put(ctx, "docs", []byte(bodyMapping))
	require.NoError(t, err)

	// a second store over the same database loads from SQL once
	reader := NewMappingStore(queries, mapping.StandardAnalyzer)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := reader.Resolver(ctx, "docs")
			assert.NoError(t, err)
			assert.NotNil(t, r)
		}()
	}
	wg.Wait()

	first, err := reader.Resolver(ctx, "docs")
	require.NoError(t, err)
	second, err := reader.Resolver(ctx, "docs")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMappingStore_ClosedDatabase(t *testing.T) {
	database := openTestDB(t)
	queries, err := LoadQueries(database)
	require.NoError(t, err)
	store := NewMappingStore(queries, mapping.StandardAnalyzer)
	database.Close()

	_, err = store.Get(context.Background(), "docs")
	assert.True(t, errors.Is(err, types.ErrStore))
}
