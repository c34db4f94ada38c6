package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "prefs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	fields, err := store.Load(ctx, CategoryWindow)
	require.NoError(t, err)
	assert.Empty(t, fields)

	err = store.Upsert(ctx, CategoryWindow, map[string]any{"maxed": true, "size": []int{1024, 768}})
	require.NoError(t, err)
	err = store.Upsert(ctx, CategoryWindow, map[string]any{"maxed": false})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, CategoryWindow, nil), "empty upsert is no-op")

	fields, err = store.Load(ctx, CategoryWindow)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"maxed": false, "size": []any{float64(1024), float64(768)}}, fields)

	fields, err = store.Load(ctx, CategorySearch)
	require.NoError(t, err)
	assert.Empty(t, fields, "categories are isolated")
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "prefs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	p := Defaults()
	p.Set(KeyTrackersURL, "https://example.com/trackers.txt")
	require.NoError(t, NewGate(store).Flush(context.Background(), p))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	loaded, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/trackers.txt", loaded.String(KeyTrackersURL))
	assert.Equal(t, int64(100), loaded.Int(KeySearchCount))
}

func TestSQLiteStore_BadPath(t *testing.T) {
	_, err := NewSQLiteStore("/no/such/dir/prefs.db")
	assert.Error(t, err)
}
