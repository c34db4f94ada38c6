package picker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewest_Pick(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	files := map[string]time.Duration{
		"old.csv":       -3 * time.Hour,
		"recent.csv.gz": -time.Hour,
		"notes.txt":     0,
	}
	for name, age := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, os.Chtimes(path, now.Add(age), now.Add(age)))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.csv"), 0o700))

	path, ok, err := Newest{Dir: dir}.Pick(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "recent.csv.gz"), path)

	path, ok, err = Newest{Dir: dir, Patterns: []string{"*.csv"}}.Pick(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "old.csv"), path)
}

func TestNewest_PickNothing(t *testing.T) {
	_, ok, err := Newest{}.Pick(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "no dir")

	_, ok, err = Newest{Dir: t.TempDir()}.Pick(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "empty dir")

	_, _, err = Newest{Dir: t.TempDir(), Patterns: []string{"[bad"}}.Pick(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Newest{Dir: t.TempDir()}.Pick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
