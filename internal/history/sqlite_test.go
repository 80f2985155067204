package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_LoadUnknownSession(t *testing.T) {
	store := newTestStore(t)

	turns, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
}

func TestSQLiteStore_AppendKeepsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "q1", "a1"))
	require.NoError(t, store.Append(ctx, "s1", "q2", "a2"))
	require.NoError(t, store.Append(ctx, "s2", "other", "session"))

	turns, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Question)
	assert.Equal(t, "a1", turns[0].Answer)
	assert.Equal(t, 0, turns[0].Position)
	assert.Equal(t, "q2", turns[1].Question)
	assert.Equal(t, 1, turns[1].Position)
	assert.False(t, turns[1].CreatedAt.IsZero())

	other, err := store.Load(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLiteStore_ConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, "s", fmt.Sprintf("q%d", i), "a"))
		}(i)
	}
	wg.Wait()

	turns, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	for i, turn := range turns {
		assert.Equal(t, i, turn.Position)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s", "q", "a"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	turns, err := reopened.Load(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
