package mapping

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "mappings.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "acme/widgets#42", Key("acme/widgets", 42))
	assert.NotEqual(t, Key("a/b", 12), Key("a/b1", 2))
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, ok, err := s.Get(context.Background(), "acme/widgets", 42)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}
}

func TestStore_PutAndGet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "acme/widgets", 42, "acme--widgets-42"))

			got, ok, err := s.Get(ctx, "acme/widgets", 42)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "acme--widgets-42", got)

			_, ok, err = s.Get(ctx, "acme/widgets", 43)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "acme/widgets", 42, "first"))
			require.NoError(t, s.Put(ctx, "acme/widgets", 42, "second"))

			got, ok, err := s.Get(ctx, "acme/widgets", 42)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "second", got)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			_ = s.Put(ctx, "acme/widgets", id, fmt.Sprintf("acme--widgets-%d", id))
		}(uint64(i))
		go func(id uint64) {
			defer wg.Done()
			_, _, _ = s.Get(ctx, "acme/widgets", id)
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	got, ok, err := s.Get(ctx, "acme/widgets", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "acme--widgets-7", got)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "my-org/my-repo", 7, "my-org--my-repo-7"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "my-org/my-repo", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "my-org--my-repo-7", got)
}
