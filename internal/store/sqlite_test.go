package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), ".cocowatch", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doc(path, content string) *Document {
	return &Document{
		Path:    path,
		Content: content,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
}

func TestSQLiteStore_UpsertAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Given: two indexed documents
	require.NoError(t, s.UpsertDocument(ctx, doc("main.go", "func main starts the coordinator")))
	require.NoError(t, s.UpsertDocument(ctx, doc("readme.md", "the coordinator watches a directory")))

	// When: searching for a shared term
	results, err := s.Search(ctx, "coordinator", 10)
	require.NoError(t, err)

	// Then: both documents match with positive scores and snippets
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
		assert.Contains(t, r.Snippet, "[coordinator]")
	}
}

func TestSQLiteStore_UpsertReplacesContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, doc("f.go", "alpha content")))
	require.NoError(t, s.UpsertDocument(ctx, doc("f.go", "beta content")))

	// Old content no longer matches
	results, err := s.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// New content does, and there is still one document
	results, err = s.Search(ctx, "beta", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f.go", results[0].Path)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}

func TestSQLiteStore_DeleteDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, doc("gone.go", "ephemeral")))
	require.NoError(t, s.DeleteDocument(ctx, "gone.go"))

	results, err := s.Search(ctx, "ephemeral", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting an unknown path is not an error
	require.NoError(t, s.DeleteDocument(ctx, "never-indexed.go"))
}

func TestSQLiteStore_ListPaths(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDocument(ctx, doc("b.go", "x")))
	require.NoError(t, s.UpsertDocument(ctx, doc("a.go", "x")))

	paths, err := s.ListPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, paths)
}

func TestSQLiteStore_Search_EdgeCases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, doc("f.go", "some indexed words")))

	t.Run("empty query returns no results", func(t *testing.T) {
		results, err := s.Search(ctx, "   ", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("operator characters are treated as text", func(t *testing.T) {
		results, err := s.Search(ctx, `indexed AND "words`, 10)
		require.NoError(t, err)
		// Must not error; quoting neutralizes FTS5 syntax
		_ = results
	})

	t.Run("limit is respected", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, s.UpsertDocument(ctx, doc(filepath.Join("many", string(rune('a'+i))+".go"), "shared term")))
		}
		results, err := s.Search(ctx, "shared", 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Empty store
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)
	assert.True(t, stats.LastIndexedAt.IsZero())

	// After indexing
	require.NoError(t, s.UpsertDocument(ctx, doc("a.go", "x")))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.False(t, stats.LastIndexedAt.IsZero())
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertDocument(ctx, doc("kept.go", "durable content")))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	results, err := s2.Search(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kept.go", results[0].Path)
}

func TestSQLiteStore_ClosedStoreErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	err := s.UpsertDocument(ctx, doc("x.go", "x"))
	require.Error(t, err)
	assert.Equal(t, cocoerrors.ErrCodeStoreUnavailable, cocoerrors.GetCode(err))
	assert.True(t, cocoerrors.IsRetryable(err))

	_, err = s.Search(ctx, "x", 10)
	assert.Error(t, err)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.UpsertDocument(context.Background(), doc("m.go", "memory resident")))
	results, err := s.Search(context.Background(), "memory", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
