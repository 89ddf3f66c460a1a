package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/vertexrag/internal/rag"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndUnchanged(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	doc := rag.RawDocument{ID: "d1", SourcePath: "/docs/a.txt", Title: "a", Format: rag.FormatText, ContentHash: "h1"}

	unchanged, err := s.Unchanged(ctx, doc)
	require.NoError(t, err)
	assert.False(t, unchanged, "unknown documents are never unchanged")

	require.NoError(t, s.Record(ctx, []Entry{EntryFor(doc, 3)}))

	unchanged, err = s.Unchanged(ctx, doc)
	require.NoError(t, err)
	assert.True(t, unchanged)

	doc.ContentHash = "h2"
	unchanged, err = s.Unchanged(ctx, doc)
	require.NoError(t, err)
	assert.False(t, unchanged)

	require.NoError(t, s.Record(ctx, []Entry{EntryFor(doc, 1)}))
	e, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "h2", e.ContentHash)
	assert.Equal(t, 1, e.ChunkCount)
	assert.WithinDuration(t, time.Now(), e.IndexedAt, time.Minute)
}

func TestListAndDelete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, []Entry{
		{DocID: "b", SourcePath: "/z.md", Format: "markdown", ContentHash: "x", ChunkCount: 2, IndexedAt: time.Now()},
		{DocID: "a", SourcePath: "/a.md", Format: "markdown", ContentHash: "y", ChunkCount: 1, IndexedAt: time.Now()},
	}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].DocID)
	assert.Equal(t, []string{"b-0", "b-1"}, list[1].ChunkIDs())

	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, err = s.Get(ctx, "b")
	assert.True(t, errors.Is(err, rag.ErrNotFound))
}

func TestRuns(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	require.NoError(t, s.RecordRun(ctx, "/docs", rag.RunSummary{
		RunID: "r1", Attempted: 10, Succeeded: 10, StartedAt: start, FinishedAt: start.Add(time.Second),
		Batches: []rag.BatchOutcome{{Attempted: 10, Succeeded: 10}},
	}, nil))
	require.NoError(t, s.RecordRun(ctx, "/docs", rag.RunSummary{
		RunID: "r2", Attempted: 5, Succeeded: 0, StartedAt: start.Add(30 * time.Second), FinishedAt: start.Add(31 * time.Second),
	}, errors.New("index not ready")))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, "index not ready", runs[0].Error)
	assert.Equal(t, 1, runs[1].Batches)
}
