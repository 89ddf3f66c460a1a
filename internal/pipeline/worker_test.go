package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/vertexrag/internal/chunker"
	"github.com/dgallion1/vertexrag/internal/loader"
	"github.com/dgallion1/vertexrag/internal/manifest"
	"github.com/dgallion1/vertexrag/internal/parser"
	"github.com/dgallion1/vertexrag/internal/rag"
	"github.com/dgallion1/vertexrag/internal/vectorstore"
)

// lengthEmbedder produces a two-dimensional vector from the text length.
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text))}, nil
}

func (e lengthEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type workerFixture struct {
	dir      string
	index    *vectorstore.MemoryIndex
	manifest *manifest.Store
	worker   *Worker
}

func newWorkerFixture(t *testing.T, writer ChunkWriter) *workerFixture {
	t.Helper()
	log := discardLogger()

	mf, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mf.Close() })

	splitter, err := chunker.New(chunker.Config{ChunkSize: 50, ChunkOverlap: 10}, log)
	require.NoError(t, err)

	idx := vectorstore.NewMemoryIndex()
	store := vectorstore.New(lengthEmbedder{}, idx, vectorstore.WithLogger(log))
	if writer == nil {
		writer = store
	}

	w := NewWorker(loader.New(parser.Options{}, log), splitter, writer, store, mf,
		Defaults{Extensions: []string{".txt", ".md"}, LoaderWorkers: 2, BatchSize: 4}, log)
	return &workerFixture{dir: t.TempDir(), index: idx, manifest: mf, worker: w}
}

func (f *workerFixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func (f *workerFixture) run(t *testing.T, req IngestRequest) (*Job, error) {
	t.Helper()
	if req.SourceDir == "" {
		req.SourceDir = f.dir
	}
	job := NewJob(req)
	err := f.worker.Process(context.Background(), job)
	return job, err
}

func (f *workerFixture) indexedChunks(t *testing.T) int {
	t.Helper()
	entries, err := f.manifest.List(context.Background())
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		n += e.ChunkCount
	}
	return n
}

func TestWorker_IngestDirectory(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.write(t, "a.txt", strings.Repeat("alpha beta gamma delta. ", 10))
	f.write(t, "b.md", "# Notes\n\nA short markdown note.")
	f.write(t, "skip.csv", "a,b\n1,2")

	job, err := f.run(t, IngestRequest{})
	require.NoError(t, err)

	snap := job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Progress.FilesLoaded)
	assert.Greater(t, snap.Progress.TotalChunks, 2)
	assert.Equal(t, snap.Progress.TotalChunks, snap.Progress.ChunksIndexed)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, snap.Progress.TotalChunks, snap.Summary.Succeeded)

	assert.Equal(t, snap.Progress.TotalChunks, f.index.Len())
	assert.Equal(t, f.index.Len(), f.indexedChunks(t))

	runs, err := f.manifest.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, f.dir, runs[0].SourceDir)
}

func TestWorker_SkipsUnchanged(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.write(t, "a.txt", "first document")
	f.write(t, "b.txt", "second document")

	_, err := f.run(t, IngestRequest{})
	require.NoError(t, err)

	job, err := f.run(t, IngestRequest{})
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.Equal(t, StatusUnchanged, snap.Status)
	assert.Equal(t, 2, snap.Progress.FilesUnchanged)

	f.write(t, "b.txt", "second document, revised")
	job, err = f.run(t, IngestRequest{})
	require.NoError(t, err)
	snap = job.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.Progress.FilesUnchanged)
	assert.Equal(t, 1, snap.Progress.TotalChunks)

	job, err = f.run(t, IngestRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, job.Snapshot().Progress.TotalChunks, "force re-indexes unchanged documents")
}

func TestWorker_RemovesStaleChunks(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.write(t, "a.txt", strings.Repeat("alpha beta gamma delta. ", 10))

	_, err := f.run(t, IngestRequest{})
	require.NoError(t, err)
	before := f.index.Len()
	require.Greater(t, before, 1)

	f.write(t, "a.txt", "alpha only.")
	_, err = f.run(t, IngestRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, f.index.Len())
	assert.Equal(t, 1, f.indexedChunks(t))
}

func TestWorker_PartialRunRecordsCompletedDocuments(t *testing.T) {
	w := &recordingWriter{
		failOn: 2,
		err:    &rag.PreconditionError{Op: "upsert_datapoints", Err: errors.New("index not deployed")},
	}
	f := newWorkerFixture(t, w)
	f.write(t, "a.txt", "first document")
	f.write(t, "b.txt", "second document")

	job, err := f.run(t, IngestRequest{BatchSize: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrIndexNotReady)

	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Equal(t, 1, snap.Summary.Succeeded)
	assert.NotEmpty(t, snap.Progress.Errors)

	entries, err := f.manifest.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(f.dir, "a.txt"), entries[0].SourcePath)
}

func TestWorker_MissingDirectory(t *testing.T) {
	f := newWorkerFixture(t, nil)

	job, err := f.run(t, IngestRequest{SourceDir: filepath.Join(f.dir, "missing")})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrNotFound)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
}

func TestWorker_EmptyDirectory(t *testing.T) {
	f := newWorkerFixture(t, nil)

	job, err := f.run(t, IngestRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Snapshot().Status)
	assert.Zero(t, f.index.Len())
}

func TestWorker_ExplicitFiles(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.write(t, "a.txt", "first document")
	f.write(t, "b.txt", "second document")

	job, err := f.run(t, IngestRequest{Files: []string{filepath.Join(f.dir, "b.txt")}})
	require.NoError(t, err)
	snap := job.Snapshot()
	assert.Equal(t, 1, snap.Progress.FilesLoaded)
	assert.Equal(t, 1, f.index.Len())
}
