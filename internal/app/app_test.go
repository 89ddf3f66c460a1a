package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/vertexrag/internal/config"
	"github.com/dgallion1/vertexrag/internal/pipeline"
	"github.com/dgallion1/vertexrag/internal/rag"
	"github.com/dgallion1/vertexrag/internal/vectorstore"
)

// wordEmbedder scores texts by how often they mention each vocabulary word.
type wordEmbedder struct{}

var vocab = []string{"vector", "golang", "pdf"}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocab))
	for i, w := range vocab {
		v[i] = float32(strings.Count(strings.ToLower(text), w))
	}
	return v, nil
}

func (e wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.IndexBackend = config.BackendMemory
	cfg.DeployedIndexID = "local"
	cfg.ManifestPath = filepath.Join(t.TempDir(), "manifest.db")
	cfg.ChunkSize = 80
	cfg.ChunkOverlap = 10
	cfg.AllowedExtensions = []string{".txt", ".md"}
	return cfg
}

func TestAssemble_IngestThenQuery(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := Assemble(testConfig(t), nil, wordEmbedder{}, vectorstore.NewMemoryIndex(), log)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Stats())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vectors.txt"), []byte("All about vector search and vector math."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.md"), []byte("# Go\n\nWriting golang services."), 0o644))

	snap, err := a.Ingest(context.Background(), pipeline.IngestRequest{SourceDir: dir})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Progress.ChunksIndexed)

	results, err := a.Querier.Query(context.Background(), "vector", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "vector search")
	assert.Equal(t, filepath.Join(dir, "vectors.txt"), results[0].Metadata["source"])

	filtered, err := a.Querier.QueryFiltered(context.Background(), "vector", 5, map[string]string{"format": string(rag.FormatMarkdown)})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Contains(t, filtered[0].Text, "golang")
}

func TestAssemble_InvalidChunking(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize
	_, err := Assemble(cfg, nil, wordEmbedder{}, vectorstore.NewMemoryIndex(), slog.Default())
	assert.ErrorIs(t, err, rag.ErrConfig)
}

func TestNew_ValidatesConfig(t *testing.T) {
	cfg := config.Defaults()
	_, err := New(context.Background(), cfg, slog.Default())
	require.Error(t, err)

	var ce *rag.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Missing, "GCP_PROJECT_ID")
	assert.Contains(t, ce.Missing, "GCS_STAGING_BUCKET_NAME")
}

func TestRemoveDocument(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	idx := vectorstore.NewMemoryIndex()
	a, err := Assemble(testConfig(t), nil, wordEmbedder{}, idx, log)
	require.NoError(t, err)
	defer a.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("vector notes"), 0o644))
	_, err = a.Ingest(context.Background(), pipeline.IngestRequest{SourceDir: dir})
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	n, err := a.RemoveDocument(context.Background(), rag.DocumentID("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, idx.Len())

	_, err = a.RemoveDocument(context.Background(), rag.DocumentID("a.txt"))
	assert.ErrorIs(t, err, rag.ErrNotFound)
}
