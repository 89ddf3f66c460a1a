package vectorstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// keywordEmbedder maps text onto a fixed vocabulary so similarity is
// predictable.
type keywordEmbedder struct {
	calls int
	err   error
}

var vocab = []string{"go", "python", "vector", "pdf"}

func (e *keywordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocab))
	for i, w := range vocab {
		v[i] = float32(strings.Count(strings.ToLower(text), w))
	}
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func chunk(id, text, format string) rag.Chunk {
	return rag.Chunk{ID: id, Text: text, Metadata: map[string]any{"format": format}}
}

func TestStore_AddAndSearch(t *testing.T) {
	idx := NewMemoryIndex()
	s := New(&keywordEmbedder{}, idx)
	ctx := context.Background()

	ids, err := s.AddChunks(ctx, []rag.Chunk{
		chunk("a-0", "go go go", "text"),
		chunk("b-0", "python and vector search", "pdf"),
		chunk("c-0", "vector vector", "text"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "b-0", "c-0"}, ids)
	assert.Equal(t, 3, idx.Len())

	res, err := s.SimilaritySearch(ctx, "vector", 2, "local", nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c-0", res[0].ChunkID)
	assert.Equal(t, "b-0", res[1].ChunkID)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	res, err = s.SimilaritySearch(ctx, "vector", 5, "local", map[string]string{"format": "pdf"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b-0", res[0].ChunkID)
}

func TestStore_ReupsertOverwrites(t *testing.T) {
	idx := NewMemoryIndex()
	s := New(&keywordEmbedder{}, idx)
	ctx := context.Background()

	_, err := s.AddChunks(ctx, []rag.Chunk{chunk("a-0", "old", "text")})
	require.NoError(t, err)
	_, err = s.AddChunks(ctx, []rag.Chunk{chunk("a-0", "new go", "text")})
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Len())
	res, err := s.SimilaritySearch(ctx, "go", 1, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "new go", res[0].Text)
}

func TestStore_QueryCache(t *testing.T) {
	emb := &keywordEmbedder{}
	s := New(emb, NewMemoryIndex(), WithQueryCache(8))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.SimilaritySearch(ctx, "go", 1, "", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.calls)
}

func TestStore_EmbeddingErrorPropagates(t *testing.T) {
	boom := &rag.ServiceError{Op: "embed", Code: 500, Err: errors.New("down")}
	s := New(&keywordEmbedder{err: boom}, NewMemoryIndex())

	_, err := s.AddChunks(context.Background(), []rag.Chunk{chunk("a-0", "x", "text")})
	assert.ErrorIs(t, err, rag.ErrService)

	_, err = s.SimilaritySearch(context.Background(), "x", 1, "", nil)
	assert.ErrorIs(t, err, rag.ErrService)
}

func TestStore_Remove(t *testing.T) {
	idx := NewMemoryIndex()
	s := New(&keywordEmbedder{}, idx)
	_, err := s.AddChunks(context.Background(), []rag.Chunk{chunk("a-0", "go", "text"), chunk("a-1", "go", "text")})
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), []string{"a-0", "a-1"}))
	assert.Equal(t, 0, idx.Len())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 2}))
}
