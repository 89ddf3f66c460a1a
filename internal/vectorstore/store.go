package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// Store pairs an Embedder with an Index so callers work in text: AddChunks
// embeds before upserting and SimilaritySearch embeds the query.
type Store struct {
	embedder rag.Embedder
	index    rag.Index
	cache    *lru.Cache[string, []float32]
	log      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithQueryCache keeps up to size query embeddings in an LRU cache.
// A size of zero or less disables caching.
func WithQueryCache(size int) Option {
	return func(s *Store) {
		if size <= 0 {
			return
		}
		if c, err := lru.New[string, []float32](size); err == nil {
			s.cache = c
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

func New(embedder rag.Embedder, index rag.Index, opts ...Option) *Store {
	s := &Store{embedder: embedder, index: index, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddChunks embeds and upserts chunks, returning their external IDs in
// input order. Chunk IDs are used as external IDs so re-ingesting a document
// overwrites its datapoints.
func (s *Store) AddChunks(ctx context.Context, chunks []rag.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(chunks) {
		return nil, &rag.ServiceError{Op: "embed", Err: fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(vecs))}
	}

	entries := make([]rag.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = rag.IndexEntry{Chunk: c, Embedding: vecs[i], ExternalID: c.ID}
	}
	return s.index.Upsert(ctx, entries)
}

// SimilaritySearch returns the k chunks nearest to query on the deployed
// index, optionally restricted by metadata filter.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, deployedIndexID string, filter map[string]string) ([]rag.QueryResult, error) {
	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}

	neighbors, err := s.index.Query(ctx, vec, k, deployedIndexID, filter)
	if err != nil {
		return nil, err
	}

	results := make([]rag.QueryResult, len(neighbors))
	for i, n := range neighbors {
		results[i] = rag.QueryResult{ChunkID: n.ID, Text: n.Text, Metadata: n.Metadata, Score: n.Score}
	}
	return results, nil
}

// Remove deletes datapoints when the index supports it.
func (s *Store) Remove(ctx context.Context, ids []string) error {
	r, ok := s.index.(rag.Remover)
	if !ok {
		return fmt.Errorf("index %T does not support removal", s.index)
	}
	return r.Remove(ctx, ids)
}

func (s *Store) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(query); ok {
			s.log.Debug("query embedding cache hit")
			return v, nil
		}
	}
	v, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(query, v)
	}
	return v, nil
}
