package rag

import "context"

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a remote nearest-neighbour index that stores text and metadata
// alongside each vector. Upsert returns the external IDs in input order.
// Writes may be eventually consistent.
type Index interface {
	Upsert(ctx context.Context, entries []IndexEntry) ([]string, error)
	Query(ctx context.Context, vector []float32, k int, deployedIndexID string, filter map[string]string) ([]Neighbor, error)
}

// Remover is implemented by indexes that can delete datapoints by ID.
type Remover interface {
	Remove(ctx context.Context, ids []string) error
}
