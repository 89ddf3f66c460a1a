package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dgallion1/vertexrag/internal/rag"
)

type memoryEntry struct {
	vector   []float32
	text     string
	metadata map[string]any
}

// MemoryIndex is an in-process rag.Index that ranks by cosine similarity.
// It ignores the deployed index ID and is meant for local runs and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, entries []rag.IndexEntry) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(entries))
	for i, e := range entries {
		m.entries[e.ExternalID] = memoryEntry{vector: e.Embedding, text: e.Chunk.Text, metadata: e.Chunk.Metadata}
		ids[i] = e.ExternalID
	}
	return ids, nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, k int, _ string, filter map[string]string) ([]rag.Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rag.Neighbor, 0, len(m.entries))
	for id, e := range m.entries {
		if !matches(e.metadata, filter) {
			continue
		}
		out = append(out, rag.Neighbor{ID: id, Text: e.text, Metadata: e.metadata, Score: cosine(vector, e.vector)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryIndex) Remove(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Len returns the number of stored datapoints.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func matches(meta map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		if got, ok := meta[k].(string); !ok || got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
