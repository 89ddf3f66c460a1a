package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// DefaultK is used when a query asks for zero or fewer results.
const DefaultK = 5

// ChunkSearcher runs a similarity search against a deployed index.
type ChunkSearcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, deployedIndexID string, filter map[string]string) ([]rag.QueryResult, error)
}

// Querier answers similarity queries. Retrieval failures are logged and
// reported as an empty result so callers can degrade gracefully.
type Querier struct {
	searcher        ChunkSearcher
	deployedIndexID string
	defaultK        int
	log             *slog.Logger
}

func NewQuerier(searcher ChunkSearcher, deployedIndexID string, defaultK int, log *slog.Logger) *Querier {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Querier{searcher: searcher, deployedIndexID: deployedIndexID, defaultK: defaultK, log: log}
}

// Query returns up to k chunks most similar to text.
func (q *Querier) Query(ctx context.Context, text string, k int) ([]rag.QueryResult, error) {
	return q.QueryFiltered(ctx, text, k, nil)
}

// QueryFiltered is Query restricted to chunks whose metadata matches filter.
// The only error it returns is a *rag.ConfigError for a missing deployed
// index ID.
func (q *Querier) QueryFiltered(ctx context.Context, text string, k int, filter map[string]string) ([]rag.QueryResult, error) {
	if q.deployedIndexID == "" {
		return nil, &rag.ConfigError{Missing: []string{"VECTOR_SEARCH_DEPLOYED_INDEX_ID"}}
	}
	if k <= 0 {
		k = q.defaultK
	}

	start := time.Now()
	results, err := q.searcher.SimilaritySearch(ctx, text, k, q.deployedIndexID, filter)
	if err != nil {
		q.log.Error("query failed", "k", k, "deployed_index_id", q.deployedIndexID, "error", err)
		return []rag.QueryResult{}, nil
	}
	if results == nil {
		results = []rag.QueryResult{}
	}

	checkOrdering(q.log, results)
	q.log.Info("query complete", "k", k, "results", len(results), "elapsed_ms", time.Since(start).Milliseconds())
	return results, nil
}

// checkOrdering warns when scores are not non-increasing. Results are
// returned as the index ranked them either way.
func checkOrdering(log *slog.Logger, results []rag.QueryResult) {
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			log.Warn("query results are not ordered by score", "position", i,
				"previous", results[i-1].Score, "score", results[i].Score)
			return
		}
	}
}
