package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// DefaultBatchSize is the number of chunks sent per upsert.
const DefaultBatchSize = 500

// ChunkWriter embeds and stores chunks, returning their external IDs.
type ChunkWriter interface {
	AddChunks(ctx context.Context, chunks []rag.Chunk) ([]string, error)
}

// Ingester writes chunks to the index in ordered batches, one at a time.
type Ingester struct {
	store   ChunkWriter
	log     *slog.Logger
	onBatch func(rag.BatchOutcome)
}

func NewIngester(store ChunkWriter, log *slog.Logger) *Ingester {
	return &Ingester{store: store, log: log}
}

// OnBatch registers a callback invoked after every batch, including the
// failing one.
func (in *Ingester) OnBatch(fn func(rag.BatchOutcome)) {
	in.onBatch = fn
}

// Batches partitions chunks into consecutive groups of at most size,
// preserving order.
func Batches(chunks []rag.Chunk, size int) [][]rag.Chunk {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]rag.Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		out = append(out, chunks[start:min(start+size, len(chunks))])
	}
	return out
}

// Ingest sends chunks in batches of batchSize. A precondition failure stops
// the run with an error wrapping rag.ErrIndexNotReady; any other failure
// stops it too. In both cases the returned summary, also carried by the
// *rag.IngestError, counts only the batches that succeeded.
func (in *Ingester) Ingest(ctx context.Context, chunks []rag.Chunk, batchSize int) (rag.RunSummary, error) {
	sum := rag.RunSummary{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), Batches: []rag.BatchOutcome{}}
	log := in.log.With("run_id", sum.RunID)

	if len(chunks) == 0 {
		log.Warn("no chunks to ingest")
		sum.FinishedAt = time.Now().UTC()
		return sum, nil
	}

	batches := Batches(chunks, batchSize)
	log.Info("starting ingestion", "chunks", len(chunks), "batches", len(batches), "batch_size", len(batches[0]))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return in.stop(log, sum, err)
		}

		outcome := rag.BatchOutcome{BatchIndex: i, Attempted: len(batch)}
		sum.Attempted += len(batch)

		start := time.Now()
		ids, err := in.store.AddChunks(ctx, batch)
		if err != nil {
			outcome.Error = rag.KindOf(err)
			outcome.Message = err.Error()
			sum.Batches = append(sum.Batches, outcome)
			in.report(outcome)

			if errors.Is(err, rag.ErrPrecondition) {
				log.Error("index not ready for updates; it may still be creating or deploying",
					"batch", i+1, "batches", len(batches), "processed", sum.Succeeded, "error", err)
				return in.stop(log, sum, fmt.Errorf("%w: %w", rag.ErrIndexNotReady, err))
			}
			log.Error("batch failed", "batch", i+1, "batches", len(batches), "processed", sum.Succeeded, "error", err)
			return in.stop(log, sum, err)
		}

		outcome.Succeeded = len(batch)
		sum.Succeeded += len(batch)
		sum.Batches = append(sum.Batches, outcome)
		in.report(outcome)

		log.Info("batch added", "batch", i+1, "batches", len(batches), "size", len(batch),
			"elapsed_ms", time.Since(start).Milliseconds())
		if len(ids) > 0 {
			log.Debug("batch ids", "first", ids[0], "last", ids[len(ids)-1])
		}
	}

	sum.FinishedAt = time.Now().UTC()
	log.Info("ingestion complete; the index is eventually consistent and may take a while to reflect updates",
		"attempted", sum.Attempted, "succeeded", sum.Succeeded)
	return sum, nil
}

func (in *Ingester) stop(log *slog.Logger, sum rag.RunSummary, err error) (rag.RunSummary, error) {
	sum.FinishedAt = time.Now().UTC()
	log.Warn("ingestion stopped", "attempted", sum.Attempted, "succeeded", sum.Succeeded)
	return sum, &rag.IngestError{Summary: sum, Err: err}
}

func (in *Ingester) report(o rag.BatchOutcome) {
	if in.onBatch != nil {
		in.onBatch(o)
	}
}
