package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/vertexrag/internal/chunker"
	"github.com/dgallion1/vertexrag/internal/loader"
	"github.com/dgallion1/vertexrag/internal/manifest"
	"github.com/dgallion1/vertexrag/internal/rag"
)

// Manifest records which documents are indexed. A nil Manifest disables
// change detection.
type Manifest interface {
	Unchanged(ctx context.Context, doc rag.RawDocument) (bool, error)
	Get(ctx context.Context, docID string) (manifest.Entry, error)
	Record(ctx context.Context, entries []manifest.Entry) error
	RecordRun(ctx context.Context, sourceDir string, sum rag.RunSummary, runErr error) error
}

// ChunkRemover deletes datapoints by ID.
type ChunkRemover interface {
	Remove(ctx context.Context, ids []string) error
}

// Defaults fill in request fields left at their zero value.
type Defaults struct {
	Extensions    []string
	Recursive     bool
	LoaderWorkers int
	BatchSize     int
}

// Worker runs one directory ingestion end to end: load, skip unchanged,
// split, index, then record what was indexed.
type Worker struct {
	loader   *loader.Loader
	splitter *chunker.Splitter
	store    ChunkWriter
	remover  ChunkRemover
	manifest Manifest
	defaults Defaults
	log      *slog.Logger
}

// NewWorker wires a worker. remover and mf may be nil.
func NewWorker(l *loader.Loader, s *chunker.Splitter, store ChunkWriter, remover ChunkRemover, mf Manifest, defaults Defaults, log *slog.Logger) *Worker {
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = DefaultBatchSize
	}
	return &Worker{
		loader:   l,
		splitter: s,
		store:    store,
		remover:  remover,
		manifest: mf,
		defaults: defaults,
		log:      log,
	}
}

// Process runs the pipeline for a job, updating its status as it goes. The
// returned error is the reason the job failed or stopped early.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	req := job.Request
	log := w.log.With("job_id", job.ID, "source_dir", req.SourceDir)

	// Phase 1: Load
	job.SetStatus(StatusLoading, "loading")
	res, err := w.load(ctx, req)
	if err != nil {
		log.Error("load failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "loading")
		return err
	}
	loaded, failed := res.Counts()
	job.SetLoadCounts(len(res.Files), loaded, failed)
	for _, f := range res.Failed() {
		job.AddError(fmt.Sprintf("%s: %s", f.Path, f.Err))
	}

	docs := res.Documents()
	if len(docs) == 0 {
		if failed > 0 {
			job.SetStatus(StatusFailed, "loading")
			return fmt.Errorf("no documents loaded from %s: %d files failed", req.SourceDir, failed)
		}
		log.Warn("no documents found")
		job.SetStatus(StatusCompleted, "done")
		return nil
	}

	// Phase 1.5: Change detection
	if !req.Force {
		docs = w.changed(ctx, log, docs)
		job.SetUnchanged(loaded - len(docs))
		if len(docs) == 0 {
			log.Info("all documents unchanged, skipping", "documents", loaded)
			job.SetStatus(StatusUnchanged, "done")
			return nil
		}
	}

	// Phase 2: Split
	job.SetStatus(StatusSplitting, "splitting")
	chunks, err := w.splitter.Split(docs)
	if err != nil {
		log.Error("split failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "splitting")
		return err
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = w.defaults.BatchSize
	}
	job.SetChunkPlan(len(chunks), len(Batches(chunks, batchSize)))

	// Phase 3: Index
	job.SetStatus(StatusIndexing, "indexing")
	in := NewIngester(w.store, log)
	in.OnBatch(job.RecordBatch)
	sum, runErr := in.Ingest(ctx, chunks, batchSize)
	job.SetSummary(sum)

	// Phase 4: Record
	w.record(ctx, log, docs, chunks, sum.Succeeded)
	if w.manifest != nil {
		if err := w.manifest.RecordRun(ctx, req.SourceDir, sum, runErr); err != nil {
			log.Warn("run record failed", "error", err)
		}
	}

	switch {
	case runErr == nil:
		job.SetStatus(StatusCompleted, "done")
	case sum.Succeeded > 0:
		job.AddError(runErr.Error())
		job.SetStatus(StatusPartial, "indexing")
	default:
		job.AddError(runErr.Error())
		job.SetStatus(StatusFailed, "indexing")
	}
	return runErr
}

func (w *Worker) load(ctx context.Context, req IngestRequest) (*loader.Result, error) {
	if len(req.Files) > 0 {
		return w.loader.LoadFiles(ctx, req.SourceDir, req.Files, w.defaults.LoaderWorkers)
	}
	opts := loader.Options{
		Extensions: req.Extensions,
		Recursive:  w.defaults.Recursive,
		Workers:    w.defaults.LoaderWorkers,
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = w.defaults.Extensions
	}
	if req.Recursive != nil {
		opts.Recursive = *req.Recursive
	}
	return w.loader.Load(ctx, req.SourceDir, opts)
}

// changed drops documents whose content is already indexed. Manifest errors
// are logged and the document is kept.
func (w *Worker) changed(ctx context.Context, log *slog.Logger, docs []rag.RawDocument) []rag.RawDocument {
	if w.manifest == nil {
		return docs
	}
	out := docs[:0:0]
	for _, doc := range docs {
		same, err := w.manifest.Unchanged(ctx, doc)
		if err != nil {
			log.Warn("manifest lookup failed, re-indexing", "doc_id", doc.ID, "error", err)
		}
		if same {
			log.Debug("unchanged document", "doc_id", doc.ID, "source", doc.SourcePath)
			continue
		}
		out = append(out, doc)
	}
	return out
}

// record writes manifest entries for documents whose chunks all fall within
// the first succeeded chunks, and removes datapoints left over from longer
// revisions of those documents.
func (w *Worker) record(ctx context.Context, log *slog.Logger, docs []rag.RawDocument, chunks []rag.Chunk, succeeded int) {
	if w.manifest == nil {
		return
	}

	counts := make(map[string]int, len(docs))
	for _, c := range chunks {
		counts[c.ParentID]++
	}

	var entries []manifest.Entry
	var stale []string
	end := 0
	for _, doc := range docs {
		n := counts[doc.ID]
		end += n
		if end > succeeded {
			break
		}
		prev, err := w.manifest.Get(ctx, doc.ID)
		switch {
		case err == nil && prev.ChunkCount > n:
			stale = append(stale, prev.ChunkIDs()[n:]...)
		case err != nil && !errors.Is(err, rag.ErrNotFound):
			log.Warn("manifest lookup failed", "doc_id", doc.ID, "error", err)
		}
		entries = append(entries, manifest.EntryFor(doc, n))
	}

	if len(stale) > 0 && w.remover != nil {
		if err := w.remover.Remove(ctx, stale); err != nil {
			log.Warn("stale datapoint removal failed", "count", len(stale), "error", err)
		} else {
			log.Info("removed stale datapoints", "count", len(stale))
		}
	}
	if len(entries) == 0 {
		return
	}
	if err := w.manifest.Record(ctx, entries); err != nil {
		log.Warn("manifest write failed", "error", err)
	}
}
