// Package app assembles the ingestion and retrieval services from a Config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/vertexrag/internal/chunker"
	"github.com/dgallion1/vertexrag/internal/config"
	"github.com/dgallion1/vertexrag/internal/loader"
	"github.com/dgallion1/vertexrag/internal/manifest"
	"github.com/dgallion1/vertexrag/internal/parser"
	"github.com/dgallion1/vertexrag/internal/pipeline"
	"github.com/dgallion1/vertexrag/internal/rag"
	"github.com/dgallion1/vertexrag/internal/vectorstore"
	"github.com/dgallion1/vertexrag/internal/vertex"
)

// App holds the wired services. Vertex is nil when no remote clients were
// built.
type App struct {
	Config   config.Config
	Vertex   *vertex.Clients
	Store    *vectorstore.Store
	Manifest *manifest.Store
	Worker   *pipeline.Worker
	Querier  *pipeline.Querier
	Log      *slog.Logger
}

// New validates cfg, builds the embedder and index for the configured
// backend, and opens the manifest.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clients, err := vertex.NewClients(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var index rag.Index = clients.Index
	if cfg.IndexBackend == config.BackendMemory {
		log.Warn("using in-memory index; datapoints are lost on exit")
		index = vectorstore.NewMemoryIndex()
	}

	if cfg.VerifyOnStart {
		if err := verify(ctx, cfg, clients); err != nil {
			return nil, err
		}
		log.Info("start-up verification passed")
	}

	return Assemble(cfg, clients, clients.Embedder, index, log)
}

// Assemble wires services around an existing embedder and index.
func Assemble(cfg config.Config, clients *vertex.Clients, embedder rag.Embedder, index rag.Index, log *slog.Logger) (*App, error) {
	splitter, err := chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}, log)
	if err != nil {
		return nil, err
	}

	mf, err := manifest.Open(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	store := vectorstore.New(embedder, index,
		vectorstore.WithQueryCache(cfg.QueryCacheSize),
		vectorstore.WithLogger(log))

	var remover pipeline.ChunkRemover
	if _, ok := index.(rag.Remover); ok {
		remover = store
	}

	ld := loader.New(parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}, log)
	worker := pipeline.NewWorker(ld, splitter, store, remover, mf, pipeline.Defaults{
		Extensions:    cfg.AllowedExtensions,
		Recursive:     cfg.RecursiveLoad,
		LoaderWorkers: cfg.LoaderWorkers,
		BatchSize:     cfg.UpsertBatchSize,
	}, log)

	return &App{
		Config:   cfg,
		Vertex:   clients,
		Store:    store,
		Manifest: mf,
		Worker:   worker,
		Querier:  pipeline.NewQuerier(store, cfg.DeployedIndexID, cfg.DefaultSearchK, log),
		Log:      log,
	}, nil
}

// Stats returns the remote call statistics, or nil without remote clients.
func (a *App) Stats() *vertex.CallStats {
	if a.Vertex == nil {
		return nil
	}
	return a.Vertex.Stats
}

// Ingest runs one ingestion job synchronously.
func (a *App) Ingest(ctx context.Context, req pipeline.IngestRequest) (pipeline.JobSnapshot, error) {
	job := pipeline.NewJob(req)
	err := a.Worker.Process(ctx, job)
	return job.Snapshot(), err
}

// RemoveDocument deletes a document's datapoints and its manifest entry,
// returning the number of chunks removed. Unknown documents yield an error
// wrapping rag.ErrNotFound.
func (a *App) RemoveDocument(ctx context.Context, docID string) (int, error) {
	entry, err := a.Manifest.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	ids := entry.ChunkIDs()
	if err := a.Store.Remove(ctx, ids); err != nil {
		return 0, fmt.Errorf("remove %s: %w", docID, err)
	}
	if err := a.Manifest.Delete(ctx, docID); err != nil {
		return 0, err
	}
	a.Log.Info("document removed", "doc_id", docID, "chunks", len(ids))
	return len(ids), nil
}

// Close releases the manifest.
func (a *App) Close() error {
	return a.Manifest.Close()
}

func verify(ctx context.Context, cfg config.Config, c *vertex.Clients) error {
	if cfg.IndexBackend == config.BackendMemory {
		if err := c.Embedder.Ping(ctx); err != nil {
			return fmt.Errorf("embedding smoke test: %w", err)
		}
		return nil
	}
	return c.Verify(ctx)
}
