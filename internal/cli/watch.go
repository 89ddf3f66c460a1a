package cli

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/vertexrag/internal/app"
	"github.com/dgallion1/vertexrag/internal/pipeline"
	"github.com/dgallion1/vertexrag/internal/rag"
	"github.com/dgallion1/vertexrag/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index a directory and keep the index in sync as files change",
	Long: `Runs a full ingest of the directory, then watches it for changes. Created or
modified files are re-indexed; deleted files have their chunks removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before changes are indexed")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	snap, err := a.Ingest(ctx, pipeline.IngestRequest{SourceDir: dir})
	printIngest(cmd, snap)
	if err != nil {
		return err
	}

	w, err := watcher.New(dir, cfg.AllowedExtensions, cfg.RecursiveLoad, watchDebounce, logger)
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "dir", dir)
	return w.Run(ctx, func(ctx context.Context, b watcher.Batch) {
		syncBatch(ctx, cmd, a, dir, b)
	})
}

func syncBatch(ctx context.Context, cmd *cobra.Command, a *app.App, dir string, b watcher.Batch) {
	if len(b.Changed) > 0 {
		snap, err := a.Ingest(ctx, pipeline.IngestRequest{SourceDir: dir, Files: b.Changed})
		printIngest(cmd, snap)
		if err != nil {
			logger.Error("re-index failed", "error", err)
		}
	}
	for _, path := range b.Removed {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		docID := rag.DocumentID(rel)
		n, err := a.RemoveDocument(ctx, docID)
		switch {
		case errors.Is(err, rag.ErrNotFound):
			logger.Debug("removed file was not indexed", "path", path)
		case err != nil:
			logger.Error("remove failed", "path", path, "error", err)
		default:
			logger.Info("removed document", "path", path, "doc_id", docID, "chunks", n)
		}
	}
}
