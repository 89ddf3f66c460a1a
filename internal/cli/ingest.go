package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/vertexrag/internal/pipeline"
)

var (
	ingestRecursive  bool
	ingestExtensions []string
	ingestBatchSize  int
	ingestForce      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Load, split and index the documents in a directory",
	Long: `Loads every supported file in the directory, splits the text into chunks and
upserts them into the vector index in batches. Documents whose content has not
changed since the last run are skipped unless --force is given.

Vector Search is eventually consistent: new chunks may take a while to show up
in query results.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", false, "descend into subdirectories (default from RECURSIVE_LOAD)")
	ingestCmd.Flags().StringSliceVar(&ingestExtensions, "ext", nil, "file extensions to load, e.g. .pdf,.md")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "chunks per upsert (default from UPSERT_BATCH_SIZE)")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-index documents even when unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req := pipeline.IngestRequest{
		SourceDir:  dir,
		Extensions: ingestExtensions,
		BatchSize:  ingestBatchSize,
		Force:      ingestForce,
	}
	if cmd.Flags().Changed("recursive") {
		req.Recursive = &ingestRecursive
	}

	snap, runErr := a.Ingest(cmd.Context(), req)
	printIngest(cmd, snap)
	if runErr != nil {
		return fmt.Errorf("ingest %s: %w", dir, runErr)
	}
	return nil
}

func printIngest(cmd *cobra.Command, snap pipeline.JobSnapshot) {
	p := snap.Progress
	cmd.Println(headingStyle.Render("Ingest " + string(snap.Status)))
	cmd.Printf("  files:   %d loaded, %d failed, %d unchanged\n", p.FilesLoaded, p.FilesFailed, p.FilesUnchanged)
	cmd.Printf("  chunks:  %d of %d indexed in %d/%d batches\n", p.ChunksIndexed, p.TotalChunks, p.BatchesDone, p.BatchesTotal)
	if snap.Summary != nil {
		cmd.Println(mutedStyle.Render("  run " + snap.Summary.RunID))
	}
	for _, e := range p.Errors {
		cmd.Println(errorStyle.Render("  ! " + e))
	}
}
