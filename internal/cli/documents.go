package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var documentsRemoveCmd = &cobra.Command{
	Use:   "rm [doc-id]",
	Short: "Remove a document's chunks from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsRemove,
}

func init() {
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output documents as JSON")
	documentsCmd.AddCommand(documentsRemoveCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Manifest.List(cmd.Context())
	if err != nil {
		return err
	}

	if documentsJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}
	cmd.Println(headingStyle.Render(fmt.Sprintf("%-16s  %6s  %-10s  %s", "ID", "CHUNKS", "FORMAT", "SOURCE")))
	for _, e := range entries {
		cmd.Printf("%-16s  %6d  %-10s  %s\n", e.DocID, e.ChunkCount, e.Format, e.SourcePath)
	}
	return nil
}

func runDocumentsRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.RemoveDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Removed %s (%d chunks)\n", args[0], n)
	return nil
}
