package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/vertexrag/internal/rag"
)

var (
	queryK       int
	queryFilters []string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Find the chunks most similar to a query",
	Long: `Embeds the query text and asks the deployed index for its nearest neighbours.
Retrieval failures are logged and reported as no results.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "top-k", "k", 0, "number of results (default from DEFAULT_SEARCH_K)")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "metadata restriction key=value, repeatable")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	filter, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Querier.QueryFiltered(cmd.Context(), args[0], queryK, filter)
	if err != nil {
		return err
	}

	if queryJSON {
		return outputQueryJSON(cmd, results)
	}
	outputQueryText(cmd, results)
	return nil
}

func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, f := range raw {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", f)
		}
		out[k] = v
	}
	return out, nil
}

func outputQueryJSON(cmd *cobra.Command, results []rag.QueryResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryText(cmd *cobra.Command, results []rag.QueryResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	for i, r := range results {
		title, _ := r.Metadata["title"].(string)
		if title == "" {
			title = r.ChunkID
		}
		cmd.Printf("  [%d] %s %s\n", i+1, headingStyle.Render(title), scoreStyle.Render(fmt.Sprintf("(%.3f)", r.Score)))
		if source, ok := r.Metadata["source"].(string); ok && source != "" {
			cmd.Println(mutedStyle.Render("      " + source))
		}
		cmd.Println(bodyStyle.Render(snippet(r.Text, 400)))
		cmd.Println()
	}
}
