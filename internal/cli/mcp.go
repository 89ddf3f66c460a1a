package cli

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/vertexrag/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the search tool over MCP on stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing a "search"
tool backed by the deployed index and a "list_documents" tool. Logs go to
stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcpserver.New(a.Querier, a.Manifest)
	if err != nil {
		return err
	}
	logger.Info("mcp server starting", "version", mcpserver.Version)
	return server.Run(cmd.Context())
}
