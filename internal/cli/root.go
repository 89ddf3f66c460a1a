// Package cli implements the ragctl command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgallion1/vertexrag/internal/app"
	"github.com/dgallion1/vertexrag/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
)

// buildApp is replaced in tests.
var buildApp = app.New

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Index documents into Vertex AI Vector Search and query them",
	Long: `ragctl loads documents from a directory, splits them into overlapping chunks,
embeds them with a Vertex AI text embedding model and upserts them into a
Vertex AI Vector Search index. It can then answer similarity queries against
the deployed index.

Settings come from the environment (and a .env file), optionally layered on
a YAML or TOML file given with --config or VERTEXRAG_CONFIG.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	logger = newLogger(cmd.ErrOrStderr(), level)
	return nil
}

// newLogger writes human-readable text to a terminal and JSON otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	return buildApp(cmd.Context(), cfg, logger)
}
