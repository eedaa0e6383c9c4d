package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/wspiernik/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket server",
	Long: `Run the conversation server. Configuration comes from the YAML file
named by WSPIERNIK_CONFIG and WSPIERNIK_* environment variables.

Examples:
  wspiernik serve
  wspiernik serve --addr :9090
  WSPIERNIK_STORE=memory WSPIERNIK_LLM_PROVIDER=mock wspiernik serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides WSPIERNIK_HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	logger, cleanup := cfg.Logger()
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx, cfg, Version, logger)
}

// commandContext returns the command's context, or Background when cobra
// was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
