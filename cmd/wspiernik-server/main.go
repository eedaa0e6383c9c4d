// Package main provides the standalone wspiernik WebSocket server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/app"
	"github.com/raphaelgruber/wspiernik/internal/cli"
	"github.com/raphaelgruber/wspiernik/internal/config"
)

func main() {
	// Parse flags
	addr := flag.String("addr", "", "listen address (overrides WSPIERNIK_HTTP_ADDR)")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := cfg.Logger()
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	if err := run(cfg, *wipeDB, logger); err != nil {
		logger.Error("server failed", "error", err)
		_ = cleanup()
		os.Exit(1)
	}
}

func run(cfg config.Config, wipe bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(initCtx, cfg, cli.Version, logger)
	if err != nil {
		cancel()
		return err
	}
	defer a.Close()

	if wipe {
		if err := a.Wipe(initCtx); err != nil {
			cancel()
			return err
		}
	}
	cancel()

	logger.Info("starting wspiernik-server",
		"version", cli.Version,
		"addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"llm_provider", cfg.LLM.Provider,
	)
	return a.Run(ctx)
}
