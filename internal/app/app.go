// Package app wires configuration, storage, the generator and the transport
// layers into one runnable server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/wspiernik/internal/config"
	"github.com/raphaelgruber/wspiernik/internal/db"
	"github.com/raphaelgruber/wspiernik/internal/dispatch"
	"github.com/raphaelgruber/wspiernik/internal/facts"
	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/scenario"
	"github.com/raphaelgruber/wspiernik/internal/server"
	"github.com/raphaelgruber/wspiernik/internal/session"
	"github.com/raphaelgruber/wspiernik/internal/store"
	"github.com/raphaelgruber/wspiernik/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled server.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	store     store.Store
	registry  *session.Registry
	hub       *ws.Hub
	distiller *facts.Distiller
	http      *server.Server
}

// New builds every component from cfg. The caller owns the returned App and
// must Close it.
func New(ctx context.Context, cfg config.Config, version string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	collector := metrics.NewCollector()

	st, err := OpenStore(ctx, cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	gen, err := llm.New(ctx, cfg.LLM, collector, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	catalog, err := LoadCatalog(cfg.ScenarioDir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("scenarios loaded", "count", len(catalog.All()))

	registry := session.NewRegistry(logger, collector)
	hub := ws.NewHub(logger)
	distiller := facts.NewDistiller(gen, st, hub, facts.Options{
		QueueSize: cfg.DistillQueue,
		Workers:   cfg.DistillWorkers,
	}, logger, collector)

	dispatcher := dispatch.New(dispatch.Options{
		Registry:       registry,
		Store:          st,
		Generator:      gen,
		Matcher:        scenario.NewMatcher(catalog),
		Distiller:      distiller,
		SupportOfferAt: cfg.SupportOfferAt,
		Logger:         logger,
		Metrics:        collector,
	})

	httpServer := server.New(server.Options{
		Version:     version,
		WebSocket:   ws.NewServer(hub, dispatcher, ws.DefaultOptions(), logger),
		Facts:       st,
		Sessions:    registry,
		Connections: hub,
		Metrics:     collector,
		Logger:      logger,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   collector,
		store:     st,
		registry:  registry,
		hub:       hub,
		distiller: distiller,
		http:      httpServer,
	}, nil
}

// OpenStore opens the backend selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger, collector *metrics.Collector) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data will not survive a restart")
		return store.NewMemory(), nil
	case config.StoreSQLite:
		st, err := store.OpenSQLite(cfg.SQLitePath, logger, collector)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return st, nil
	case config.StoreSurrealDB:
		st, err := db.Open(ctx, db.ConfigFrom(cfg.SurrealDB), logger, collector)
		if err != nil {
			return nil, fmt.Errorf("open surrealdb store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// LoadCatalog returns the built-in scenarios, overlaid with the *.md files of
// dir when dir is set.
func LoadCatalog(dir string) (*scenario.Catalog, error) {
	if dir == "" {
		c, err := scenario.Default()
		if err != nil {
			return nil, fmt.Errorf("load scenarios: %w", err)
		}
		return c, nil
	}
	builtin, err := scenario.SeedFS()
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	c, err := scenario.Load(builtin, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load scenarios from %s: %w", dir, err)
	}
	return c, nil
}

// Handler returns the HTTP handler serving the API and the WebSocket endpoint.
func (a *App) Handler() http.Handler { return a.http.Handler() }

// Store returns the opened store.
func (a *App) Store() store.Store { return a.store }

// Sessions returns the session registry.
func (a *App) Sessions() *session.Registry { return a.registry }

// Run serves on the configured address and runs the distiller until ctx is
// cancelled or the listener fails. Live connections are closed on the way out.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.distiller.Run(gctx)
	})
	g.Go(func() error {
		if err := a.http.Start(a.cfg.HTTPAddr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.hub.CloseAll()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.logger.Info("server stopped", "sessions", a.registry.Len(), "pending_distill", a.distiller.Pending())
	return err
}

// Wipe deletes all stored data. Only the SurrealDB store supports it; the
// in-memory store starts empty anyway.
func (a *App) Wipe(ctx context.Context) error {
	switch st := a.store.(type) {
	case *db.Store:
		return st.Client().WipeData(ctx)
	case *store.Memory:
		return nil
	default:
		return fmt.Errorf("wipe not supported for %s store", a.cfg.Store)
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Serve builds the app from cfg and runs it until ctx is cancelled.
func Serve(ctx context.Context, cfg config.Config, version string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	a, err := New(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	logger.Info("wspiernik starting",
		"version", version,
		"addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)
	return a.Run(ctx)
}
