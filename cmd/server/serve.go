package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pixelboard/internal/api"
	"pixelboard/internal/config"
	"pixelboard/internal/db"
	"pixelboard/internal/middleware"
	"pixelboard/internal/repository"
	"pixelboard/internal/services"
	"pixelboard/internal/services/collaboration"
	"pixelboard/internal/telemetry"
	"pixelboard/internal/world"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	envFile         string
	addr            string
	persistencePath string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas server",
		Long: `Load the canvas history (or start a fresh canvas), accept websocket
connections on /ws and autosave until SIGINT or SIGTERM, then save once
more and exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default ./.env if present)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address host:port (overrides SERVER_HOST/SERVER_PORT)")
	cmd.Flags().StringVar(&opts.persistencePath, "persistence-path", "", "history file (overrides PERSISTENCE_PATH)")

	return cmd
}

func (o serveOptions) apply(cfg *config.Config) error {
	if o.addr != "" {
		host, port, err := net.SplitHostPort(o.addr)
		if err != nil {
			return fmt.Errorf("invalid --addr: %w", err)
		}
		cfg.ServerHost, cfg.ServerPort = host, port
	}
	if o.persistencePath != "" {
		cfg.PersistencePath = o.persistencePath
	}
	return nil
}

// runServer wires the components, serves until a shutdown signal, then tears
// down in order: stop accepting, close sessions, stop autosave, final save,
// flush the journal.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pixelboard",
		zap.String("version", version),
		zap.String("addr", cfg.Addr()),
		zap.String("persistence", cfg.PersistencePath),
	)

	if cfg.JaegerEndpoint != "" {
		jaegerShutdown, err := telemetry.InitJaeger("pixelboard", version, cfg.JaegerEndpoint, logger)
		if err != nil {
			logger.Warn("failed to initialize jaeger, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := jaegerShutdown(ctx); err != nil {
					logger.Warn("failed to shutdown jaeger", zap.Error(err))
				}
			}()
		}
	}

	// Canvas state
	store := repository.NewHistoryStore(cfg.PersistencePath, logger)
	defaultCanvas, err := world.NewCanvas(cfg.CanvasWidth, cfg.CanvasHeight)
	if err != nil {
		return fmt.Errorf("default canvas: %w", err)
	}
	history, err := store.LoadOrCreate(cfg.SnapshotInterval, defaultCanvas)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	w, err := world.FromHistory(history)
	if err != nil {
		logger.Warn("saved history does not replay, starting fresh", zap.Error(err))
		fresh, herr := world.NewHistory(cfg.SnapshotInterval, defaultCanvas)
		if herr != nil {
			return fmt.Errorf("create history: %w", herr)
		}
		if w, err = world.FromHistory(fresh); err != nil {
			return fmt.Errorf("restore world: %w", err)
		}
	}
	width, height := w.Dimensions()
	logger.Info("world ready",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("changes", w.ChangeCount()),
		zap.Int("snapshots", w.SnapshotCount()),
	)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(reg)

	// Sessions and websocket transport
	registry := collaboration.NewSessionRegistry(logger, metrics)
	wsHandler := collaboration.NewWebSocketHandler(w, registry, collaboration.HandlerConfig{
		AdminToken:         cfg.AdminToken,
		OutboundQueueSize:  cfg.OutboundQueueSize,
		AdminOnlyResize:    cfg.AdminOnlyResize,
		MaxCanvasDimension: cfg.MaxCanvasDimension,
	}, logger, metrics)
	handler := api.NewHandler(w, registry, wsHandler, logger)

	// Optional change journal
	var journal *services.JournalWriter
	if cfg.DatabaseURL != "" {
		database, err := db.NewGorm(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		repo := repository.NewJournalRepository(database.DB)
		journal = services.NewJournalWriter(repo, cfg.JournalWorkers, cfg.JournalQueueSize, logger, metrics)
		journal.Start()
		wsHandler.SetChangeRecorder(journal)
		handler.SetJournal(repo, journal.BootID())
	}

	autosaver := services.NewAutosaver(w, store, cfg.AutosaveInterval, logger, metrics)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.SetupRoutes(handler, reg, logger),
		// No read/write timeouts: websocket connections are long-lived and
		// keep their own deadlines.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	autosaveCtx, stopAutosave := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		autosaver.Run(autosaveCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
			logger.Error("server error, shutting down", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server forced to shutdown", zap.Error(err))
	}
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not close in time", zap.Error(err))
	}

	stopAutosave()
	wg.Wait()

	if n, err := autosaver.SaveNow(shutdownCtx); err != nil {
		logger.Error("final save failed", zap.Error(err))
		runErr = errors.Join(runErr, fmt.Errorf("final save: %w", err))
	} else {
		logger.Info("final save complete", zap.Int("changes", n), zap.String("path", store.Path()))
	}

	if journal != nil {
		journal.Shutdown()
	}

	logger.Info("shutdown complete")
	return runErr
}
