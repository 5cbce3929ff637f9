package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/authdir/internal/config"
	"github.com/iudanet/authdir/internal/engine"
	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/monitor"
	"github.com/iudanet/authdir/internal/provenance"
	"github.com/iudanet/authdir/internal/scanner"
	"github.com/iudanet/authdir/internal/scheduler"
	"github.com/iudanet/authdir/internal/server"
	"github.com/iudanet/authdir/internal/server/handlers"
	"github.com/iudanet/authdir/internal/store"
	"github.com/iudanet/authdir/internal/store/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "authdir.yaml", "Path to configuration file")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "authdir-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Starting authdir server",
		"version", Version,
		"instance", cfg.Instance.ID,
		"peers", len(cfg.Peers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище документов и конфликтов
	sqliteStorage, err := sqlite.New(ctx, cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := sqliteStorage.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	storage := store.WithRetry(sqliteStorage, store.DefaultRetryPolicy(), logger)
	tagger := provenance.NewTagger(cfg.Instance.ID, storage)

	resolutionEngine := engine.New(storage, tagger, logger)
	conflictScanner := scanner.New(storage, tagger, logger)

	// Снапшоты связей репликации
	snapshots, err := monitor.NewSnapshotStore(ctx, cfg.Storage.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open link snapshots: %w", err)
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Error("Failed to close link snapshots", "error", err)
		}
	}()

	self := models.Instance{
		ID:          cfg.Instance.ID,
		DisplayName: cfg.Instance.DisplayName,
		BaseURL:     cfg.Instance.BaseURL,
	}
	peers := make([]models.Instance, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, models.Instance{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			BaseURL:     p.BaseURL,
		})
	}

	peerMonitor, err := monitor.New(self, peers,
		monitor.NewPeerClient(cfg.Monitor.PollTimeout),
		snapshots,
		monitor.Config{
			FailureThreshold: cfg.Monitor.FailureThreshold,
			ErrorDelta:       cfg.Monitor.ErrorDelta,
			ConflictBacklog:  cfg.Monitor.ConflictBacklog,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	// Фоновые задачи
	jobs := scheduler.New(logger)
	if err := jobs.AddJob("conflict-scan", cfg.Scanner.Interval, func(ctx context.Context) error {
		_, err := conflictScanner.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := jobs.AddJob("peer-poll", cfg.Monitor.Interval, peerMonitor.Poll); err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	// HTTP API
	jwtConfig := handlers.JWTConfig{
		Secret:   []byte(cfg.Admin.JWTSecret),
		TokenTTL: cfg.Admin.TokenTTL,
	}
	httpServer := server.New(
		server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			JWTConfig:    jwtConfig,
		},
		server.Handlers{
			Auth: handlers.NewAuthHandler(logger, handlers.AdminCredentials{
				Username:     cfg.Admin.Username,
				PasswordHash: cfg.Admin.PasswordHash,
			}, jwtConfig),
			Conflicts:   handlers.NewConflictsHandler(logger, storage, resolutionEngine, conflictScanner),
			Replication: handlers.NewReplicationHandler(logger, cfg.Instance.ID, peerMonitor, sqliteStorage, storage, sqliteStorage),
			Health:      handlers.NewHealthHandler(logger, cfg.Instance.ID, peerMonitor),
		},
		logger,
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// newLogger builds the process logger with the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("authdir server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
