package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/api"
	"github.com/hostfolio/guesty-sync-backend/internal/application/service"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/logging"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
	"github.com/hostfolio/guesty-sync-backend/internal/scheduler"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	tokens := guesty.NewTokenProvider(store, cfg.Guesty, logger)
	client := guesty.NewClient(cfg.Guesty, store, logger)

	syncService := service.NewSyncService(cfg, client, tokens, store, logger)
	syncService.StartBackgroundCleanup(5 * time.Minute)
	defer syncService.StopBackgroundCleanup()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(syncService, cfg.Scheduler, logger)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	server := api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, store, syncService, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}
