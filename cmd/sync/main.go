package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	appsync "github.com/hostfolio/guesty-sync-backend/internal/application/sync"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/logging"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		listingID  = flag.String("listing", "", "Sync a single listing by id")
		syncAll    = flag.Bool("all", false, "Sync every active listing")
		budgetSecs = flag.Int("budget", 0, "Wall-clock budget in seconds (0 = default)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)

	loggingCfg := cfg.Observability.Logging
	if *verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "sync")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	tokens := guesty.NewTokenProvider(store, cfg.Guesty, logger)
	client := guesty.NewClient(cfg.Guesty, store, logger)

	orchestrator := appsync.NewOrchestrator(client, tokens, store, cfg.Sync, logger)

	result, err := orchestrator.Run(context.Background(), appsync.Options{
		ListingID: *listingID,
		SyncAll:   *syncAll,
		Budget:    time.Duration(*budgetSecs) * time.Second,
	})
	if err != nil {
		logger.Error("sync failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("status:   %s\n", result.Status)
	fmt.Printf("synced:   %d bookings across %d listings\n", result.BookingsSynced, len(result.Results))
	fmt.Printf("changes:  %d created, %d updated, %d cancelled\n", result.Created, result.Updated, result.Deleted)
	for _, lr := range result.Results {
		if !lr.Success {
			fmt.Printf("failed:   %s: %s\n", lr.ListingID, lr.Error)
		}
	}

	if result.Status == appsync.StatusError {
		os.Exit(1)
	}
}
