// Package scheduler runs periodic background syncs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/hostfolio/guesty-sync-backend/internal/application/service"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
)

// Scheduler triggers a sync-all run on a fixed interval. Runs that would
// overlap an in-flight sync are skipped; the provider lock in the service
// guarantees only one sync at a time.
type Scheduler struct {
	cron        *cron.Cron
	syncService *service.SyncService
	cfg         config.SchedulerConfig
	logger      *slog.Logger
}

// New creates a sync scheduler.
func New(syncService *service.SyncService, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:        cron.New(),
		syncService: syncService,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start registers the periodic sync and starts the cron loop.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %dm", s.cfg.IntervalMinutes)

	if _, err := s.cron.AddFunc(spec, s.runScheduledSync); err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sync scheduler started", "interval_minutes", s.cfg.IntervalMinutes)
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running trigger
// to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sync scheduler stopped")
}

// runScheduledSync kicks off a background sync-all job
func (s *Scheduler) runScheduledSync() {
	jobID, err := s.syncService.StartSync(context.Background(), service.SyncRequest{SyncAll: true})
	if err != nil {
		// A sync already in flight is expected from time to time
		s.logger.Warn("scheduled sync skipped", "error", err)
		return
	}

	s.logger.Info("scheduled sync started", "job_id", jobID)
}
