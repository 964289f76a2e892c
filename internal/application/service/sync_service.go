// Package service manages sync jobs: asynchronous execution, per-provider
// locking so two runs never overlap, and stale-job cleanup.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	appsync "github.com/hostfolio/guesty-sync-backend/internal/application/sync"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/logging"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// SyncStatus represents the current state of a sync job.
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress
	// updates before being considered hung or crashed.
	DefaultJobStaleThreshold = 10 * time.Minute

	// DefaultJobMaxDuration is the maximum wall-clock time for a job before
	// it is forcefully marked as failed.
	DefaultJobMaxDuration = 30 * time.Minute
)

// SyncRequest holds parameters for starting a sync.
// Exactly one of ListingID or SyncAll must be set.
type SyncRequest struct {
	ListingID     string
	SyncAll       bool
	BudgetSeconds int
	Verbose       bool
}

func (r SyncRequest) options(progress func(appsync.ProgressUpdate)) appsync.Options {
	return appsync.Options{
		ListingID: r.ListingID,
		SyncAll:   r.SyncAll,
		Budget:    time.Duration(r.BudgetSeconds) * time.Second,
		Progress:  progress,
	}
}

// SyncProgress holds real-time progress information.
type SyncProgress struct {
	CurrentPhase      string // "pending", "initializing", "syncing", "completed", "failed"
	TotalListings     int
	ProcessedListings int
	FailedListings    int
	LastUpdate        time.Time
}

// SyncJob represents a running or completed sync job.
type SyncJob struct {
	ID          string
	Provider    string
	Status      SyncStatus
	Request     SyncRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    SyncProgress
	Result      *appsync.Result
	Error       error
	cancelFunc  context.CancelFunc
}

// SyncService manages sync operations.
type SyncService struct {
	cfg    *config.Config
	client appsync.ReservationFetcher
	tokens appsync.TokenSource
	repo   storage.Repository
	logger *slog.Logger

	// Job management
	jobs      map[string]*SyncJob
	jobsMutex sync.RWMutex

	// Provider-level locking (only one sync per provider at a time).
	// The value is the id of the run holding the lock, so a stale-job
	// reap cannot release a lock a newer run has since acquired.
	providerLocks map[string]string
	locksMutex    sync.Mutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewSyncService creates a new sync service.
func NewSyncService(
	cfg *config.Config,
	client appsync.ReservationFetcher,
	tokens appsync.TokenSource,
	repo storage.Repository,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncService{
		cfg:           cfg,
		client:        client,
		tokens:        tokens,
		repo:          repo,
		logger:        logger,
		jobs:          make(map[string]*SyncJob),
		providerLocks: make(map[string]string),
	}
}

// RunSync executes a sync synchronously while holding the provider lock.
// Returns ErrSyncInProgress when another run already holds it.
func (s *SyncService) RunSync(ctx context.Context, req SyncRequest) (*appsync.Result, error) {
	owner := uuid.NewString()
	if !s.tryLockProvider(guesty.ProviderName, owner) {
		return nil, ErrSyncInProgress
	}
	defer s.unlockProvider(guesty.ProviderName, owner)

	orchestrator := s.newOrchestrator(req.Verbose)
	return orchestrator.Run(ctx, req.options(nil))
}

// ErrSyncInProgress is returned when a sync for the provider is already running.
var ErrSyncInProgress = fmt.Errorf("sync already running for provider: %s", guesty.ProviderName)

// StartSync starts a new sync job asynchronously.
// Note: The passed context is NOT used as the parent for the background job.
// Background sync jobs use context.Background() to avoid being cancelled when
// the HTTP request completes. Use CancelSync() to cancel a running job.
func (s *SyncService) StartSync(_ context.Context, req SyncRequest) (string, error) {
	if req.ListingID == "" && !req.SyncAll {
		return "", appsync.ErrInvalidOptions
	}
	if req.ListingID != "" && req.SyncAll {
		return "", appsync.ErrInvalidOptions
	}

	jobID := s.generateJobID()
	if !s.tryLockProvider(guesty.ProviderName, jobID) {
		return "", ErrSyncInProgress
	}

	// Cancellable context from Background, NOT from the request context.
	// This prevents the job from dying when the HTTP request completes.
	jobCtx, cancel := context.WithCancel(context.Background())

	job := &SyncJob{
		ID:         jobID,
		Provider:   guesty.ProviderName,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  time.Now(),
		cancelFunc: cancel,
		Progress:   SyncProgress{CurrentPhase: "pending", LastUpdate: time.Now()},
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	go s.runSyncJob(jobCtx, job)

	s.logger.Info("sync job started",
		"job_id", jobID,
		"listing_id", req.ListingID,
		"sync_all", req.SyncAll,
	)

	return jobID, nil
}

// GetSyncJob retrieves a sync job by ID.
func (s *SyncService) GetSyncJob(jobID string) (*SyncJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	return job, nil
}

// ListActiveSyncJobs returns all running or pending jobs.
func (s *SyncService) ListActiveSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	var active []*SyncJob
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			active = append(active, job)
		}
	}
	return active
}

// ListAllSyncJobs returns all jobs (for debugging/monitoring).
func (s *SyncService) ListAllSyncJobs() []*SyncJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelSync cancels a running sync job.
func (s *SyncService) CancelSync(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	job.Progress.CurrentPhase = "cancelled"
	job.Progress.LastUpdate = now

	s.logger.Info("sync job cancelled", "job_id", jobID)
	return nil
}

// newOrchestrator builds an orchestrator with a run-scoped logger
func (s *SyncService) newOrchestrator(verbose bool) *appsync.Orchestrator {
	loggingCfg := s.cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	syncLogger := logging.NewLoggerWithSystem(loggingCfg, "sync")

	return appsync.NewOrchestrator(s.client, s.tokens, s.repo, s.cfg.Sync, syncLogger)
}

// runSyncJob executes the sync job in a background goroutine.
func (s *SyncService) runSyncJob(ctx context.Context, job *SyncJob) {
	defer s.unlockProvider(job.Provider, job.ID)

	s.updateJobStatus(job.ID, StatusRunning, SyncProgress{
		CurrentPhase: "initializing",
		LastUpdate:   time.Now(),
	})

	orchestrator := s.newOrchestrator(job.Request.Verbose)

	opts := job.Request.options(func(update appsync.ProgressUpdate) {
		s.updateJobProgress(job.ID, update)
	})

	result, err := orchestrator.Run(ctx, opts)

	// Already marked as cancelled in CancelSync; the partial result is dropped
	if ctx.Err() == context.Canceled {
		return
	}

	if err != nil {
		s.failJob(job.ID, err)
		return
	}

	s.completeJob(job.ID, result)
}

// updateJobStatus updates a job's status and progress.
func (s *SyncService) updateJobStatus(jobID string, status SyncStatus, progress SyncProgress) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Status = status
		job.Progress = progress
	}
}

// updateJobProgress updates job progress from the orchestrator callback.
func (s *SyncService) updateJobProgress(jobID string, update appsync.ProgressUpdate) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Progress.CurrentPhase = update.Phase
		job.Progress.TotalListings = update.TotalListings
		job.Progress.ProcessedListings = update.ProcessedListings
		job.Progress.FailedListings = update.FailedListings
		job.Progress.LastUpdate = time.Now()
	}
}

// completeJob marks a job as completed with results.
func (s *SyncService) completeJob(jobID string, result *appsync.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Result = result
		// Preserve TotalListings from the existing progress
		job.Progress.CurrentPhase = "completed"
		job.Progress.ProcessedListings = len(result.Results)
		job.Progress.FailedListings = result.FailedListings()
		job.Progress.LastUpdate = now
		s.logger.Info("sync job completed",
			"job_id", jobID,
			"status", result.Status,
			"bookings_synced", result.BookingsSynced,
			"failed_listings", result.FailedListings(),
		)
	}
}

// failJob marks a job as failed with an error.
func (s *SyncService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = err
		job.Progress = SyncProgress{
			CurrentPhase: "failed",
			LastUpdate:   now,
		}
		s.logger.Error("sync job failed", "job_id", jobID, "error", err)
	}
}

// tryLockProvider attempts to acquire the lock for a provider on behalf of
// the given run (job id or a one-off token for synchronous runs).
func (s *SyncService) tryLockProvider(provider, owner string) bool {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if _, held := s.providerLocks[provider]; held {
		return false
	}
	s.providerLocks[provider] = owner
	return true
}

// unlockProvider releases the lock for a provider, but only if the caller
// still owns it. A no-op when the lock was force-released by the stale-job
// reaper and reacquired by a newer run.
func (s *SyncService) unlockProvider(provider, owner string) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if s.providerLocks[provider] == owner {
		delete(s.providerLocks, provider)
	}
}

// generateJobID creates a unique job ID.
func (s *SyncService) generateJobID() string {
	return fmt.Sprintf("%s-%s", guesty.ProviderName, uuid.NewString())
}

// CleanupOldJobs removes completed jobs older than the specified duration.
func (s *SyncService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, job := range s.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old sync jobs", "removed", removed)
	}

	return removed
}

// MarkStaleJobsAsFailed finds jobs that appear to be stuck and marks them as
// failed. A job is stale when it has run longer than maxDuration, or its
// Progress.LastUpdate is older than staleThreshold. This covers goroutines
// that panicked without updating status and jobs that are genuinely stuck.
func (s *SyncService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0

	for id, job := range s.jobs {
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}

		isStale := false
		reason := ""

		if now.Sub(job.StartedAt) > maxDuration {
			isStale = true
			reason = fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, now.Sub(job.StartedAt).Round(time.Second))
		}

		if !isStale && now.Sub(job.Progress.LastUpdate) > staleThreshold {
			isStale = true
			reason = fmt.Sprintf("no progress update for %v (threshold: %v)", now.Sub(job.Progress.LastUpdate).Round(time.Second), staleThreshold)
		}

		if isStale {
			if job.cancelFunc != nil {
				job.cancelFunc()
			}

			job.Status = StatusFailed
			job.CompletedAt = &now
			job.Error = fmt.Errorf("job marked as stale: %s", reason)
			job.Progress.CurrentPhase = "failed"
			job.Progress.LastUpdate = now

			s.unlockProvider(job.Provider, id)

			s.logger.Warn("marked stale job as failed",
				"job_id", id,
				"reason", reason,
				"started_at", job.StartedAt,
				"last_update", job.Progress.LastUpdate,
			)

			marked++
		}
	}

	return marked
}

// StartBackgroundCleanup starts a goroutine that periodically marks stale
// jobs as failed and removes old completed jobs. Call StopBackgroundCleanup
// to stop it.
func (s *SyncService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background job cleanup started",
			"check_interval", checkInterval,
			"stale_threshold", DefaultJobStaleThreshold,
			"max_duration", DefaultJobMaxDuration,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background job cleanup stopped")
				return
			case <-ticker.C:
				staleMarked := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration)
				if staleMarked > 0 {
					s.logger.Info("marked stale jobs as failed", "count", staleMarked)
				}

				cleaned := s.CleanupOldJobs(24 * time.Hour)
				if cleaned > 0 {
					s.logger.Debug("cleaned up old jobs", "count", cleaned)
				}
			}
		}
	}()
}

// StopBackgroundCleanup stops the background cleanup goroutine and blocks
// until it has fully stopped.
func (s *SyncService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}

	close(s.cleanupStop)
	<-s.cleanupDone
}
