package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/application/service"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

type stubFetcher struct {
	block chan struct{}
}

func (f stubFetcher) FetchReservations(ctx context.Context, _ string, _ string) ([]guesty.Reservation, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

type stubTokens struct{}

func (stubTokens) Token(context.Context) (string, error) { return "tok", nil }

func newTestScheduler(t *testing.T, fetcher stubFetcher) (*Scheduler, *service.SyncService, *storage.MockRepository) {
	t.Helper()

	repo := storage.NewMockRepository()
	cfg := &config.Config{
		Sync: config.SyncConfig{BatchSize: 10, BudgetSeconds: 60},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Level: "error"},
		},
	}
	svc := service.NewSyncService(cfg, fetcher, stubTokens{}, repo, nil)

	return New(svc, config.SchedulerConfig{Enabled: true, IntervalMinutes: 60}, nil), svc, repo
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, stubFetcher{})

	require.NoError(t, s.Start())
	s.Stop()
}

func TestScheduler_TriggersSyncAll(t *testing.T) {
	s, svc, _ := newTestScheduler(t, stubFetcher{})

	s.runScheduledSync()

	jobs := svc.ListAllSyncJobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Request.SyncAll)

	// Wait for the background job so the test does not leak a goroutine
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetSyncJob(jobs[0].ID)
		require.NoError(t, err)
		if job.Status != service.StatusPending && job.Status != service.StatusRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_SkipsWhenSyncInFlight(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	s, svc, repo := newTestScheduler(t, stubFetcher{block: block})
	repo.SeedListing(&storage.Listing{ID: "l1", SyncStatus: "active"})

	// Hold the provider lock with a job blocked mid-fetch
	jobID, err := svc.StartSync(context.Background(), service.SyncRequest{SyncAll: true})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetSyncJob(jobID)
		require.NoError(t, err)
		if job.Status == service.StatusRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The overlapping trigger is skipped, not queued
	s.runScheduledSync()

	assert.Len(t, svc.ListAllSyncJobs(), 1)
}
