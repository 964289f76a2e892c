package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

type fakeFetcher struct {
	responses map[string][]guesty.Reservation
	errs      map[string]error
	calls     []string
	onFetch   func(listingID string)
}

func (f *fakeFetcher) FetchReservations(_ context.Context, _ string, listingID string) ([]guesty.Reservation, error) {
	f.calls = append(f.calls, listingID)
	if f.onFetch != nil {
		f.onFetch(listingID)
	}
	if err := f.errs[listingID]; err != nil {
		return nil, err
	}
	return f.responses[listingID], nil
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func newTestOrchestrator(repo storage.Repository, fetcher *fakeFetcher, tokens *fakeTokens) *Orchestrator {
	o := NewOrchestrator(fetcher, tokens, repo, config.SyncConfig{
		BatchSize:      10,
		ListingDelayMs: 1000,
		BudgetSeconds:  60,
	}, testLogger())

	o.now = func() time.Time { return testNow }
	o.sleep = func(time.Duration) {}
	o.processor.sleep = func(time.Duration) {}
	return o
}

func remoteReservation(id, listingID, status string) guesty.Reservation {
	return guesty.Reservation{
		ID:        id,
		ListingID: listingID,
		Guest:     &guesty.Guest{FullName: "Guest " + id},
		StartDate: "2026-09-01",
		EndDate:   "2026-09-05",
		Status:    status,
	}
}

func TestOrchestrator_Run_SingleListing(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{
		"l1": {
			remoteReservation("r1", "l1", "confirmed"),
			remoteReservation("r2", "l1", "reserved"),
		},
	}}
	tokens := &fakeTokens{token: "tok"}

	o := newTestOrchestrator(repo, fetcher, tokens)

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.BookingsSynced)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Updated)
	assert.Zero(t, result.Deleted)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)

	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, 2, repo.BookingCount())

	entry, err := repo.GetSyncLog(1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusCompleted, entry.Status)
	assert.Equal(t, 2, entry.Created)
	assert.Equal(t, 2, entry.EntitiesSynced)
	require.NotNil(t, entry.EndTime)

	health, err := repo.GetIntegrationHealth(guesty.ProviderName)
	require.NoError(t, err)
	require.NotNil(t, health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.LastBookingsSynced)
	assert.False(t, health.RateLimited)
	require.NotNil(t, health.LastSynced)
}

func TestOrchestrator_Run_Idempotent(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{
		"l1": {
			remoteReservation("r1", "l1", "confirmed"),
			remoteReservation("r2", "l1", "confirmed"),
		},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	first, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Zero(t, second.Deleted)
	assert.Equal(t, 2, repo.BookingCount())
}

func TestOrchestrator_Run_CancelsObsoleteBookings(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedBooking(&storage.Booking{
		ID:        "vanished",
		ListingID: "l1",
		CheckIn:   "2026-09-10",
		CheckOut:  "2026-09-15",
		Status:    "confirmed",
	})

	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{
		"l1": {remoteReservation("r1", "l1", "confirmed")},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Created)

	// Cancelled, never deleted
	gone, err := repo.GetBooking("vanished")
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.Equal(t, "cancelled", gone.Status)
}

func TestOrchestrator_Run_RemoteCancellationPropagates(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedBooking(&storage.Booking{
		ID:        "r1",
		ListingID: "l1",
		CheckIn:   "2026-09-01",
		CheckOut:  "2026-09-05",
		Status:    "confirmed",
	})

	// The reservation still exists remotely but with an excluded status,
	// so it drops out of the active set and gets cancelled locally.
	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{
		"l1": {
			remoteReservation("r1", "l1", "cancelled"),
			remoteReservation("r2", "l1", "test"),
		},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.BookingsSynced)

	b, _ := repo.GetBooking("r1")
	assert.Equal(t, "cancelled", b.Status)

	// Excluded statuses are never created locally
	missing, _ := repo.GetBooking("r2")
	assert.Nil(t, missing)
}

func TestOrchestrator_Run_SyncAll_ListingFailureIsolated(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedListing(&storage.Listing{ID: "l1", SyncStatus: "active"})
	repo.SeedListing(&storage.Listing{ID: "l2", SyncStatus: "active"})
	repo.SeedListing(&storage.Listing{ID: "l3", SyncStatus: "active"})

	fetcher := &fakeFetcher{
		responses: map[string][]guesty.Reservation{
			"l1": {remoteReservation("r1", "l1", "confirmed")},
			"l3": {remoteReservation("r3", "l3", "confirmed")},
		},
		errs: map[string]error{
			"l2": &guesty.APIError{Endpoint: "/v1/reservations", StatusCode: 502},
		},
	}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	result, err := o.Run(context.Background(), Options{SyncAll: true})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.FailedListings())
	require.Len(t, result.Results, 3)

	for _, lr := range result.Results {
		if lr.ListingID == "l2" {
			assert.False(t, lr.Success)
			assert.NotEmpty(t, lr.Error)
		} else {
			assert.True(t, lr.Success)
		}
	}
}

func TestOrchestrator_Run_AllListingsFailedIsError(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{errs: map[string]error{
		"l1": &guesty.APIError{Endpoint: "/v1/reservations", StatusCode: 500},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	assert.False(t, result.Success)
}

func TestOrchestrator_Run_BudgetStopsEarly(t *testing.T) {
	repo := storage.NewMockRepository()
	for _, id := range []string{"l1", "l2", "l3", "l4", "l5"} {
		repo.SeedListing(&storage.Listing{ID: id, SyncStatus: "active"})
	}

	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	// Each listing fetch burns 30s of a 50s budget
	current := testNow
	o.now = func() time.Time { return current }
	fetcher.onFetch = func(string) { current = current.Add(30 * time.Second) }

	result, err := o.Run(context.Background(), Options{SyncAll: true, Budget: 50 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, result.Status)
	assert.True(t, result.Success)
	assert.Len(t, result.Results, 2)
	assert.Equal(t, []string{"l1", "l2"}, fetcher.calls)

	entry, err := repo.GetSyncLog(1)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, entry.Status)

	health, _ := repo.GetIntegrationHealth(guesty.ProviderName)
	require.NotNil(t, health)
	assert.Equal(t, "degraded", health.Status)
}

func TestOrchestrator_Run_TokenFailureIsFatal(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{}
	tokens := &fakeTokens{err: &guesty.AuthError{StatusCode: 401, Body: "invalid_client"}}

	o := newTestOrchestrator(repo, fetcher, tokens)

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusError, result.Status)
	assert.False(t, result.Success)
	assert.Empty(t, fetcher.calls)

	entry, logErr := repo.GetSyncLog(1)
	require.NoError(t, logErr)
	require.NotNil(t, entry)
	assert.Equal(t, StatusError, entry.Status)

	health, _ := repo.GetIntegrationHealth(guesty.ProviderName)
	require.NotNil(t, health)
	assert.Equal(t, "error", health.Status)
	assert.NotEmpty(t, health.LastError)
	assert.Nil(t, health.LastSynced)
}

func TestOrchestrator_Run_RateLimitedTokenIsFatalAndFlagged(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{}
	tokens := &fakeTokens{err: &guesty.RateLimitError{Endpoint: "token"}}

	o := newTestOrchestrator(repo, fetcher, tokens)

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.Error(t, err)

	// The rate limit error keeps its type for callers to classify
	var rlErr *guesty.RateLimitError
	require.True(t, errors.As(err, &rlErr))

	assert.Equal(t, StatusError, result.Status)
	assert.Empty(t, fetcher.calls)

	health, _ := repo.GetIntegrationHealth(guesty.ProviderName)
	require.NotNil(t, health)
	assert.Equal(t, "error", health.Status)
	assert.True(t, health.RateLimited)
}

func TestOrchestrator_Run_RateLimitSetsHealthFlag(t *testing.T) {
	repo := storage.NewMockRepository()
	fetcher := &fakeFetcher{errs: map[string]error{
		"l1": &guesty.RateLimitError{Endpoint: "/v1/reservations"},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	_, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)

	health, _ := repo.GetIntegrationHealth(guesty.ProviderName)
	require.NotNil(t, health)
	assert.True(t, health.RateLimited)
}

func TestOrchestrator_Run_InvalidOptions(t *testing.T) {
	o := newTestOrchestrator(storage.NewMockRepository(), &fakeFetcher{}, &fakeTokens{token: "tok"})

	_, err := o.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = o.Run(context.Background(), Options{ListingID: "l1", SyncAll: true})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestOrchestrator_Run_PausesBetweenListings(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedListing(&storage.Listing{ID: "l1", SyncStatus: "active"})
	repo.SeedListing(&storage.Listing{ID: "l2", SyncStatus: "active"})

	o := newTestOrchestrator(repo, &fakeFetcher{}, &fakeTokens{token: "tok"})

	var pauses []time.Duration
	o.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	_, err := o.Run(context.Background(), Options{SyncAll: true})
	require.NoError(t, err)

	// One pause between two listings, none before the first
	require.Len(t, pauses, 1)
	assert.Equal(t, time.Second, pauses[0])
}

func TestOrchestrator_Run_AuditFailureDoesNotBlockSync(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.StartLogErr = assert.AnError

	fetcher := &fakeFetcher{responses: map[string][]guesty.Reservation{
		"l1": {remoteReservation("r1", "l1", "confirmed")},
	}}

	o := newTestOrchestrator(repo, fetcher, &fakeTokens{token: "tok"})

	result, err := o.Run(context.Background(), Options{ListingID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, repo.BookingCount())
}

func TestOrchestrator_Run_ProgressCallback(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedListing(&storage.Listing{ID: "l1", SyncStatus: "active"})
	repo.SeedListing(&storage.Listing{ID: "l2", SyncStatus: "active"})

	o := newTestOrchestrator(repo, &fakeFetcher{}, &fakeTokens{token: "tok"})

	var updates []ProgressUpdate
	_, err := o.Run(context.Background(), Options{
		SyncAll:  true,
		Progress: func(u ProgressUpdate) { updates = append(updates, u) },
	})
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, 2, updates[0].TotalListings)
	assert.Equal(t, 1, updates[0].ProcessedListings)
	assert.Equal(t, 2, updates[1].ProcessedListings)
}
