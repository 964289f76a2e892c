// Package sync implements the booking synchronization pipeline: fetch remote
// reservations per listing, cancel locally-stale bookings, and apply the
// remote set in bounded batches.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// Run states recorded in sync_logs
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusError      = "error"
)

// Options holds parameters for one sync run. Exactly one of ListingID or
// SyncAll must be set.
type Options struct {
	ListingID string
	SyncAll   bool

	// Budget bounds the wall-clock duration of the run; listings not reached
	// before it elapses are left for the next run. Zero means the configured
	// default.
	Budget time.Duration

	// Progress, when set, receives updates as listings complete
	Progress func(ProgressUpdate)
}

// ProgressUpdate reports orchestrator progress to the job layer
type ProgressUpdate struct {
	Phase             string
	TotalListings     int
	ProcessedListings int
	FailedListings    int
}

// ListingResult is the per-listing outcome included in the run result
type ListingResult struct {
	ListingID     string `json:"listingId"`
	Success       bool   `json:"success"`
	BookingsCount int    `json:"bookingsCount,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Result is the aggregate outcome of one run
type Result struct {
	Status         string          `json:"status"`
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	BookingsSynced int             `json:"bookingsSynced"`
	Created        int             `json:"created"`
	Updated        int             `json:"updated"`
	Deleted        int             `json:"deleted"`
	Results        []ListingResult `json:"results"`
}

// FailedListings counts per-listing failures in the result
func (r *Result) FailedListings() int {
	failed := 0
	for _, lr := range r.Results {
		if !lr.Success {
			failed++
		}
	}
	return failed
}

// ReservationFetcher fetches the remote reservations for a listing
type ReservationFetcher interface {
	FetchReservations(ctx context.Context, token, listingID string) ([]guesty.Reservation, error)
}

// TokenSource supplies a valid API token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Orchestrator runs the fetch, reconcile, upsert sequence across listings
type Orchestrator struct {
	client    ReservationFetcher
	tokens    TokenSource
	repo      storage.Repository
	processor *Processor
	cfg       config.SyncConfig
	logger    *slog.Logger

	// Injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(
	client ReservationFetcher,
	tokens TokenSource,
	repo storage.Repository,
	cfg config.SyncConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		client:    client,
		tokens:    tokens,
		repo:      repo,
		processor: NewProcessor(repo, cfg, logger),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}
