package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// ErrInvalidOptions is returned when the run target is ambiguous or missing
var ErrInvalidOptions = errors.New("exactly one of listing id or sync-all must be set")

// listingOutcome carries the per-listing counts back to the run loop
type listingOutcome struct {
	result      ListingResult
	created     int
	updated     int
	deleted     int
	rateLimited bool
}

// Run executes one sync. Listings are processed sequentially with a pause
// between them; a per-listing failure is recorded and the run continues.
// Only token acquisition failure aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now()

	budget := opts.Budget
	if budget <= 0 {
		budget = o.cfg.Budget()
	}
	deadline := start.Add(budget)

	listingIDs, err := o.resolveListings(opts)
	if err != nil {
		return nil, err
	}

	o.logger.Info("starting sync run",
		"provider", guesty.ProviderName,
		"listings", len(listingIDs),
		"budget", budget.String())

	// Audit failures never block the sync itself
	logID, err := o.repo.StartSyncLog(guesty.ProviderName, start)
	if err != nil {
		o.logger.Warn("failed to start sync log", "error", err)
		logID = 0
	}

	result := &Result{Status: StatusInProgress}

	token, err := o.tokens.Token(ctx)
	if err != nil {
		var rlErr *guesty.RateLimitError
		result.Status = StatusError
		result.Message = fmt.Sprintf("token acquisition failed: %v", err)
		o.finish(logID, result, errors.As(err, &rlErr))
		return result, err
	}

	rateLimited := false

	for i, listingID := range listingIDs {
		if ctx.Err() != nil {
			o.logger.Warn("sync cancelled",
				"processed", i,
				"remaining", len(listingIDs)-i)
			result.Status = StatusPartial
			break
		}
		if o.now().After(deadline) {
			o.logger.Warn("execution budget exhausted",
				"processed", i,
				"remaining", len(listingIDs)-i)
			result.Status = StatusPartial
			break
		}

		if i > 0 {
			o.sleep(o.cfg.ListingDelay())
		}

		outcome := o.syncListing(ctx, token, listingID)
		result.Results = append(result.Results, outcome.result)
		result.BookingsSynced += outcome.result.BookingsCount
		result.Created += outcome.created
		result.Updated += outcome.updated
		result.Deleted += outcome.deleted
		if outcome.rateLimited {
			rateLimited = true
		}

		if opts.Progress != nil {
			opts.Progress(ProgressUpdate{
				Phase:             "syncing",
				TotalListings:     len(listingIDs),
				ProcessedListings: i + 1,
				FailedListings:    result.FailedListings(),
			})
		}
	}

	if result.Status == StatusInProgress {
		if result.FailedListings() == len(listingIDs) && len(listingIDs) > 0 {
			result.Status = StatusError
		} else {
			result.Status = StatusCompleted
		}
	}

	result.Message = fmt.Sprintf("synced %d bookings across %d listings (%d created, %d updated, %d cancelled)",
		result.BookingsSynced, len(result.Results), result.Created, result.Updated, result.Deleted)
	if failed := result.FailedListings(); failed > 0 {
		result.Message += fmt.Sprintf(", %d listings failed", failed)
	}

	o.finish(logID, result, rateLimited)

	o.logger.Info("sync run finished",
		"status", result.Status,
		"bookings_synced", result.BookingsSynced,
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"duration", o.now().Sub(start).String())

	return result, nil
}

// resolveListings maps the run target to a concrete listing id list
func (o *Orchestrator) resolveListings(opts Options) ([]string, error) {
	switch {
	case opts.ListingID != "" && opts.SyncAll:
		return nil, ErrInvalidOptions
	case opts.ListingID != "":
		return []string{opts.ListingID}, nil
	case opts.SyncAll:
		ids, err := o.repo.ActiveListingIDs()
		if err != nil {
			return nil, fmt.Errorf("failed to load active listings: %w", err)
		}
		return ids, nil
	default:
		return nil, ErrInvalidOptions
	}
}

// syncListing runs fetch, reconcile, upsert for one listing. Errors are
// captured in the outcome rather than propagated so one listing cannot take
// down the run.
func (o *Orchestrator) syncListing(ctx context.Context, token, listingID string) listingOutcome {
	outcome := listingOutcome{result: ListingResult{ListingID: listingID}}

	reservations, err := o.client.FetchReservations(ctx, token, listingID)
	if err != nil {
		var rlErr *guesty.RateLimitError
		if errors.As(err, &rlErr) {
			outcome.rateLimited = true
		}
		o.logger.Error("listing sync failed", "listing_id", listingID, "error", err)
		outcome.result.Error = err.Error()
		return outcome
	}

	syncable := FilterSyncable(reservations)
	o.logger.Debug("fetched reservations",
		"listing_id", listingID,
		"total", len(reservations),
		"syncable", len(syncable))

	// Obsolete bookings are cancelled before the upsert so a booking that
	// vanished remotely cannot survive the run untouched.
	today := o.now().UTC().Format("2006-01-02")
	deleted, err := o.reconcileObsolete(listingID, syncable, today)
	if err != nil {
		o.logger.Error("failed to reconcile obsolete bookings", "listing_id", listingID, "error", err)
	}
	outcome.deleted = deleted

	now := o.now()
	bookings := make([]*storage.Booking, 0, len(syncable))
	for _, r := range syncable {
		if b := Normalize(r, listingID, now, o.logger); b != nil {
			bookings = append(bookings, b)
		}
	}

	created, updated := o.processor.Process(bookings)
	outcome.created = created
	outcome.updated = updated
	outcome.result.Success = true
	outcome.result.BookingsCount = len(bookings)
	return outcome
}

// reconcileObsolete cancels local future bookings that no longer appear in
// the remote active set. Cancellation preserves history; rows are never
// deleted.
func (o *Orchestrator) reconcileObsolete(listingID string, remote []guesty.Reservation, today string) (int, error) {
	activeIDs := make([]string, 0, len(remote))
	for _, r := range remote {
		if id := r.ReservationID(); id != "" {
			activeIDs = append(activeIDs, id)
		}
	}
	return o.repo.CancelStaleBookings(listingID, activeIDs, today, o.now())
}

// finish writes the audit trail for the run: the sync log row and the
// provider health record
func (o *Orchestrator) finish(logID int64, result *Result, rateLimited bool) {
	end := o.now()
	result.Success = result.Status == StatusCompleted || result.Status == StatusPartial

	if logID > 0 {
		if err := o.repo.CompleteSyncLog(logID, result.Status, result.Message,
			result.Created, result.Updated, result.Deleted, result.BookingsSynced, end); err != nil {
			o.logger.Warn("failed to complete sync log", "error", err)
		}
	}

	health := &storage.IntegrationHealth{
		Provider:           guesty.ProviderName,
		Status:             healthStatus(result.Status),
		LastBookingsSynced: result.BookingsSynced,
		RateLimited:        rateLimited,
		UpdatedAt:          end,
	}
	if result.Success {
		health.LastSynced = &end
	}
	if result.Status == StatusError {
		health.LastError = result.Message
	}

	if err := o.repo.UpsertIntegrationHealth(health); err != nil {
		o.logger.Warn("failed to update integration health", "error", err)
	}
}

// healthStatus maps a run status to the monitoring vocabulary
func healthStatus(runStatus string) string {
	switch runStatus {
	case StatusCompleted:
		return "healthy"
	case StatusPartial:
		return "degraded"
	default:
		return "error"
	}
}
