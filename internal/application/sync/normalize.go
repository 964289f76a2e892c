package sync

import (
	"log/slog"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/adapters/guesty"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// DefaultGuestName is used when the remote record carries no guest name
const DefaultGuestName = "Unknown Guest"

// excludedStatuses are never created locally and never count toward the
// active remote set during reconciliation
var excludedStatuses = map[string]bool{
	"cancelled": true,
	"test":      true,
}

// Excluded reports whether a remote status is ignored by the pipeline
func Excluded(status string) bool {
	return excludedStatuses[status]
}

// FilterSyncable drops reservations whose status is excluded
func FilterSyncable(reservations []guesty.Reservation) []guesty.Reservation {
	syncable := make([]guesty.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if Excluded(r.Status) {
			continue
		}
		syncable = append(syncable, r)
	}
	return syncable
}

// Normalize maps a remote reservation to a local booking, resolving the
// field-name variants Guesty has shipped over time. Returns nil when the
// record has no usable reservation id or listing id.
func Normalize(r guesty.Reservation, fallbackListingID string, now time.Time, logger *slog.Logger) *storage.Booking {
	id := r.ReservationID()
	if id == "" {
		logger.Warn("skipping reservation without id", "listing_id", fallbackListingID)
		return nil
	}

	listingID := r.ListingID
	if listingID == "" && r.Listing != nil {
		listingID = r.Listing.ID
	}
	if listingID == "" {
		listingID = fallbackListingID
	}
	if listingID == "" {
		logger.Warn("skipping reservation without listing id", "reservation_id", id)
		return nil
	}

	guestName := DefaultGuestName
	if r.Guest != nil {
		if r.Guest.FullName != "" {
			guestName = r.Guest.FullName
		} else if r.Guest.Name != "" {
			guestName = r.Guest.Name
		}
	}

	status := r.Status
	if status == "" {
		status = "confirmed"
	}

	return &storage.Booking{
		ID:         id,
		ListingID:  listingID,
		GuestName:  guestName,
		CheckIn:    dateOnly(firstNonEmpty(r.StartDate, r.CheckIn)),
		CheckOut:   dateOnly(firstNonEmpty(r.EndDate, r.CheckOut)),
		Status:     status,
		LastSynced: now,
		RawData:    string(r.Raw),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// dateOnly trims ISO timestamps to the date portion so stored dates compare
// lexicographically
func dateOnly(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
