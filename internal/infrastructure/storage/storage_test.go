package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testBooking(id, listingID, checkIn, checkOut string) *Booking {
	return &Booking{
		ID:         id,
		ListingID:  listingID,
		GuestName:  "Jane Tester",
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Status:     "confirmed",
		LastSynced: time.Now().UTC().Truncate(time.Second),
		RawData:    `{"id":"` + id + `"}`,
	}
}

func TestStorage_InsertAndExistingBookingIDs(t *testing.T) {
	store := newTestStorage(t)

	bookings := []*Booking{
		testBooking("r1", "l1", "2026-09-01", "2026-09-05"),
		testBooking("r2", "l1", "2026-09-10", "2026-09-12"),
	}
	require.NoError(t, store.InsertBookings(bookings))

	existing, err := store.ExistingBookingIDs([]string{"r1", "r2", "r3"})
	require.NoError(t, err)

	assert.True(t, existing["r1"])
	assert.True(t, existing["r2"])
	assert.False(t, existing["r3"])
}

func TestStorage_ListBookingsByListing_NewestCheckInFirst(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.InsertBookings([]*Booking{
		testBooking("r1", "l1", "2026-09-01", "2026-09-05"),
		testBooking("r2", "l1", "2026-10-01", "2026-10-05"),
		testBooking("r3", "l1", "2026-09-15", "2026-09-20"),
		testBooking("other", "l2", "2026-12-01", "2026-12-05"),
	}))

	bookings, err := store.ListBookingsByListing("l1", 10)
	require.NoError(t, err)
	require.Len(t, bookings, 3)

	assert.Equal(t, "r2", bookings[0].ID)
	assert.Equal(t, "r3", bookings[1].ID)
	assert.Equal(t, "r1", bookings[2].ID)
}

func TestMockRepository_ListBookingsByListing_MatchesSQLOrdering(t *testing.T) {
	repo := NewMockRepository()

	repo.SeedBooking(testBooking("r1", "l1", "2026-09-01", "2026-09-05"))
	repo.SeedBooking(testBooking("r2", "l1", "2026-10-01", "2026-10-05"))
	repo.SeedBooking(testBooking("r3", "l1", "2026-09-15", "2026-09-20"))

	bookings, err := repo.ListBookingsByListing("l1", 10)
	require.NoError(t, err)
	require.Len(t, bookings, 3)

	// Same newest-check-in-first order as the SQLite implementation
	assert.Equal(t, "r2", bookings[0].ID)
	assert.Equal(t, "r3", bookings[1].ID)
	assert.Equal(t, "r1", bookings[2].ID)
}

func TestStorage_ExistingBookingIDs_EmptyInput(t *testing.T) {
	store := newTestStorage(t)

	existing, err := store.ExistingBookingIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestStorage_UpdateBookings_ReappliesFields(t *testing.T) {
	store := newTestStorage(t)

	original := testBooking("r1", "l1", "2026-09-01", "2026-09-05")
	require.NoError(t, store.InsertBookings([]*Booking{original}))

	changed := testBooking("r1", "l1", "2026-09-02", "2026-09-06")
	changed.GuestName = "Renamed Guest"
	changed.Status = "confirmed"
	require.NoError(t, store.UpdateBookings([]*Booking{changed}))

	got, err := store.GetBooking("r1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Renamed Guest", got.GuestName)
	assert.Equal(t, "2026-09-02", got.CheckIn)
	assert.Equal(t, "2026-09-06", got.CheckOut)
}

func TestStorage_UpdateBookings_InsertsWhenRowMissing(t *testing.T) {
	store := newTestStorage(t)

	// A batch classified as updates may race a row that was never created;
	// the upsert must not fail in that case.
	b := testBooking("r9", "l1", "2026-10-01", "2026-10-03")
	require.NoError(t, store.UpdateBookings([]*Booking{b}))

	got, err := store.GetBooking("r9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "confirmed", got.Status)
}

func TestStorage_GetBooking_NotFound(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetBooking("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_CancelStaleBookings(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UTC()
	today := "2026-08-28"

	require.NoError(t, store.InsertBookings([]*Booking{
		testBooking("future-active", "l1", "2026-09-01", "2026-09-05"),
		testBooking("future-gone", "l1", "2026-09-10", "2026-09-12"),
		testBooking("past", "l1", "2026-08-01", "2026-08-05"),
		testBooking("other-listing", "l2", "2026-09-01", "2026-09-05"),
	}))

	cancelled := testBooking("already-cancelled", "l1", "2026-09-15", "2026-09-18")
	cancelled.Status = "cancelled"
	require.NoError(t, store.InsertBookings([]*Booking{cancelled}))

	count, err := store.CancelStaleBookings("l1", []string{"future-active"}, today, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	gone, err := store.GetBooking("future-gone")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", gone.Status)

	// Remote-active, historical and other-listing rows stay untouched
	active, _ := store.GetBooking("future-active")
	assert.Equal(t, "confirmed", active.Status)

	past, _ := store.GetBooking("past")
	assert.Equal(t, "confirmed", past.Status)

	other, _ := store.GetBooking("other-listing")
	assert.Equal(t, "confirmed", other.Status)
}

func TestStorage_CancelStaleBookings_EmptyActiveSet(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.InsertBookings([]*Booking{
		testBooking("r1", "l1", "2026-09-01", "2026-09-05"),
	}))

	// No remote reservations at all cancels every future booking
	count, err := store.CancelStaleBookings("l1", nil, "2026-08-28", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStorage_Listings(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.UpsertListing(&Listing{ID: "l1", Name: "Beach House", SyncStatus: "active"}))
	require.NoError(t, store.UpsertListing(&Listing{ID: "l2", Name: "City Flat", SyncStatus: "paused"}))
	require.NoError(t, store.UpsertListing(&Listing{ID: "l3", Name: "Old Cabin", SyncStatus: "active", IsDeleted: true}))

	ids, err := store.ActiveListingIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, ids)

	listings, err := store.ListListings()
	require.NoError(t, err)
	assert.Len(t, listings, 2)

	// Upsert updates in place
	require.NoError(t, store.UpsertListing(&Listing{ID: "l2", Name: "City Flat", SyncStatus: "active"}))
	ids, err = store.ActiveListingIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, ids)
}

func TestStorage_SyncLogLifecycle(t *testing.T) {
	store := newTestStorage(t)

	start := time.Now().UTC().Add(-2 * time.Second).Truncate(time.Second)
	id, err := store.StartSyncLog("guesty", start)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	entry, err := store.GetSyncLog(id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "in_progress", entry.Status)
	assert.Nil(t, entry.EndTime)

	end := start.Add(2 * time.Second)
	require.NoError(t, store.CompleteSyncLog(id, "completed", "synced 12 bookings", 5, 6, 1, 12, end))

	entry, err = store.GetSyncLog(id)
	require.NoError(t, err)
	assert.Equal(t, "completed", entry.Status)
	assert.Equal(t, 5, entry.Created)
	assert.Equal(t, 6, entry.Updated)
	assert.Equal(t, 1, entry.Deleted)
	assert.Equal(t, 12, entry.EntitiesSynced)
	require.NotNil(t, entry.EndTime)
	assert.InDelta(t, 2000, entry.SyncDurationMs, 100)

	logs, err := store.ListSyncLogs(10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStorage_GetSyncLog_NotFound(t *testing.T) {
	store := newTestStorage(t)

	entry, err := store.GetSyncLog(999)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStorage_IntegrationHealth_PreservesLastSynced(t *testing.T) {
	store := newTestStorage(t)

	synced := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpsertIntegrationHealth(&IntegrationHealth{
		Provider:           "guesty",
		Status:             "healthy",
		LastSynced:         &synced,
		LastBookingsSynced: 12,
		UpdatedAt:          synced,
	}))

	// A failed run reports no LastSynced; the previous timestamp must survive
	require.NoError(t, store.UpsertIntegrationHealth(&IntegrationHealth{
		Provider:  "guesty",
		Status:    "error",
		LastError: "token acquisition failed",
		UpdatedAt: synced.Add(time.Hour),
	}))

	h, err := store.GetIntegrationHealth("guesty")
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, "error", h.Status)
	assert.Equal(t, "token acquisition failed", h.LastError)
	require.NotNil(t, h.LastSynced)
	assert.Equal(t, synced.Unix(), h.LastSynced.Unix())
}

func TestStorage_GetIntegrationHealth_NotFound(t *testing.T) {
	store := newTestStorage(t)

	h, err := store.GetIntegrationHealth("guesty")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestStorage_RateLimitSamples(t *testing.T) {
	store := newTestStorage(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertRateLimitSample(&RateLimitSample{
			Endpoint:  "/v1/reservations",
			RateLimit: 15,
			Remaining: 15 - i,
			Reset:     "60",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	samples, err := store.ListRateLimitSamples(2)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	// Newest first
	assert.Equal(t, 12, samples[0].Remaining)
	assert.Equal(t, 13, samples[1].Remaining)
}

func TestStorage_CachedToken(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetCachedToken("guesty")
	require.NoError(t, err)
	assert.Nil(t, got)

	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.PutCachedToken(&CachedToken{
		Provider:    "guesty",
		AccessToken: "tok-1",
		ExpiresAt:   expires,
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}))

	got, err = store.GetCachedToken("guesty")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.AccessToken)

	// Upsert replaces, never appends
	require.NoError(t, store.PutCachedToken(&CachedToken{
		Provider:    "guesty",
		AccessToken: "tok-2",
		ExpiresAt:   expires.Add(time.Hour),
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}))

	got, err = store.GetCachedToken("guesty")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.AccessToken)
}
