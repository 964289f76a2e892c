package storage

import "time"

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	BookingRepository
	ListingRepository
	SyncLogRepository
	HealthRepository
	TelemetryRepository
	CredentialStore
	Close() error
}

// Booking mirrors a remote Guesty reservation in the local store.
// ID is the remote-assigned identifier and is stable across syncs.
type Booking struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	GuestName  string    `json:"guest_name"`
	CheckIn    string    `json:"check_in"`  // date-only, YYYY-MM-DD
	CheckOut   string    `json:"check_out"` // date-only, YYYY-MM-DD
	Status     string    `json:"status"`
	LastSynced time.Time `json:"last_synced"`
	RawData    string    `json:"raw_data,omitempty"` // full remote payload, preserved
}

// BookingRepository handles booking persistence
type BookingRepository interface {
	// ExistingBookingIDs returns which of the given ids already exist,
	// using a single IN lookup.
	ExistingBookingIDs(ids []string) (map[string]bool, error)

	// InsertBookings bulk-inserts new bookings in one statement
	InsertBookings(bookings []*Booking) error

	// UpdateBookings re-applies fields for bookings that already exist,
	// as a single multi-row upsert
	UpdateBookings(bookings []*Booking) error

	// CancelStaleBookings transitions to cancelled every non-cancelled booking
	// for the listing with check_out after today whose id is not in activeIDs.
	// Applied as one bulk update by id list; returns the number of rows changed.
	CancelStaleBookings(listingID string, activeIDs []string, today string, now time.Time) (int, error)

	// ListBookingsByListing returns bookings for a listing, newest check-in first
	ListBookingsByListing(listingID string, limit int) ([]*Booking, error)

	// GetBooking retrieves a booking by id, or nil when absent
	GetBooking(id string) (*Booking, error)
}

// Listing is a local property listing registered for sync
type Listing struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SyncStatus string `json:"sync_status"`
	IsDeleted  bool   `json:"is_deleted"`
}

// ListingRepository handles the local listing registry
type ListingRepository interface {
	// ActiveListingIDs returns ids of listings with sync enabled
	// (is_deleted = 0 AND sync_status = 'active')
	ActiveListingIDs() ([]string, error)

	// ListListings returns all non-deleted listings
	ListListings() ([]Listing, error)

	// UpsertListing creates or updates a listing row
	UpsertListing(l *Listing) error
}

// SyncLog is the audit record for one orchestrator run
type SyncLog struct {
	ID             int64      `json:"id"`
	Provider       string     `json:"provider"`
	Status         string     `json:"status"` // in_progress | completed | partial | error
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Message        string     `json:"message"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Deleted        int        `json:"deleted"`
	EntitiesSynced int        `json:"entities_synced"`
	SyncDurationMs int64      `json:"sync_duration_ms"`
}

// SyncLogRepository handles sync run audit records
type SyncLogRepository interface {
	// StartSyncLog inserts an in_progress row and returns its id
	StartSyncLog(provider string, startTime time.Time) (int64, error)

	// CompleteSyncLog mutates the row exactly once at run end
	CompleteSyncLog(id int64, status, message string, created, updated, deleted, synced int, endTime time.Time) error

	// ListSyncLogs returns recent runs, newest first
	ListSyncLogs(limit int) ([]SyncLog, error)

	// GetSyncLog retrieves a run by id, or nil when absent
	GetSyncLog(id int64) (*SyncLog, error)
}

// IntegrationHealth is the singleton-per-provider monitoring record
type IntegrationHealth struct {
	Provider           string     `json:"provider"`
	Status             string     `json:"status"`
	LastSynced         *time.Time `json:"last_synced,omitempty"`
	LastBookingsSynced int        `json:"last_bookings_synced"`
	LastError          string     `json:"last_error,omitempty"`
	RateLimited        bool       `json:"rate_limited"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HealthRepository handles integration health records
type HealthRepository interface {
	// UpsertIntegrationHealth creates or replaces the provider's health row.
	// A nil LastSynced keeps the previously recorded value.
	UpsertIntegrationHealth(h *IntegrationHealth) error

	// GetIntegrationHealth retrieves the provider's health row, or nil when absent
	GetIntegrationHealth(provider string) (*IntegrationHealth, error)
}

// RateLimitSample is one observation of remote rate-limit headers.
// Append-only; never updated.
type RateLimitSample struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	RateLimit int       `json:"rate_limit"`
	Remaining int       `json:"remaining"`
	Reset     string    `json:"reset"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryRepository handles rate-limit telemetry
type TelemetryRepository interface {
	// InsertRateLimitSample appends one telemetry row
	InsertRateLimitSample(s *RateLimitSample) error

	// ListRateLimitSamples returns recent samples, newest first
	ListRateLimitSamples(limit int) ([]RateLimitSample, error)
}

// CachedToken is a persisted OAuth token keyed by provider name
type CachedToken struct {
	Provider    string    `json:"provider"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CredentialStore abstracts the shared token cache row so the token
// provider stays testable with a fake store.
type CredentialStore interface {
	// GetCachedToken returns the provider's token row, or nil when absent
	GetCachedToken(provider string) (*CachedToken, error)

	// PutCachedToken upserts the provider's token row (idempotent, not append)
	PutCachedToken(t *CachedToken) error
}
