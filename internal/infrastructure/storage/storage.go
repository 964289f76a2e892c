package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite-backed persistence for the sync pipeline
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// placeholders builds "?, ?, ?" for n parameters
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ----------------------------------------------------------------
// BookingRepository
// ----------------------------------------------------------------

// ExistingBookingIDs returns which of the given ids already exist,
// using a single IN lookup
func (s *Storage) ExistingBookingIDs(ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	query := fmt.Sprintf(`SELECT id FROM bookings WHERE id IN (%s)`, placeholders(len(ids)))

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}

	return existing, rows.Err()
}

// InsertBookings bulk-inserts new bookings in one statement
func (s *Storage) InsertBookings(bookings []*Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO bookings
		(id, listing_id, guest_name, check_in, check_out, status, last_synced, raw_data)
		VALUES `)

	args := make([]interface{}, 0, len(bookings)*8)
	for i, b := range bookings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.ID, b.ListingID, b.GuestName, b.CheckIn, b.CheckOut, b.Status, b.LastSynced, b.RawData)
	}

	_, err := s.db.Exec(sb.String(), args...)
	return err
}

// UpdateBookings re-applies fields for bookings that already exist.
// Uses a multi-row upsert so the batch is one statement regardless of size;
// a retried "create" becomes a plain update once the row exists.
func (s *Storage) UpdateBookings(bookings []*Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO bookings
		(id, listing_id, guest_name, check_in, check_out, status, last_synced, raw_data)
		VALUES `)

	args := make([]interface{}, 0, len(bookings)*8)
	for i, b := range bookings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.ID, b.ListingID, b.GuestName, b.CheckIn, b.CheckOut, b.Status, b.LastSynced, b.RawData)
	}

	sb.WriteString(` ON CONFLICT(id) DO UPDATE SET
		listing_id = excluded.listing_id,
		guest_name = excluded.guest_name,
		check_in = excluded.check_in,
		check_out = excluded.check_out,
		status = excluded.status,
		last_synced = excluded.last_synced,
		raw_data = excluded.raw_data`)

	_, err := s.db.Exec(sb.String(), args...)
	return err
}

// CancelStaleBookings transitions to cancelled every non-cancelled booking for
// the listing with check_out after today whose id is not in activeIDs. The
// obsolete set is computed in code and applied as one bulk update by id list.
func (s *Storage) CancelStaleBookings(listingID string, activeIDs []string, today string, now time.Time) (int, error) {
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	rows, err := s.db.Query(`
		SELECT id FROM bookings
		WHERE listing_id = ? AND check_out > ? AND status != 'cancelled'
	`, listingID, today)
	if err != nil {
		return 0, err
	}

	var obsolete []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if !active[id] {
			obsolete = append(obsolete, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	if len(obsolete) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
		UPDATE bookings SET status = 'cancelled', last_synced = ?
		WHERE id IN (%s)
	`, placeholders(len(obsolete)))

	args := make([]interface{}, 0, len(obsolete)+1)
	args = append(args, now)
	for _, id := range obsolete {
		args = append(args, id)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

// ListBookingsByListing returns bookings for a listing, newest check-in first
func (s *Storage) ListBookingsByListing(listingID string, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, listing_id, guest_name, check_in, check_out, status, last_synced, raw_data
		FROM bookings
		WHERE listing_id = ?
		ORDER BY check_in DESC
		LIMIT ?
	`, listingID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}

// GetBooking retrieves a booking by id, or nil when absent
func (s *Storage) GetBooking(id string) (*Booking, error) {
	row := s.db.QueryRow(`
		SELECT id, listing_id, guest_name, check_in, check_out, status, last_synced, raw_data
		FROM bookings WHERE id = ?
	`, id)

	b := &Booking{}
	var guestName, checkIn, checkOut, rawData sql.NullString
	err := row.Scan(&b.ID, &b.ListingID, &guestName, &checkIn, &checkOut, &b.Status, &b.LastSynced, &rawData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.GuestName = guestName.String
	b.CheckIn = checkIn.String
	b.CheckOut = checkOut.String
	b.RawData = rawData.String
	return b, nil
}

// scanBooking scans a booking row from a multi-row query
func scanBooking(rows *sql.Rows) (*Booking, error) {
	b := &Booking{}
	var guestName, checkIn, checkOut, rawData sql.NullString
	err := rows.Scan(&b.ID, &b.ListingID, &guestName, &checkIn, &checkOut, &b.Status, &b.LastSynced, &rawData)
	if err != nil {
		return nil, err
	}
	b.GuestName = guestName.String
	b.CheckIn = checkIn.String
	b.CheckOut = checkOut.String
	b.RawData = rawData.String
	return b, nil
}

// ----------------------------------------------------------------
// ListingRepository
// ----------------------------------------------------------------

// ActiveListingIDs returns ids of listings with sync enabled
func (s *Storage) ActiveListingIDs() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT id FROM listings
		WHERE is_deleted = 0 AND sync_status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListListings returns all non-deleted listings
func (s *Storage) ListListings() ([]Listing, error) {
	rows, err := s.db.Query(`
		SELECT id, name, sync_status, is_deleted FROM listings
		WHERE is_deleted = 0
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var listings []Listing
	for rows.Next() {
		var l Listing
		var name sql.NullString
		if err := rows.Scan(&l.ID, &name, &l.SyncStatus, &l.IsDeleted); err != nil {
			return nil, err
		}
		l.Name = name.String
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

// UpsertListing creates or updates a listing row
func (s *Storage) UpsertListing(l *Listing) error {
	_, err := s.db.Exec(`
		INSERT INTO listings (id, name, sync_status, is_deleted)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sync_status = excluded.sync_status,
			is_deleted = excluded.is_deleted
	`, l.ID, l.Name, l.SyncStatus, l.IsDeleted)
	return err
}

// ----------------------------------------------------------------
// SyncLogRepository
// ----------------------------------------------------------------

// StartSyncLog inserts an in_progress row and returns its id
func (s *Storage) StartSyncLog(provider string, startTime time.Time) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO sync_logs (provider, status, start_time)
		VALUES (?, 'in_progress', ?)
	`, provider, startTime)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// CompleteSyncLog mutates the row exactly once at run end
func (s *Storage) CompleteSyncLog(id int64, status, message string, created, updated, deleted, synced int, endTime time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sync_logs
		SET status = ?,
		    message = ?,
		    created = ?,
		    updated = ?,
		    deleted = ?,
		    entities_synced = ?,
		    end_time = ?,
		    sync_duration_ms = CAST((julianday(?) - julianday(start_time)) * 86400000 AS INTEGER)
		WHERE id = ?
	`, status, message, created, updated, deleted, synced, endTime, endTime, id)
	return err
}

// ListSyncLogs returns recent runs, newest first
func (s *Storage) ListSyncLogs(limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, provider, status, start_time, end_time, message,
		       created, updated, deleted, entities_synced, sync_duration_ms
		FROM sync_logs
		ORDER BY start_time DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var logs []SyncLog
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *entry)
	}

	return logs, rows.Err()
}

// GetSyncLog retrieves a run by id
func (s *Storage) GetSyncLog(id int64) (*SyncLog, error) {
	rows, err := s.db.Query(`
		SELECT id, provider, status, start_time, end_time, message,
		       created, updated, deleted, entities_synced, sync_duration_ms
		FROM sync_logs WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}

	return scanSyncLog(rows)
}

func scanSyncLog(rows *sql.Rows) (*SyncLog, error) {
	entry := &SyncLog{}
	var endTime sql.NullTime
	var message sql.NullString
	err := rows.Scan(
		&entry.ID,
		&entry.Provider,
		&entry.Status,
		&entry.StartTime,
		&endTime,
		&message,
		&entry.Created,
		&entry.Updated,
		&entry.Deleted,
		&entry.EntitiesSynced,
		&entry.SyncDurationMs,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		entry.EndTime = &endTime.Time
	}
	entry.Message = message.String
	return entry, nil
}

// ----------------------------------------------------------------
// HealthRepository
// ----------------------------------------------------------------

// UpsertIntegrationHealth creates or replaces the provider's health row
func (s *Storage) UpsertIntegrationHealth(h *IntegrationHealth) error {
	_, err := s.db.Exec(`
		INSERT INTO integration_health
			(provider, status, last_synced, last_bookings_synced, last_error, rate_limited, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			status = excluded.status,
			last_synced = COALESCE(excluded.last_synced, integration_health.last_synced),
			last_bookings_synced = excluded.last_bookings_synced,
			last_error = excluded.last_error,
			rate_limited = excluded.rate_limited,
			updated_at = excluded.updated_at
	`, h.Provider, h.Status, h.LastSynced, h.LastBookingsSynced, h.LastError, h.RateLimited, h.UpdatedAt)
	return err
}

// GetIntegrationHealth retrieves the provider's health row, or nil when absent
func (s *Storage) GetIntegrationHealth(provider string) (*IntegrationHealth, error) {
	row := s.db.QueryRow(`
		SELECT provider, status, last_synced, last_bookings_synced, last_error, rate_limited, updated_at
		FROM integration_health WHERE provider = ?
	`, provider)

	h := &IntegrationHealth{}
	var lastSynced sql.NullTime
	var lastError sql.NullString
	err := row.Scan(&h.Provider, &h.Status, &lastSynced, &h.LastBookingsSynced, &lastError, &h.RateLimited, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastSynced.Valid {
		h.LastSynced = &lastSynced.Time
	}
	h.LastError = lastError.String
	return h, nil
}

// ----------------------------------------------------------------
// TelemetryRepository
// ----------------------------------------------------------------

// InsertRateLimitSample appends one telemetry row
func (s *Storage) InsertRateLimitSample(sample *RateLimitSample) error {
	_, err := s.db.Exec(`
		INSERT INTO api_usage (endpoint, rate_limit, remaining, reset, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, sample.Endpoint, sample.RateLimit, sample.Remaining, sample.Reset, sample.Timestamp)
	return err
}

// ListRateLimitSamples returns recent samples, newest first
func (s *Storage) ListRateLimitSamples(limit int) ([]RateLimitSample, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, endpoint, rate_limit, remaining, reset, timestamp
		FROM api_usage
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []RateLimitSample
	for rows.Next() {
		var sample RateLimitSample
		var reset sql.NullString
		if err := rows.Scan(&sample.ID, &sample.Endpoint, &sample.RateLimit, &sample.Remaining, &reset, &sample.Timestamp); err != nil {
			return nil, err
		}
		sample.Reset = reset.String
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// ----------------------------------------------------------------
// CredentialStore
// ----------------------------------------------------------------

// GetCachedToken returns the provider's token row, or nil when absent
func (s *Storage) GetCachedToken(provider string) (*CachedToken, error) {
	row := s.db.QueryRow(`
		SELECT provider, access_token, expires_at, updated_at
		FROM provider_tokens WHERE provider = ?
	`, provider)

	t := &CachedToken{}
	err := row.Scan(&t.Provider, &t.AccessToken, &t.ExpiresAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// PutCachedToken upserts the provider's token row (idempotent, not append)
func (s *Storage) PutCachedToken(t *CachedToken) error {
	_, err := s.db.Exec(`
		INSERT INTO provider_tokens (provider, access_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, t.Provider, t.AccessToken, t.ExpiresAt, t.UpdatedAt)
	return err
}
