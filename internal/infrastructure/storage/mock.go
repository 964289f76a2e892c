package storage

import (
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu        sync.Mutex
	bookings  map[string]*Booking
	listings  map[string]*Listing
	syncLogs  map[int64]*SyncLog
	health    map[string]*IntegrationHealth
	samples   []RateLimitSample
	tokens    map[string]*CachedToken
	nextLogID int64

	// Hooks for test assertions
	ExistingIDQueries [][]string // arguments of each ExistingBookingIDs call
	InsertedBatches   [][]*Booking
	UpdatedBatches    [][]*Booking
	CancelCalls       int

	// Error injection for testing error paths
	ExistingIDsErr error
	InsertErr      error
	UpdateErr      error
	CancelErr      error
	StartLogErr    error
	CompleteLogErr error
	GetTokenErr    error
	PutTokenErr    error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		bookings: make(map[string]*Booking),
		listings: make(map[string]*Listing),
		syncLogs: make(map[int64]*SyncLog),
		health:   make(map[string]*IntegrationHealth),
		tokens:   make(map[string]*CachedToken),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// SeedBooking inserts a booking directly, bypassing call tracking
func (m *MockRepository) SeedBooking(b *Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *b
	m.bookings[b.ID] = &copied
}

// SeedListing inserts a listing directly
func (m *MockRepository) SeedListing(l *Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *l
	m.listings[l.ID] = &copied
}

// BookingCount returns the number of stored bookings
func (m *MockRepository) BookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

// ExistingBookingIDs returns which of the given ids already exist
func (m *MockRepository) ExistingBookingIDs(ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExistingIDQueries = append(m.ExistingIDQueries, append([]string{}, ids...))
	if m.ExistingIDsErr != nil {
		return nil, m.ExistingIDsErr
	}

	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.bookings[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

// InsertBookings stores new bookings
func (m *MockRepository) InsertBookings(bookings []*Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertedBatches = append(m.InsertedBatches, bookings)
	if m.InsertErr != nil {
		return m.InsertErr
	}

	for _, b := range bookings {
		copied := *b
		m.bookings[b.ID] = &copied
	}
	return nil
}

// UpdateBookings re-applies fields for existing bookings
func (m *MockRepository) UpdateBookings(bookings []*Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdatedBatches = append(m.UpdatedBatches, bookings)
	if m.UpdateErr != nil {
		return m.UpdateErr
	}

	for _, b := range bookings {
		copied := *b
		m.bookings[b.ID] = &copied
	}
	return nil
}

// CancelStaleBookings cancels future, non-cancelled bookings absent from activeIDs
func (m *MockRepository) CancelStaleBookings(listingID string, activeIDs []string, today string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CancelCalls++
	if m.CancelErr != nil {
		return 0, m.CancelErr
	}

	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	count := 0
	for _, b := range m.bookings {
		if b.ListingID != listingID || b.Status == "cancelled" || b.CheckOut <= today {
			continue
		}
		if !active[b.ID] {
			b.Status = "cancelled"
			b.LastSynced = now
			count++
		}
	}
	return count, nil
}

// ListBookingsByListing returns bookings for a listing, newest check-in
// first, matching the SQL ordering
func (m *MockRepository) ListBookingsByListing(listingID string, limit int) ([]*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Booking
	for _, b := range m.bookings {
		if b.ListingID == listingID {
			copied := *b
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CheckIn != result[j].CheckIn {
			return result[i].CheckIn > result[j].CheckIn
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetBooking retrieves a booking by id
func (m *MockRepository) GetBooking(id string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

// ActiveListingIDs returns ids of active listings
func (m *MockRepository) ActiveListingIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, l := range m.listings {
		if !l.IsDeleted && l.SyncStatus == "active" {
			ids = append(ids, l.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListListings returns all non-deleted listings
func (m *MockRepository) ListListings() ([]Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var listings []Listing
	for _, l := range m.listings {
		if !l.IsDeleted {
			listings = append(listings, *l)
		}
	}
	return listings, nil
}

// UpsertListing creates or updates a listing
func (m *MockRepository) UpsertListing(l *Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *l
	m.listings[l.ID] = &copied
	return nil
}

// StartSyncLog creates an in_progress sync log row
func (m *MockRepository) StartSyncLog(provider string, startTime time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartLogErr != nil {
		return 0, m.StartLogErr
	}

	m.nextLogID++
	m.syncLogs[m.nextLogID] = &SyncLog{
		ID:        m.nextLogID,
		Provider:  provider,
		Status:    "in_progress",
		StartTime: startTime,
	}
	return m.nextLogID, nil
}

// CompleteSyncLog finalizes a sync log row
func (m *MockRepository) CompleteSyncLog(id int64, status, message string, created, updated, deleted, synced int, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteLogErr != nil {
		return m.CompleteLogErr
	}

	entry, ok := m.syncLogs[id]
	if !ok {
		return sql.ErrNoRows
	}

	entry.Status = status
	entry.Message = message
	entry.Created = created
	entry.Updated = updated
	entry.Deleted = deleted
	entry.EntitiesSynced = synced
	entry.EndTime = &endTime
	entry.SyncDurationMs = endTime.Sub(entry.StartTime).Milliseconds()
	return nil
}

// ListSyncLogs returns stored sync logs
func (m *MockRepository) ListSyncLogs(limit int) ([]SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var logs []SyncLog
	for id := m.nextLogID; id > 0 && (limit <= 0 || len(logs) < limit); id-- {
		if entry, ok := m.syncLogs[id]; ok {
			logs = append(logs, *entry)
		}
	}
	return logs, nil
}

// GetSyncLog retrieves a sync log by id
func (m *MockRepository) GetSyncLog(id int64) (*SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.syncLogs[id]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

// UpsertIntegrationHealth stores the provider's health row
func (m *MockRepository) UpsertIntegrationHealth(h *IntegrationHealth) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *h
	if copied.LastSynced == nil {
		if prev, ok := m.health[h.Provider]; ok {
			copied.LastSynced = prev.LastSynced
		}
	}
	m.health[h.Provider] = &copied
	return nil
}

// GetIntegrationHealth retrieves the provider's health row
func (m *MockRepository) GetIntegrationHealth(provider string) (*IntegrationHealth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[provider]
	if !ok {
		return nil, nil
	}
	copied := *h
	return &copied, nil
}

// InsertRateLimitSample appends a telemetry row
func (m *MockRepository) InsertRateLimitSample(s *RateLimitSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = int64(len(m.samples) + 1)
	m.samples = append(m.samples, *s)
	return nil
}

// ListRateLimitSamples returns stored samples, newest first
func (m *MockRepository) ListRateLimitSamples(limit int) ([]RateLimitSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var samples []RateLimitSample
	for i := len(m.samples) - 1; i >= 0 && (limit <= 0 || len(samples) < limit); i-- {
		samples = append(samples, m.samples[i])
	}
	return samples, nil
}

// RateLimitSampleCount returns the number of stored samples
func (m *MockRepository) RateLimitSampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// GetCachedToken returns the provider's token row, or nil when absent
func (m *MockRepository) GetCachedToken(provider string) (*CachedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTokenErr != nil {
		return nil, m.GetTokenErr
	}

	t, ok := m.tokens[provider]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

// PutCachedToken upserts the provider's token row
func (m *MockRepository) PutCachedToken(t *CachedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutTokenErr != nil {
		return m.PutTokenErr
	}

	copied := *t
	m.tokens[t.Provider] = &copied
	return nil
}
