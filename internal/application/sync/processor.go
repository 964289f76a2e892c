package sync

import (
	"log/slog"
	"time"

	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// Processor applies normalized bookings in bounded batches, splitting each
// batch into a create set and an update set with one existence lookup
type Processor struct {
	repo       storage.BookingRepository
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger

	sleep func(time.Duration)
}

// NewProcessor creates a batch processor
func NewProcessor(repo storage.BookingRepository, cfg config.SyncConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	return &Processor{
		repo:       repo,
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay(),
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Process writes the bookings batch by batch and returns how many rows were
// created and updated. A failed batch is logged and skipped; the remaining
// batches still run.
func (p *Processor) Process(bookings []*storage.Booking) (created, updated int) {
	for start := 0; start < len(bookings); start += p.batchSize {
		end := start + p.batchSize
		if end > len(bookings) {
			end = len(bookings)
		}

		if start > 0 && p.batchDelay > 0 {
			p.sleep(p.batchDelay)
		}

		c, u, err := p.processBatch(bookings[start:end])
		created += c
		updated += u
		if err != nil {
			p.logger.Error("booking batch failed",
				"batch_start", start,
				"batch_size", end-start,
				"error", err)
		}
	}

	return created, updated
}

// processBatch splits one batch by existence and applies each half with a
// single statement. Counts reflect only the writes that succeeded.
func (p *Processor) processBatch(batch []*storage.Booking) (int, int, error) {
	ids := make([]string, len(batch))
	for i, b := range batch {
		ids[i] = b.ID
	}

	existing, err := p.repo.ExistingBookingIDs(ids)
	if err != nil {
		return 0, 0, err
	}

	var creates, updates []*storage.Booking
	for _, b := range batch {
		if existing[b.ID] {
			updates = append(updates, b)
		} else {
			creates = append(creates, b)
		}
	}

	created := 0
	if len(creates) > 0 {
		if err := p.repo.InsertBookings(creates); err != nil {
			return 0, 0, err
		}
		created = len(creates)
	}

	updated := 0
	if len(updates) > 0 {
		if err := p.repo.UpdateBookings(updates); err != nil {
			return created, 0, err
		}
		updated = len(updates)
	}

	return created, updated, nil
}
