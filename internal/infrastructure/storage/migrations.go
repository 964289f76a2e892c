package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_sync_logs_table",
		Up:      migration002AddSyncLogsTable,
	},
	{
		Version: 3,
		Name:    "add_telemetry_tables",
		Up:      migration003AddTelemetryTables,
	},
	{
		Version: 4,
		Name:    "add_provider_tokens_table",
		Up:      migration004AddProviderTokensTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// ================================================================
// MIGRATION FUNCTIONS
// ================================================================

// migration001InitialSchema creates the bookings and listings tables
func migration001InitialSchema(db *sql.Tx) error {
	queries := []string{
		// Local mirror of remote reservations. id is remote-assigned.
		// check_in/check_out are date-only TEXT so lexicographic comparison
		// matches chronological comparison.
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			listing_id TEXT NOT NULL,
			guest_name TEXT,
			check_in TEXT,
			check_out TEXT,
			status TEXT NOT NULL DEFAULT 'confirmed',
			last_synced TIMESTAMP NOT NULL,
			raw_data TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_listing
		 ON bookings(listing_id)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_listing_checkout
		 ON bookings(listing_id, check_out)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status
		 ON bookings(status)`,

		// Listing registry used by sync-all discovery
		`CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			name TEXT,
			sync_status TEXT NOT NULL DEFAULT 'active',
			is_deleted BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_listings_sync
		 ON listings(sync_status, is_deleted)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// migration002AddSyncLogsTable creates the sync_logs and integration_health tables
func migration002AddSyncLogsTable(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sync_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_progress',
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			message TEXT,
			created INTEGER DEFAULT 0,
			updated INTEGER DEFAULT 0,
			deleted INTEGER DEFAULT 0,
			entities_synced INTEGER DEFAULT 0,
			sync_duration_ms INTEGER DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_logs_started
		 ON sync_logs(start_time DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_logs_provider
		 ON sync_logs(provider)`,

		// One row per provider, replaced at run end
		`CREATE TABLE IF NOT EXISTS integration_health (
			provider TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'unknown',
			last_synced TIMESTAMP,
			last_bookings_synced INTEGER DEFAULT 0,
			last_error TEXT,
			rate_limited BOOLEAN DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// migration003AddTelemetryTables creates the api_usage table.
// Append-only: rows are inserted per remote call, never updated.
func migration003AddTelemetryTables(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS api_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			endpoint TEXT NOT NULL,
			rate_limit INTEGER,
			remaining INTEGER,
			reset TEXT,
			timestamp TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_usage_timestamp
		 ON api_usage(timestamp DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_api_usage_endpoint
		 ON api_usage(endpoint)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// migration004AddProviderTokensTable creates the token cache table,
// one row per provider
func migration004AddProviderTokensTable(db *sql.Tx) error {
	query := `
	CREATE TABLE IF NOT EXISTS provider_tokens (
		provider TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create provider_tokens table: %w", err)
	}

	return nil
}
