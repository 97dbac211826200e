package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// A single connection avoids SQLITE_BUSY under writer contention and
	// keeps :memory: databases visible across calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			partner_id TEXT NOT NULL,
			base_amount REAL NOT NULL,
			service_fee REAL NOT NULL,
			payment_processing_fee REAL NOT NULL,
			commission_partner REAL NOT NULL,
			platform_earnings REAL,
			net_application_fee REAL,
			payment_status TEXT NOT NULL,
			payment_reference_id TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_payment_status ON bookings(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_payment_ref ON bookings(payment_reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_partner ON bookings(partner_id)`,

		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			refund_type TEXT NOT NULL DEFAULT '',
			amount_minor INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			processor_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			actor TEXT NOT NULL,
			before_net_fee REAL,
			after_net_fee REAL,
			before_earnings REAL,
			after_earnings REAL,
			note TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_booking ON audit_entries(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit_entries(kind)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}
