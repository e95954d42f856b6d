package store

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Schema matching migrations/20260301_000000_initial_schema.up.sql
	schema := `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL UNIQUE,
			ip_address TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'offline'
				CHECK (status IN ('online', 'offline')),
			door_names TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_devices_status ON devices(status);
		CREATE INDEX idx_devices_ip_address ON devices(ip_address);

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			username TEXT NOT NULL,
			device_hostname TEXT NOT NULL,
			acctype INTEGER NOT NULL DEFAULT 1,
			valid_since INTEGER NOT NULL DEFAULT 0,
			valid_until INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (uid, device_hostname),
			FOREIGN KEY (device_hostname) REFERENCES devices(hostname) ON DELETE CASCADE
		) STRICT;
		CREATE INDEX idx_users_device_hostname ON users(device_hostname);

		CREATE TABLE access_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_hostname TEXT NOT NULL,
			uid TEXT,
			username TEXT,
			access_type TEXT,
			is_known INTEGER NOT NULL DEFAULT 0,
			door_name TEXT,
			timestamp TEXT NOT NULL,
			raw_data TEXT
		) STRICT;

		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_hostname TEXT NOT NULL,
			event_type TEXT NOT NULL,
			source TEXT,
			description TEXT,
			data TEXT,
			timestamp TEXT NOT NULL
		) STRICT;

		CREATE TABLE card_registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			device_hostname TEXT NOT NULL,
			registered_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'completed', 'cancelled'))
		) STRICT;
		CREATE UNIQUE INDEX idx_card_registrations_pending
			ON card_registrations(uid, device_hostname)
			WHERE status = 'pending';
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
