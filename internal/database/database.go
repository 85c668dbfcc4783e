package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY churn
	// between the worker loop and request handlers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT,
		action TEXT NOT NULL,
		payload_json TEXT,
		timestamp REAL NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_events_unprocessed ON events (processed, timestamp);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER NOT NULL REFERENCES events(id),
		action_type TEXT NOT NULL,
		details_json TEXT,
		timestamp REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS delivery_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER,
		subject TEXT,
		body TEXT,
		recipient TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at REAL NOT NULL,
		created_at REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_delivery_queue_due ON delivery_queue (next_retry_at);

	CREATE TABLE IF NOT EXISTS delivery_log (
		id TEXT NOT NULL PRIMARY KEY,
		event_id INTEGER,
		recipient TEXT,
		status TEXT NOT NULL,
		error TEXT,
		attempt INTEGER NOT NULL DEFAULT 0,
		created_at REAL NOT NULL
	);
	`
	_, err := db.Exec(sqlStmt)
	return err
}
