package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Database wraps the open data snapshot connection.
// The snapshot is a SQLite file assembled from Open Data Philly table
// dumps (rtt_summary, business_licenses, opa_properties_public,
// violations); the pipeline only ever reads it.
type Database struct {
	DB *sql.DB
}

// OpenSnapshot opens the open data SQLite snapshot read-only.
// A missing snapshot file is a fatal input error, reported before
// sql.Open so the caller gets a path-level message rather than a
// deferred driver error.
func OpenSnapshot(ctx context.Context, path string) (*Database, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open data snapshot not found at %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}

	// Batch jobs run single-threaded; one connection is all we need and
	// it keeps the read-only snapshot free of lock churn.
	db.SetMaxOpenConns(1)

	// Test the connection immediately
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping snapshot %s: %w", path, err)
	}

	return &Database{DB: db}, nil
}

// Ping checks if the snapshot connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the snapshot connection.
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
