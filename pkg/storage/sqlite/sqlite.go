// Package sqlite provides a SQLite-backed audit store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/storage/sqldb"
)

// Dialect is the SQLite schema. Triggers make the records table
// append-only.
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS audit_header (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			format_version INTEGER NOT NULL,
			genesis_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			sequence INTEGER PRIMARY KEY,
			timestamp_ns INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			record_hash TEXT NOT NULL,
			seal TEXT NOT NULL
		)`,
		`CREATE TRIGGER IF NOT EXISTS audit_records_no_update
			BEFORE UPDATE ON audit_records
			BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS audit_records_no_delete
			BEFORE DELETE ON audit_records
			BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END`,
	},
}

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*sqldb.Driver
}

// NewSQLiteDriver creates a new SQLite-backed audit store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite-specific pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	d, err := sqldb.Open(ctx, db, Dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDriver{Driver: d}, nil
}
