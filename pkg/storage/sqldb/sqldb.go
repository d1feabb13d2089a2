// Package sqldb implements storage.Driver over database/sql. The sqlite and
// postgres packages supply the connection and dialect.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Name is used in log fields.
	Name string

	// Placeholder renders the n-th (1 based) bind parameter.
	Placeholder func(n int) string

	// Schema is executed in order on open. Statements must be idempotent.
	Schema []string
}

// Driver implements storage.Driver using a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open applies the dialect schema to db and returns a driver that owns it.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*Driver, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	logger.Debug("audit sql store ready", zap.String("dialect", dialect.Name))
	return &Driver{DB: db, dialect: dialect, logger: logger}, nil
}

// q rewrites "?" markers into the dialect's placeholders.
func (d *Driver) q(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Header returns the stored header, or nil when none exists.
func (d *Driver) Header(ctx context.Context) (*audit.Header, error) {
	var h audit.Header
	err := d.DB.QueryRowContext(ctx, d.q(
		`SELECT format_version, genesis_hash FROM audit_header WHERE id = ?`), 1,
	).Scan(&h.FormatVersion, &h.GenesisHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	return &h, nil
}

// WriteHeader stores the header row.
func (d *Driver) WriteHeader(ctx context.Context, h *audit.Header) error {
	_, err := d.DB.ExecContext(ctx, d.q(
		`INSERT INTO audit_header (id, format_version, genesis_hash) VALUES (?, ?, ?)`),
		1, h.FormatVersion, h.GenesisHash,
	)
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// Append inserts r. The sequence primary key rejects duplicates, and the
// count check inside the transaction rejects gaps.
func (d *Driver) Append(ctx context.Context, r *audit.Record) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n uint64
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM audit_records`).Scan(&n); err != nil {
		return fmt.Errorf("counting records: %w", err)
	}
	if r.Sequence != n {
		return storage.SequenceError{Got: r.Sequence, Want: n}
	}

	w := storage.ToWire(r)
	_, err = tx.ExecContext(ctx, d.q(`
		INSERT INTO audit_records
			(sequence, timestamp_ns, prompt, response, prev_hash, record_hash, seal)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		int64(w.Sequence), w.TimestampNS, w.Prompt, w.Response, w.PrevHash, w.RecordHash, w.Seal,
	)
	if err != nil {
		return fmt.Errorf("inserting record %d: %w", r.Sequence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing record %d: %w", r.Sequence, err)
	}
	return nil
}

// Range returns records with from <= sequence < to in sequence order.
func (d *Driver) Range(ctx context.Context, from, to uint64) ([]*audit.Record, error) {
	records := []*audit.Record{}
	if from >= to {
		return records, nil
	}

	rows, err := d.DB.QueryContext(ctx, d.q(`
		SELECT sequence, timestamp_ns, prompt, response, prev_hash, record_hash, seal
		FROM audit_records
		WHERE sequence >= ? AND sequence < ?
		ORDER BY sequence`),
		int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	expected := from
	for rows.Next() {
		var (
			seq int64
			w   storage.WireRecord
		)
		if err := rows.Scan(&seq, &w.TimestampNS, &w.Prompt, &w.Response, &w.PrevHash, &w.RecordHash, &w.Seal); err != nil {
			return nil, audit.Corrupt(expected, "scanning record: %v", err)
		}
		if seq < 0 {
			return nil, audit.Corrupt(expected, "negative sequence %d", seq)
		}
		w.Sequence = uint64(seq)
		records = append(records, w.Record())
		expected++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (d *Driver) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := d.DB.QueryRowContext(ctx, `SELECT count(*) FROM audit_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return uint64(n), nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

var _ storage.Driver = (*Driver)(nil)
