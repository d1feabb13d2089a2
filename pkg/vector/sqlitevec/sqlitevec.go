// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
//
// sqlite-vec validates every embedding blob on the way in (vec_f32) and on
// the way out (vec_length), and Nearest ranks inside SQLite with its
// distance functions. The Store still ranks its cached chunks with
// vector.Rank: that accumulation order is fixed in Go, while sqlite-vec
// accumulates in float32 and may order near-ties differently.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/vector"
)

const formatVersion = "1"

// chunkColumns is every chunk column plus the dimension count sqlite-vec
// reads from the embedding blob.
const chunkColumns = `seq, chunk_id, text, source_ref, embedding, vec_length(embedding)`

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
type SQLiteVecDriver struct {
	db     *sql.DB
	spec   vector.Spec
	logger *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Metric is the distance metric recorded for a new store. Defaults to l2.
	Metric vector.Metric

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
// An existing database must have been created with the same metric and
// dimensions.
func NewSQLiteVecDriver(c Config, logger *zap.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dimensions := c.Dimensions
	if dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	metric, err := vector.ParseMetric(string(c.Metric))
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	spec := vector.Spec{Metric: metric, Dimensions: dimensions}
	if err := checkMeta(db, spec); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.String("metric", string(metric)),
		zap.Uint("dimensions", dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SQLiteVecDriver{
		db:     db,
		spec:   spec,
		logger: logger,
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}

	// seq is the insertion order and the ranking tie-break.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_chunks (
			seq INTEGER PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			source_ref TEXT NOT NULL DEFAULT '',
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}
	return nil
}

// checkMeta records spec on a fresh database or compares it with the
// recorded one.
func checkMeta(db *sql.DB, spec vector.Spec) error {
	meta := map[string]string{}
	rows, err := db.Query(`SELECT key, value FROM vec_meta`)
	if err != nil {
		return fmt.Errorf("reading meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating meta: %w", err)
	}

	want := map[string]string{
		"format_version": formatVersion,
		"metric":         string(spec.Metric),
		"dimensions":     strconv.FormatUint(uint64(spec.Dimensions), 10),
	}

	if len(meta) == 0 {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()
		for _, k := range []string{"format_version", "metric", "dimensions"} {
			if _, err := tx.Exec(`INSERT INTO vec_meta(key, value) VALUES (?, ?)`, k, want[k]); err != nil {
				return fmt.Errorf("writing meta %s: %w", k, err)
			}
		}
		return tx.Commit()
	}

	if meta["format_version"] != formatVersion {
		return fmt.Errorf("unsupported vector store format version %q", meta["format_version"])
	}
	if meta["metric"] != want["metric"] || meta["dimensions"] != want["dimensions"] {
		return fmt.Errorf("%w: database has metric %s with %s dimensions, requested %s with %s",
			vector.ErrSpecMismatch, meta["metric"], meta["dimensions"], want["metric"], want["dimensions"])
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Spec returns the metric and dimensionality recorded in the database.
func (d *SQLiteVecDriver) Spec() vector.Spec {
	return d.spec
}

// Add stores a chunk, passing its embedding through vec_f32 so sqlite-vec
// validates the blob. Existing IDs are left untouched.
func (d *SQLiteVecDriver) Add(ctx context.Context, chunk *vector.Chunk) (bool, error) {
	if uint(len(chunk.Embedding)) != d.spec.Dimensions {
		return false, fmt.Errorf("embedding for chunk %s has %d dimensions, expected %d",
			chunk.ID, len(chunk.Embedding), d.spec.Dimensions)
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO vec_chunks(seq, chunk_id, text, source_ref, embedding)
		SELECT coalesce(max(seq) + 1, 0), ?, ?, ?, vec_f32(?) FROM vec_chunks
		WHERE true
		ON CONFLICT(chunk_id) DO NOTHING
	`, string(chunk.ID), chunk.Text, chunk.SourceRef, serializeFloat32(chunk.Embedding))
	if err != nil {
		return false, fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert of chunk %s: %w", chunk.ID, err)
	}
	if n == 0 {
		return false, nil
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("getting seq for chunk %s: %w", chunk.ID, err)
	}
	chunk.Seq = uint64(seq)

	d.logger.Debug("added chunk to sqlite-vec",
		zap.String("chunk_id", string(chunk.ID)),
		zap.Uint64("seq", chunk.Seq),
	)
	return true, nil
}

// All returns every chunk ordered by seq.
func (d *SQLiteVecDriver) All(ctx context.Context) ([]vector.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM vec_chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []vector.Chunk
	for rows.Next() {
		c, err := d.scan(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// Get retrieves a chunk by ID.
func (d *SQLiteVecDriver) Get(ctx context.Context, id vector.ChunkID) (*vector.Chunk, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM vec_chunks WHERE chunk_id = ?`, string(id))

	c, err := d.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vector.ErrNotFound
	}
	return c, err
}

// Nearest ranks stored chunks against query inside SQLite with
// vec_distance_l2 or vec_distance_cosine and returns the closest k. Equal
// distances keep the lower seq first.
func (d *SQLiteVecDriver) Nearest(ctx context.Context, query []float32, k int) ([]vector.QueryResult, error) {
	if err := vector.ValidateEmbedding(query, d.spec.Dimensions); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []vector.QueryResult{}, nil
	}

	fn := "vec_distance_l2"
	if d.spec.Metric == vector.MetricCosine {
		fn = "vec_distance_cosine"
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, `+fn+`(embedding, vec_f32(?)) AS distance
		FROM vec_chunks
		ORDER BY distance, seq
		LIMIT ?
	`, serializeFloat32(query), k)
	if err != nil {
		return nil, fmt.Errorf("ranking chunks: %w", err)
	}
	defer rows.Close()

	results := []vector.QueryResult{}
	for rows.Next() {
		var distance float64
		c, err := d.scan(rows, &distance)
		if err != nil {
			return nil, err
		}
		results = append(results, vector.QueryResult{Chunk: *c, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ranked chunks: %w", err)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (d *SQLiteVecDriver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM vec_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Persist is a no-op: every Add commits on its own.
func (d *SQLiteVecDriver) Persist(_ context.Context) error {
	return nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads chunkColumns followed by extra.
func (d *SQLiteVecDriver) scan(s scanner, extra ...any) (*vector.Chunk, error) {
	var (
		seq     int64
		id      string
		c       vector.Chunk
		embBlob []byte
		dims    int64
	)
	dest := append([]any{&seq, &id, &c.Text, &c.SourceRef, &embBlob, &dims}, extra...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if dims != int64(d.spec.Dimensions) {
		return nil, fmt.Errorf("chunk %s has %d dimensions, expected %d", id, dims, d.spec.Dimensions)
	}
	emb, err := deserializeFloat32(embBlob)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", id, err)
	}

	c.ID = vector.ChunkID(id)
	c.Seq = uint64(seq)
	c.Embedding = emb
	return &c, nil
}

var _ vector.Driver = (*SQLiteVecDriver)(nil)
