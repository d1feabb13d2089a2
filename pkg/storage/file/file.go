// Package file provides the default audit store: an append-only JSON lines
// file whose first line is the log header.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
)

// Driver implements storage.Driver over a single file.
type Driver struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	size   int64
	lines  uint64
	logger *zap.Logger
}

// NewDriver opens or creates the log file at path.
func NewDriver(path string, logger *zap.Logger) (*Driver, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	size, lines, err := scan(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	logger.Debug("audit log file opened",
		zap.String("path", path),
		zap.Int64("bytes", size),
		zap.Uint64("lines", lines),
	)

	return &Driver{
		path:   path,
		f:      f,
		size:   size,
		lines:  lines,
		logger: logger,
	}, nil
}

// scan counts newline terminated lines. A trailing unterminated fragment
// counts as a line so Range can report it.
func scan(f *os.File) (int64, uint64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}
	var (
		size  int64
		lines uint64
		last  byte = '\n'
		buf        = make([]byte, 64*1024)
	)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			size += int64(n)
			lines += uint64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, err
		}
	}
	if last != '\n' {
		lines++
	}
	return size, lines, nil
}

// Header returns the header from the first line, or nil for an empty file.
func (d *Driver) Header(_ context.Context) (*audit.Header, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil, storage.ErrClosed
	}
	if d.size == 0 {
		return nil, nil
	}

	r, err := d.reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	line, err := readLine(r.br)
	if err != nil {
		return nil, audit.Corrupt(0, "reading header: %v", err)
	}

	var h audit.Header
	if err := decodeCanonical(line, &h); err != nil {
		return nil, audit.Corrupt(0, "header: %v", err)
	}
	return &h, nil
}

// WriteHeader writes the first line of an empty file.
func (d *Driver) WriteHeader(_ context.Context, h *audit.Header) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return storage.ErrClosed
	}
	if d.size != 0 {
		return errors.New("header already written")
	}
	return d.appendLine(h)
}

// Append writes r as the next line and syncs it to disk.
func (d *Driver) Append(_ context.Context, r *audit.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return storage.ErrClosed
	}
	if d.lines == 0 {
		return errors.New("header not written")
	}
	if want := d.lines - 1; r.Sequence != want {
		return storage.SequenceError{Got: r.Sequence, Want: want}
	}
	return d.appendLine(storage.ToWire(r))
}

// appendLine writes v plus a newline at the end of the file. A failed write
// or sync truncates the file back to its previous length.
func (d *Driver) appendLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding line: %w", err)
	}
	data = append(data, '\n')

	if _, err := d.f.WriteAt(data, d.size); err != nil {
		d.rollback()
		return fmt.Errorf("writing audit log: %w", err)
	}
	if err := d.f.Sync(); err != nil {
		d.rollback()
		return fmt.Errorf("syncing audit log: %w", err)
	}

	d.size += int64(len(data))
	d.lines++
	return nil
}

func (d *Driver) rollback() {
	if err := d.f.Truncate(d.size); err != nil {
		d.logger.Error("truncating audit log after failed write",
			zap.String("path", d.path),
			zap.Error(err),
		)
	}
}

// Range re-reads the file and decodes records with from <= sequence < to.
func (d *Driver) Range(_ context.Context, from, to uint64) ([]*audit.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil, storage.ErrClosed
	}
	records := []*audit.Record{}
	if from >= to || d.lines <= 1 {
		return records, nil
	}

	r, err := d.reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// Line 0 is the header; record seq lives on line seq+1.
	for line := uint64(0); line < d.lines; line++ {
		if line == 0 || line-1 < from {
			if err := skipLine(r.br); err != nil {
				return nil, audit.Corrupt(line, "skipping line: %v", err)
			}
			continue
		}
		seq := line - 1
		if seq >= to {
			break
		}

		raw, err := readLine(r.br)
		if err != nil {
			return nil, audit.Corrupt(seq, "reading record: %v", err)
		}
		var w storage.WireRecord
		if err := decodeCanonical(raw, &w); err != nil {
			return nil, audit.Corrupt(seq, "decoding record: %v", err)
		}
		records = append(records, w.Record())
	}
	return records, nil
}

// Count returns the number of records after the header.
func (d *Driver) Count(_ context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return 0, storage.ErrClosed
	}
	if d.lines == 0 {
		return 0, nil
	}
	return d.lines - 1, nil
}

// Close closes the file.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

type lineReader struct {
	f  *os.File
	br *bufio.Reader
}

func (r *lineReader) Close() error {
	return r.f.Close()
}

// reader opens an independent handle bounded to the bytes this driver has
// accounted for.
func (d *Driver) reader() (*lineReader, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log for read: %w", err)
	}
	return &lineReader{
		f:  f,
		br: bufio.NewReader(io.LimitReader(f, d.size)),
	}, nil
}

func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if errors.Is(err, io.EOF) {
		if len(line) == 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, errors.New("unterminated line")
	}
	if err != nil {
		return nil, err
	}
	return line[:len(line)-1], nil
}

func skipLine(br *bufio.Reader) error {
	_, err := readLine(br)
	return err
}

// decodeCanonical decodes raw strictly and requires it to be exactly the
// encoding json.Marshal produces, so escapes or spacing cannot be altered
// without detection.
func decodeCanonical(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}

	again, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !bytes.Equal(again, raw) {
		return errors.New("non-canonical encoding")
	}
	return nil
}

var _ storage.Driver = (*Driver)(nil)
