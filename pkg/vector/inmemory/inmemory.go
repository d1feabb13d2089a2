// Package inmemory provides a slice-backed vector driver, optionally
// persisted to a single binary file.
package inmemory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/vector"
)

const (
	fileMagic     = "GBVS"
	formatVersion = uint16(1)
)

// Driver implements vector.Driver with an in-memory slice.
type Driver struct {
	path   string
	spec   vector.Spec
	chunks []vector.Chunk
	index  map[vector.ChunkID]int
	dirty  bool
	logger *zap.Logger
}

// Config holds configuration for the in-memory driver.
type Config struct {
	// Path is the file the store is loaded from and persisted to.
	// Empty keeps the store purely in memory.
	Path string

	Metric     vector.Metric
	Dimensions uint
}

// NewDriver creates a driver, loading Path when it exists. A file created
// with a different metric or dimensionality fails with vector.ErrSpecMismatch.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, errors.New("embedding dimensions cannot be 0, must be configured")
	}
	metric, err := vector.ParseMetric(string(c.Metric))
	if err != nil {
		return nil, err
	}

	d := &Driver{
		path:   c.Path,
		spec:   vector.Spec{Metric: metric, Dimensions: c.Dimensions},
		index:  map[vector.ChunkID]int{},
		logger: logger,
	}

	if c.Path == "" {
		return d, nil
	}

	f, err := os.Open(c.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("opening vector file: %w", err)
	}
	defer f.Close()

	if err := d.load(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("loading %s: %w", c.Path, err)
	}

	logger.Info("in-memory vector driver loaded",
		zap.String("path", c.Path),
		zap.Int("chunks", len(d.chunks)),
	)
	return d, nil
}

// Spec returns the driver's metric and dimensionality.
func (d *Driver) Spec() vector.Spec {
	return d.spec
}

// Add appends chunk unless its ID is already present.
func (d *Driver) Add(_ context.Context, chunk *vector.Chunk) (bool, error) {
	if _, ok := d.index[chunk.ID]; ok {
		return false, nil
	}
	chunk.Seq = uint64(len(d.chunks))
	d.index[chunk.ID] = len(d.chunks)
	d.chunks = append(d.chunks, *chunk)
	d.dirty = true
	return true, nil
}

// All returns every chunk in insertion order.
func (d *Driver) All(_ context.Context) ([]vector.Chunk, error) {
	out := make([]vector.Chunk, len(d.chunks))
	copy(out, d.chunks)
	return out, nil
}

// Get returns the chunk with id.
func (d *Driver) Get(_ context.Context, id vector.ChunkID) (*vector.Chunk, error) {
	i, ok := d.index[id]
	if !ok {
		return nil, vector.ErrNotFound
	}
	c := d.chunks[i]
	return &c, nil
}

// Count returns the number of stored chunks.
func (d *Driver) Count(_ context.Context) (int, error) {
	return len(d.chunks), nil
}

// Persist writes the store to Path through a temp file and rename so a crash
// never leaves a half-written store.
func (d *Driver) Persist(_ context.Context) error {
	if d.path == "" || !d.dirty {
		return nil
	}

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := d.write(w); err != nil {
		tmp.Close()
		return fmt.Errorf("writing vector file: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing vector file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing vector file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing vector file: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("replacing vector file: %w", err)
	}

	d.dirty = false
	d.logger.Debug("vector store persisted",
		zap.String("path", d.path),
		zap.Int("chunks", len(d.chunks)),
	)
	return nil
}

// Close persists pending chunks.
func (d *Driver) Close() error {
	return d.Persist(context.Background())
}

// File layout, all integers little-endian:
//
//	magic "GBVS" | version u16 | metric len u8 | metric | dims u32 | count u64
//	count x ( text len u32 | text | source len u32 | source | dims x f32 )
func (d *Driver) write(w io.Writer) error {
	bw := &binWriter{w: w}
	bw.bytes([]byte(fileMagic))
	bw.u16(formatVersion)
	bw.u8(uint8(len(d.spec.Metric)))
	bw.bytes([]byte(d.spec.Metric))
	bw.u32(uint32(d.spec.Dimensions))
	bw.u64(uint64(len(d.chunks)))
	for _, c := range d.chunks {
		bw.str(c.Text)
		bw.str(c.SourceRef)
		for _, f := range c.Embedding {
			bw.u32(math.Float32bits(f))
		}
	}
	return bw.err
}

func (d *Driver) load(r io.Reader) error {
	br := &binReader{r: r}

	magic := br.bytes(len(fileMagic))
	if br.err == nil && string(magic) != fileMagic {
		return errors.New("not a glassbox vector file")
	}
	version := br.u16()
	if br.err == nil && version != formatVersion {
		return fmt.Errorf("unsupported vector file version %d", version)
	}
	metric := vector.Metric(br.bytes(int(br.u8())))
	dims := uint(br.u32())
	count := br.u64()
	if br.err != nil {
		return br.err
	}

	if metric != d.spec.Metric || dims != d.spec.Dimensions {
		return fmt.Errorf("%w: file has metric %s with %d dimensions, requested %s with %d",
			vector.ErrSpecMismatch, metric, dims, d.spec.Metric, d.spec.Dimensions)
	}

	for i := uint64(0); i < count; i++ {
		text := br.str()
		source := br.str()
		emb := make([]float32, dims)
		for j := range emb {
			emb[j] = math.Float32frombits(br.u32())
		}
		if br.err != nil {
			return fmt.Errorf("reading chunk %d: %w", i, br.err)
		}

		id := vector.NewChunkID(text)
		if _, ok := d.index[id]; ok {
			return fmt.Errorf("duplicate chunk %s at position %d", id, i)
		}
		d.index[id] = len(d.chunks)
		d.chunks = append(d.chunks, vector.Chunk{
			ID:        id,
			Text:      text,
			Embedding: emb,
			SourceRef: source,
			Seq:       i,
		})
	}
	return nil
}

var _ vector.Driver = (*Driver)(nil)
