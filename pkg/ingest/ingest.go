// Package ingest turns documents on disk into vector store chunks.
//
// Files are read and chunked concurrently, but chunks are inserted in sorted
// path order and then chunk order. Insertion order is the retrieval tie-break
// key, so a corpus ingested twice yields identical rankings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/vector"
)

// DefaultExtensions are the file types picked up when walking directories.
var DefaultExtensions = []string{".txt", ".md"}

// Inserter is the part of vector.Store the ingester needs.
type Inserter interface {
	Insert(ctx context.Context, text, sourceRef string) (vector.ChunkID, error)
	Size() int
}

// Config configures an Ingester.
type Config struct {
	SentencesPerChunk int
	OverlapSentences  int

	// Workers is the number of concurrent file readers.
	Workers uint

	// Extensions filters files found while walking directories. Files named
	// explicitly are always ingested.
	Extensions []string

	Logger *zap.Logger
}

// Report summarizes one ingestion run.
type Report struct {
	Files    int
	Chunks   int
	Inserted int
	IDs      []vector.ChunkID
}

// Ingester chunks files and inserts them into a store.
type Ingester struct {
	store      Inserter
	pool       *pool
	extensions []string
	logger     *zap.Logger
}

// New creates an Ingester writing into store.
func New(store Inserter, c Config) (*Ingester, error) {
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := newPool(NewSentenceChunker(c.SentencesPerChunk, c.OverlapSentences), c.Workers, logger)
	if err != nil {
		return nil, err
	}

	exts := c.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	return &Ingester{
		store:      store,
		pool:       p,
		extensions: exts,
		logger:     logger,
	}, nil
}

// Watches reports whether path has an ingested extension.
func (i *Ingester) Watches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(i.extensions, ext)
}

// IngestPaths ingests every file named in paths, walking directories. The
// first failure stops the run; chunks inserted before it remain.
func (i *Ingester) IngestPaths(ctx context.Context, paths ...string) (*Report, error) {
	files, err := i.expand(paths)
	if err != nil {
		return nil, err
	}

	report := &Report{Files: len(files)}
	before := i.store.Size()

	for _, res := range i.pool.run(ctx, files) {
		if res.err != nil {
			report.Inserted = i.store.Size() - before
			return report, res.err
		}

		for idx, text := range res.chunks {
			ref := fmt.Sprintf("%s#%d", res.path, idx)
			id, err := i.store.Insert(ctx, text, ref)
			if err != nil {
				report.Inserted = i.store.Size() - before
				return report, fmt.Errorf("inserting %s: %w", ref, err)
			}
			report.IDs = append(report.IDs, id)
			report.Chunks++
		}
	}

	report.Inserted = i.store.Size() - before
	i.logger.Info("ingested",
		zap.Int("files", report.Files),
		zap.Int("chunks", report.Chunks),
		zap.Int("inserted", report.Inserted),
	)
	return report, nil
}

// expand resolves paths to a sorted, de-duplicated list of files.
func (i *Ingester) expand(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if i.Watches(p) {
				add(filepath.Clean(p))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}

	slices.Sort(files)
	return files, nil
}
