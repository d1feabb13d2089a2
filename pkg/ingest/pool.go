package ingest

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"go.uber.org/zap"
)

var defaultNumWorkers uint = 3

// job is one file for the pool to read and chunk.
type job struct {
	index int
	path  string
}

// fileChunks is the outcome of a job, stored at the job's index.
type fileChunks struct {
	path   string
	chunks []string
	err    error
}

// pool reads and chunks files concurrently. Results land in a slice indexed
// by job so callers consume them in submission order regardless of which
// worker finished first.
type pool struct {
	chunker *SentenceChunker
	workers uint
	logger  *zap.Logger
}

func newPool(chunker *SentenceChunker, workers uint, logger *zap.Logger) (*pool, error) {
	if workers == 0 {
		workers = defaultNumWorkers
	}
	if workers > uint(math.MaxInt) {
		return nil, fmt.Errorf("workers %d exceeds max int", workers)
	}
	return &pool{chunker: chunker, workers: workers, logger: logger}, nil
}

// run chunks every path and returns results in the order of paths.
func (p *pool) run(ctx context.Context, paths []string) []fileChunks {
	results := make([]fileChunks, len(paths))
	queue := make(chan job)

	var wg sync.WaitGroup
	n := min(int(p.workers), max(len(paths), 1))
	wg.Add(n)
	for i := range n {
		go p.worker(ctx, i, queue, results, &wg)
	}

	for i, path := range paths {
		select {
		case queue <- job{index: i, path: path}:
		case <-ctx.Done():
			results[i] = fileChunks{path: path, err: ctx.Err()}
			for j := i + 1; j < len(paths); j++ {
				results[j] = fileChunks{path: paths[j], err: ctx.Err()}
			}
			close(queue)
			wg.Wait()
			return results
		}
	}
	close(queue)
	wg.Wait()
	return results
}

func (p *pool) worker(ctx context.Context, id int, queue <-chan job, results []fileChunks, wg *sync.WaitGroup) {
	defer wg.Done()
	p.logger.Debug("ingest worker started", zap.Int("worker_id", id))

	for j := range queue {
		results[j.index] = p.process(ctx, j)
	}

	p.logger.Debug("ingest worker stopped", zap.Int("worker_id", id))
}

func (p *pool) process(ctx context.Context, j job) fileChunks {
	if err := ctx.Err(); err != nil {
		return fileChunks{path: j.path, err: err}
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return fileChunks{path: j.path, err: fmt.Errorf("reading %s: %w", j.path, err)}
	}

	chunks := p.chunker.Chunk(string(data))
	p.logger.Debug("file chunked",
		zap.String("path", j.path),
		zap.Int("chunks", len(chunks)),
	)
	return fileChunks{path: j.path, chunks: chunks}
}
