package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a path must stay quiet before it is
// re-ingested.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-ingests files as they are created or modified. Events are
// collected until no new one arrives for Debounce; the pending paths are
// then ingested once each, in sorted order.
type Watcher struct {
	ingester *Ingester
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	// Debounce is the quiet period before pending paths are ingested.
	Debounce time.Duration

	// OnIngest, when set, is called after each re-ingest attempt.
	OnIngest func(path string, report *Report, err error)
}

// NewWatcher watches dirs for changes to files the ingester accepts.
func NewWatcher(ingester *Ingester, dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	return &Watcher{
		ingester: ingester,
		watcher:  w,
		logger:   ingester.logger,
		Debounce: DefaultDebounce,
	}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := map[string]struct{}{}
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.ingester.Watches(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.Debounce)
		case <-timer.C:
			w.flush(ctx, pending)
			clear(pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, path := range paths {
		report, err := w.ingester.IngestPaths(ctx, path)
		if err != nil {
			w.logger.Warn("re-ingest failed", zap.String("path", path), zap.Error(err))
		}
		if w.OnIngest != nil {
			w.OnIngest(path, report, err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	if errors.Is(err, fsnotify.ErrClosed) {
		return nil
	}
	return err
}
