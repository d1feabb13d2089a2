// Package jsonl appends events to a file, one JSON object per line.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/papercomputeco/glassbox/pkg/eventstream"
)

// Publisher writes events to an append-only file.
type Publisher struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewPublisher opens (or creates) path for appending.
func NewPublisher(path string) (*Publisher, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl publisher: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event file: %w", err)
	}
	return &Publisher{f: f, path: path}, nil
}

// Path returns the file events are written to.
func (p *Publisher) Path() string {
	return p.path
}

// Publish appends event as a single line.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return os.ErrClosed
	}
	if _, err := p.f.Write(line); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Close closes the underlying file. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}

var _ eventstream.Publisher = (*Publisher)(nil)
