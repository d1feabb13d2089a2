// Package memory provides an eventstream publisher that keeps every event
// in memory, for tests and in-process inspection.
package memory

import (
	"context"
	"sync"

	"github.com/papercomputeco/glassbox/pkg/eventstream"
)

// Publisher records published events in order.
type Publisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
	closed bool
}

// NewPublisher creates an empty recording publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish records event.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []*eventstream.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.Event(nil), p.events...)
}

// Types returns the recorded event types in order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType
	}
	return types
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close marks the publisher closed. Recorded events stay readable.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var _ eventstream.Publisher = (*Publisher)(nil)
