package eventstream

import (
	"context"
	"errors"
	"sync"
)

// Publisher publishes events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Handler receives events from a Bus.
type Handler func(ctx context.Context, event *Event) error

// Bus fans events out to in-process subscribers and downstream publishers
// in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	sinks    []Publisher
}

// NewBus creates a bus forwarding to sinks.
func NewBus(sinks ...Publisher) *Bus {
	return &Bus{sinks: sinks}
}

// Subscribe registers h for every later event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers event everywhere. Every destination is attempted; their
// errors are joined.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	sinks := append([]Publisher(nil), b.sinks...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range sinks {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sinks = nil
	return errors.Join(errs...)
}

var _ Publisher = (*Bus)(nil)
