package sink

import (
	"context"

	"vigil/internal/event"
)

// Sink persists events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev *event.Event) error
	Flush() error
	Close() error
}

// Inserter is the subset of the event store used by StoreSink.
type Inserter interface {
	Insert(ctx context.Context, ev *event.Event) error
}

// StoreSink appends events to the event store.
type StoreSink struct {
	store Inserter
}

// NewStoreSink wraps an event store.
func NewStoreSink(store Inserter) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, ev *event.Event) error {
	return s.store.Insert(ctx, ev)
}

// Flush is a no-op: every insert is committed.
func (s *StoreSink) Flush() error { return nil }

// Close leaves the store open; its owner closes it.
func (s *StoreSink) Close() error { return nil }
