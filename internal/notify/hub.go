package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"
)

// Subscriber receives accepted events.
type Subscriber interface {
	Name() string
	Publish(ctx context.Context, ev *event.Event) error
	Close() error
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithDropObserver registers a callback invoked for every dropped event.
func WithDropObserver(fn func(subscriber string)) HubOption {
	return func(h *Hub) { h.onDrop = fn }
}

// WithPublishTimeout bounds each subscriber call.
func WithPublishTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.timeout = d
		}
	}
}

type subscription struct {
	name  string
	sub   Subscriber
	queue chan *event.Event
}

// Hub distributes events to subscribers.
type Hub struct {
	logger    *slog.Logger
	queueSize int
	timeout   time.Duration
	onDrop    func(string)
	dropped   atomic.Uint64

	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup
}

// NewHub builds a hub whose subscribers each buffer queueSize events.
func NewHub(queueSize int, logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		logger:    logging.NewComponentLogger(logger, "notify"),
		queueSize: max(queueSize, 1),
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers sub and starts its delivery goroutine.
func (h *Hub) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	s := &subscription{name: sub.Name(), sub: sub, queue: make(chan *event.Event, h.queueSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = sub.Close()
		return
	}
	h.subs = append(h.subs, s)
	h.wg.Add(1)
	go h.deliver(s)

	h.logger.Info("event subscriber registered",
		logging.String(logging.FieldEventType, "subscriber_registered"),
		logging.String("subscriber", s.name),
		logging.Int("queue_size", h.queueSize),
	)
}

// Subscribers lists registered subscriber names.
func (h *Hub) Subscribers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.subs))
	for _, s := range h.subs {
		names = append(names, s.name)
	}
	return names
}

// Publish enqueues ev for every subscriber and returns immediately.
func (h *Hub) Publish(ev *event.Event) {
	if ev == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		select {
		case s.queue <- ev:
		default:
			h.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop(s.name)
			}
			logging.WarnWithContext(h.logger, "subscriber queue full; event dropped", "notification_dropped",
				logging.String("subscriber", s.name),
				logging.EventID(ev.ID()),
				logging.String(logging.FieldErrorHint, "check the subscriber endpoint or raise notify.queue_size"),
				logging.String(logging.FieldImpact, "subscriber misses this event; it is still stored"),
			)
		}
	}
}

// Dropped returns the number of events dropped across subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) deliver(s *subscription) {
	defer h.wg.Done()
	for ev := range s.queue {
		if err := h.publishOne(s, ev); err != nil {
			logging.WarnWithContext(h.logger, "event notification failed", "notification_failed",
				logging.String("subscriber", s.name),
				logging.EventID(ev.ID()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the subscriber address and credentials"),
				logging.String(logging.FieldImpact, "subscriber misses this event; it is still stored"),
			)
		}
	}
}

// publishOne calls the subscriber under the publish timeout. A panic is
// reported as an error and the delivery goroutine keeps draining its queue.
func (h *Hub) publishOne(s *subscription, ev *event.Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", s.name, r)
		}
	}()
	return s.sub.Publish(ctx, ev)
}

// Close stops accepting events, lets queued events drain until ctx ends and
// closes every subscriber. Further calls are no-ops.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for _, s := range h.subs {
		close(s.queue)
	}
	subs := h.subs
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()
	var errs []error
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, errors.New("notification queues not drained before shutdown deadline"))
	}
	for _, s := range subs {
		if err := s.sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
