package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"vigil/internal/config"
	"vigil/internal/event"
)

const (
	userAgent       = "vigil/1.0"
	dedupCacheSize  = 1024
	ntfyMessageTags = "rotating_light"
)

// Deduper reports whether a key was already seen within a window.
type Deduper struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, time.Time]
	window time.Duration
	now    func() time.Time
}

// NewDeduper returns a deduper remembering up to size keys. A zero window
// disables deduplication.
func NewDeduper(size int, window time.Duration, now func() time.Time) *Deduper {
	if now == nil {
		now = time.Now
	}
	cache, err := lru.New[string, time.Time](max(size, 1))
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Deduper{cache: cache, window: window, now: now}
}

// IsDuplicate records key and reports whether it was seen within the window.
func (d *Deduper) IsDuplicate(key string) bool {
	if d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if seen, ok := d.cache.Get(key); ok && now.Sub(seen) < d.window {
		return true
	}
	d.cache.Add(key, now)
	return false
}

// NtfySubscriber posts a short text notification per label combination.
type NtfySubscriber struct {
	client   *resty.Client
	endpoint string
	dedup    *Deduper
}

// NtfyOption customizes an NtfySubscriber.
type NtfyOption func(*NtfySubscriber)

// WithNtfyClock replaces the deduplication clock.
func WithNtfyClock(now func() time.Time) NtfyOption {
	return func(s *NtfySubscriber) {
		s.dedup = NewDeduper(dedupCacheSize, s.dedup.window, now)
	}
}

// NewNtfySubscriber posts to the full topic URL in cfg.NtfyTopic.
func NewNtfySubscriber(cfg config.Notify, opts ...NtfyOption) *NtfySubscriber {
	timeout := time.Duration(max(cfg.RequestTimeout, 1)) * time.Second
	s := &NtfySubscriber{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		endpoint: cfg.NtfyTopic,
		dedup:    NewDeduper(dedupCacheSize, time.Duration(cfg.DedupWindowSeconds)*time.Second, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Subscriber.
func (s *NtfySubscriber) Name() string { return "ntfy" }

// Publish sends one notification unless the same labels were announced for
// the same source within the dedup window.
func (s *NtfySubscriber) Publish(ctx context.Context, ev *event.Event) error {
	labels := ev.Labels()
	if s.dedup.IsDuplicate(ev.SourceID() + "|" + labels.Key()) {
		return nil
	}
	title := fmt.Sprintf("%s: %s", ev.SourceID(), strings.Join(labels.Sorted(), ", "))
	if labels.Key() == "" {
		title = ev.SourceID() + ": activity"
	}
	message := ev.Description()
	if message == "" {
		message = "Event " + ev.ID()
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetHeader("Title", title).
		SetHeader("Tags", ntfyMessageTags).
		SetBody(message).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	if resp.StatusCode() >= 300 {
		body := strings.TrimSpace(resp.String())
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode(), body)
	}
	return nil
}

// Close implements Subscriber.
func (s *NtfySubscriber) Close() error { return nil }
