package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vigil/internal/config"
)

// ErrExhausted reports that a finite source (a non-looping replay) has no more
// frames.
var ErrExhausted = errors.New("source exhausted")

// Source is a raw frame producer. Read returns one encoded JPEG per call and
// may block up to the source's read timeout.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// New selects a Source implementation from the configured URL scheme.
func New(cfg config.Source) (Source, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse source url %s: %w", RedactURL(cfg.URL), err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return NewSnapshotSource(cfg)
	case "rtsp", "rtsps":
		return NewRTSPSource(cfg)
	case "file":
		return NewReplaySource(cfg)
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", parsed.Scheme)
	}
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// pace blocks until interval has elapsed since last, honouring ctx.
func pace(ctx context.Context, last time.Time, interval time.Duration) error {
	if last.IsZero() || interval <= 0 {
		return ctx.Err()
	}
	wait := time.Until(last.Add(interval))
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
