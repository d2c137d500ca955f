package source

import "time"

// Backoff yields exponentially growing reconnect delays: base, 2*base, 4*base
// and so on, capped at max.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

// NewBackoff constructs a Backoff. Non-positive values fall back to 1s and 8s.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 8 * time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	delay := b.max
	if b.attempt < 62 {
		if scaled := b.base << b.attempt; scaled > 0 && scaled < b.max {
			delay = scaled
		}
	}
	b.attempt++
	return delay
}

// Reset restarts the sequence at base.
func (b *Backoff) Reset() {
	b.attempt = 0
}
