package suppression

import (
	"fmt"
	"sync"

	"vigil/internal/event"
)

const (
	// DefaultWindow is the number of accepted label sets remembered.
	DefaultWindow = 5
	// DefaultThreshold is the overlap at or above which a candidate is suppressed.
	DefaultThreshold = 0.80
)

// Engine holds the suppression window. The window lives in memory only and
// starts empty on every process start.
type Engine struct {
	mu        sync.Mutex
	threshold float64
	ring      []event.LabelSet
	next      int
	size      int
}

// New constructs an engine remembering window label sets.
func New(window int, threshold float64) (*Engine, error) {
	if window <= 0 {
		return nil, fmt.Errorf("suppression window must be positive, got %d", window)
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("suppression threshold must be in (0,1], got %v", threshold)
	}
	return &Engine{
		threshold: threshold,
		ring:      make([]event.LabelSet, window),
	}, nil
}

// Overlap returns |a ∩ b| / |a ∪ b|. Two empty sets overlap fully.
func Overlap(a, b event.LabelSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for label := range small {
		if large.Has(label) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Evaluate reports whether candidate is accepted. An accepted candidate is
// pushed into the window, evicting the oldest entry when full.
func (e *Engine) Evaluate(candidate event.LabelSet) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := 0; i < e.size; i++ {
		if Overlap(candidate, e.ring[i]) >= e.threshold {
			return false
		}
	}
	e.ring[e.next] = candidate.Clone()
	e.next = (e.next + 1) % len(e.ring)
	if e.size < len(e.ring) {
		e.size++
	}
	return true
}

// Window returns copies of the remembered label sets, oldest first.
func (e *Engine) Window() []event.LabelSet {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]event.LabelSet, 0, e.size)
	start := 0
	if e.size == len(e.ring) {
		start = e.next
	}
	for i := 0; i < e.size; i++ {
		out = append(out, e.ring[(start+i)%len(e.ring)].Clone())
	}
	return out
}

// Len returns the number of remembered label sets.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// Threshold returns the configured suppression threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}
