package admission

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/source"
)

// MotionDetector reports whether a frame differs enough from what came before
// and how strongly, as a score in [0,1].
type MotionDetector interface {
	Evaluate(frame *source.Frame) (changed bool, score float64, err error)
}

// Reasons reported on a Decision.
const (
	ReasonWarmup        = "warmup"
	ReasonNoChange      = "no_change"
	ReasonBelowMinScore = "below_min_score"
	ReasonRateLimited   = "rate_limited"
	ReasonDetectorError = "detector_error"
	ReasonAdmitted      = "admitted"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool
	Score    float64
	Reason   string
}

// Option customizes a Filter.
type Option func(*Filter)

// WithClock replaces time.Now for min-interval checks.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		if now != nil {
			f.now = now
		}
	}
}

// Filter applies warm-up, score and rate thinning on top of a MotionDetector.
type Filter struct {
	detector    MotionDetector
	logger      *slog.Logger
	now         func() time.Time
	warmup      int
	minScore    float64
	minInterval time.Duration

	mu        sync.Mutex
	evaluated int
	admitted  int
	lastAdmit time.Time
}

// NewFilter builds a Filter from the admission configuration.
func NewFilter(detector MotionDetector, cfg config.Admission, logger *slog.Logger, opts ...Option) (*Filter, error) {
	if detector == nil {
		return nil, fmt.Errorf("admission filter requires a motion detector")
	}
	f := &Filter{
		detector:    detector,
		logger:      logging.NewComponentLogger(logger, "admission"),
		now:         time.Now,
		warmup:      max(cfg.WarmupFrames, 0),
		minScore:    clamp(cfg.MinScore),
		minInterval: time.Duration(max(cfg.MinIntervalMillis, 0)) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Admit evaluates one frame. The detector runs even during warm-up so it can
// settle on a reference image.
func (f *Filter) Admit(frame *source.Frame) (Decision, error) {
	changed, score, err := f.detector.Evaluate(frame)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.evaluated++
	if err != nil {
		return Decision{Reason: ReasonDetectorError}, fmt.Errorf("motion detector: %w", err)
	}
	score = clamp(score)
	decision := Decision{Score: score}

	switch {
	case f.evaluated <= f.warmup:
		decision.Reason = ReasonWarmup
		if f.evaluated == f.warmup {
			f.logger.Info("admission warm-up complete",
				logging.String(logging.FieldEventType, "admission_warmup_complete"),
				logging.Int("frames", f.warmup),
			)
		}
	case !changed:
		decision.Reason = ReasonNoChange
	case score < f.minScore:
		decision.Reason = ReasonBelowMinScore
	case f.minInterval > 0 && !f.lastAdmit.IsZero() && f.now().Sub(f.lastAdmit) < f.minInterval:
		decision.Reason = ReasonRateLimited
	default:
		decision.Admitted = true
		decision.Reason = ReasonAdmitted
		f.admitted++
		f.lastAdmit = f.now()
	}
	return decision, nil
}

// WarmingUp reports whether the filter is still inside its warm-up period.
func (f *Filter) WarmingUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluated < f.warmup
}

// Counts returns the number of frames evaluated and admitted so far.
func (f *Filter) Counts() (evaluated, admitted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluated, f.admitted
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
