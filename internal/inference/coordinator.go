package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/services"
)

const (
	StageDetect   = "detect"
	StageDescribe = "describe"

	defaultDetectTimeout   = 5 * time.Second
	defaultDescribeTimeout = 10 * time.Second
)

// LatencyObserver receives the duration of every collaborator call.
type LatencyObserver func(stage string, d time.Duration)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLatencyObserver registers a latency callback, usually a histogram.
func WithLatencyObserver(fn LatencyObserver) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// WithDescribeTimeout overrides the hard description timeout.
func WithDescribeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.describeTimeout = d
		}
	}
}

// Coordinator runs detection and description for admitted frames.
type Coordinator struct {
	detector        Detector
	describer       Describer
	logger          *slog.Logger
	detectTimeout   time.Duration
	describeTimeout time.Duration
	observe         LatencyObserver

	mu     sync.RWMutex
	filter compiledFilter
}

// NewCoordinator wires the collaborators. describer may be nil, in which case
// every description is the label fallback.
func NewCoordinator(detector Detector, describer Describer, detCfg config.Detector, descCfg config.Describer, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if detector == nil {
		return nil, errors.New("inference coordinator requires a detector")
	}
	c := &Coordinator{
		detector:        detector,
		describer:       describer,
		logger:          logging.NewComponentLogger(logger, "inference"),
		detectTimeout:   time.Duration(detCfg.TimeoutSeconds) * time.Second,
		describeTimeout: time.Duration(descCfg.TimeoutSeconds) * time.Second,
		filter:          FilterFromConfig(detCfg).compile(),
	}
	if c.detectTimeout <= 0 {
		c.detectTimeout = defaultDetectTimeout
	}
	if c.describeTimeout <= 0 {
		c.describeTimeout = defaultDescribeTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetFilter replaces the detection filter for subsequent frames.
func (c *Coordinator) SetFilter(f Filter) {
	compiled := f.compile()
	c.mu.Lock()
	c.filter = compiled
	c.mu.Unlock()
	c.logger.Info("detection filter updated",
		logging.String(logging.FieldEventType, "detection_filter_updated"),
		logging.Float64("min_confidence", f.MinConfidence),
		logging.String("allow", strings.Join(compiled.allow.Sorted(), ",")),
		logging.String("deny", strings.Join(compiled.deny.Sorted(), ",")),
	)
}

// Detect runs the detector under its timeout and returns the detections that
// survive validation and filtering, in detector order.
func (c *Coordinator) Detect(ctx context.Context, jpeg []byte) ([]event.Detection, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.detectTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.detector.Detect(callCtx, jpeg)
	elapsed := time.Since(start)
	c.record(StageDetect, elapsed)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, elapsed, services.Wrap(services.ErrTimeout, StageDetect, "detect",
				fmt.Sprintf("no answer within %s", c.detectTimeout), err)
		}
		return nil, elapsed, services.Wrap(services.ErrTransient, StageDetect, "detect", "detector failed", err)
	}

	c.mu.RLock()
	filter := c.filter
	c.mu.RUnlock()

	kept := make([]event.Detection, 0, len(raw))
	for _, det := range raw {
		det.Label = NormalizeLabel(det.Label)
		if err := det.Validate(); err != nil {
			c.logger.Debug("dropping invalid detection", logging.Error(err))
			continue
		}
		if filter.keep(det) {
			kept = append(kept, det)
		}
	}
	return kept, elapsed, nil
}

// Describe returns a description of the frame. fallback is true when the
// label summary was substituted for a model answer.
func (c *Coordinator) Describe(ctx context.Context, jpeg []byte, labels []string) (text string, fallback bool) {
	if c.describer == nil {
		return FallbackDescription(labels), true
	}
	callCtx, cancel := context.WithTimeout(ctx, c.describeTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.describer.Describe(callCtx, jpeg, labels)
	c.record(StageDescribe, time.Since(start))
	text = strings.TrimSpace(text)
	if err == nil && text != "" {
		return text, false
	}
	if err == nil {
		err = errors.New("empty description")
	}
	logging.WarnWithContext(c.logger, "description unavailable; using label summary", "description_fallback",
		logging.Error(err),
		logging.Bool("timed_out", errors.Is(callCtx.Err(), context.DeadlineExceeded)),
		logging.String(logging.FieldErrorHint, "check describer.api_key and model availability"),
		logging.String(logging.FieldImpact, "event stored with a label summary instead of a description"),
	)
	return FallbackDescription(labels), true
}

func (c *Coordinator) record(stage string, d time.Duration) {
	if c.observe != nil {
		c.observe(stage, d)
	}
}

// FallbackDescription renders "Detected: a, b".
func FallbackDescription(labels []string) string {
	if len(labels) == 0 {
		return "Detected: nothing"
	}
	return "Detected: " + strings.Join(labels, ", ")
}
