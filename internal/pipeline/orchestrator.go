package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vigil/internal/config"
	"vigil/internal/logging"
)

// Components are the collaborators the orchestrator drives. Images and
// Publisher are optional.
type Components struct {
	Source     FrameSource
	Admission  Admitter
	Inference  Inference
	Suppressor Suppressor
	Guardian   Guardian
	Sinks      Persister
	Images     ImageSaver
	Publisher  Publisher
	Observer   Observer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now for event timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator is the sequential pipeline controller.
type Orchestrator struct {
	c      Components
	logger *slog.Logger
	now    func() time.Time

	sourceID      string
	idleSleep     time.Duration
	drainTimeout  time.Duration
	checkEvery    int
	checkInterval time.Duration
	saveImages    bool

	state    atomic.Int32
	resumeCh chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	mu               sync.Mutex
	stats            Stats
	eventsSinceCheck int
	reason           string
	cause            error
}

// New validates the components and builds an orchestrator in the Idle state.
func New(cfg *config.Config, c Components, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires configuration")
	}
	switch {
	case c.Source == nil:
		return nil, errors.New("pipeline requires a frame source")
	case c.Admission == nil:
		return nil, errors.New("pipeline requires an admission filter")
	case c.Inference == nil:
		return nil, errors.New("pipeline requires an inference coordinator")
	case c.Suppressor == nil:
		return nil, errors.New("pipeline requires a suppression engine")
	case c.Guardian == nil:
		return nil, errors.New("pipeline requires a storage guardian")
	case c.Sinks == nil:
		return nil, errors.New("pipeline requires persistence sinks")
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	o := &Orchestrator{
		c:             c,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		now:           time.Now,
		sourceID:      cfg.Source.ID,
		idleSleep:     time.Duration(cfg.Pipeline.IdleSleepMillis) * time.Millisecond,
		drainTimeout:  time.Duration(cfg.Pipeline.DrainTimeoutSeconds) * time.Second,
		checkEvery:    cfg.Storage.CheckEveryEvents,
		checkInterval: time.Duration(cfg.Storage.CheckIntervalSeconds) * time.Second,
		saveImages:    cfg.Pipeline.SaveImages && c.Images != nil,
		resumeCh:      make(chan struct{}, 1),
		shutdownCh:    make(chan struct{}),
	}
	if o.idleSleep <= 0 {
		o.idleSleep = 200 * time.Millisecond
	}
	if o.drainTimeout <= 0 {
		o.drainTimeout = 15 * time.Second
	}
	if o.checkEvery <= 0 {
		o.checkEvery = 100
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Pause stops frame pulling without disconnecting. It reports whether the
// orchestrator was running.
func (o *Orchestrator) Pause() bool {
	if !o.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return false
	}
	o.logger.Info("pipeline paused", logging.String(logging.FieldEventType, "pipeline_paused"))
	return true
}

// Resume restarts frame pulling after Pause.
func (o *Orchestrator) Resume() bool {
	if !o.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return false
	}
	select {
	case o.resumeCh <- struct{}{}:
	default:
	}
	o.logger.Info("pipeline resumed", logging.String(logging.FieldEventType, "pipeline_resumed"))
	return true
}

// RequestShutdown asks Run to stop after the in-flight frame. Only the first
// request is recorded; it is safe from any goroutine.
func (o *Orchestrator) RequestShutdown(reason string) {
	o.requestShutdown(reason, nil)
}

func (o *Orchestrator) requestShutdown(reason string, cause error) {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.reason = reason
		o.cause = cause
		o.mu.Unlock()
		close(o.shutdownCh)
		o.logger.Info("shutdown requested",
			logging.String(logging.FieldEventType, "shutdown_requested"),
			logging.String("reason", reason),
		)
	})
}

func (o *Orchestrator) shuttingDown() bool {
	select {
	case <-o.shutdownCh:
		return true
	default:
		return false
	}
}
