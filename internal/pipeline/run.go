package pipeline

import (
	"context"
	"errors"
	"time"

	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/source"
)

// Run drives the frame loop until shutdown is requested, then drains and
// returns the termination cause: nil for a requested shutdown, or an error
// wrapping ErrConnectivityFatal or ErrStorageExhausted.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.New("pipeline already started")
	}
	started := o.now()
	o.mu.Lock()
	o.stats.StartedAt = started
	o.mu.Unlock()
	o.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_started"),
		logging.String(logging.FieldSource, o.c.Source.Status().Source),
		logging.Int("storage_check_every", o.checkEvery),
		logging.Duration("storage_check_interval", o.checkInterval),
	)

	var checkTick <-chan time.Time
	if o.checkInterval > 0 {
		ticker := time.NewTicker(o.checkInterval)
		defer ticker.Stop()
		checkTick = ticker.C
	}

	for !o.shuttingDown() {
		select {
		case <-ctx.Done():
			o.RequestShutdown("context canceled")
			continue
		case err := <-o.c.Source.Fatal():
			o.requestShutdown("source unreachable", err)
			continue
		case <-checkTick:
			o.checkStorage(ctx)
			continue
		default:
		}

		if o.State() == StatePaused {
			o.sleep(ctx, o.resumeCh)
			continue
		}
		o.processFrame(ctx)
	}
	return o.shutdown()
}

// sleep waits for the idle interval, an optional wake channel, shutdown or
// ctx cancellation.
func (o *Orchestrator) sleep(ctx context.Context, wake <-chan struct{}) {
	timer := time.NewTimer(o.idleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-o.shutdownCh:
	case <-wake:
	case <-timer.C:
	}
}

func (o *Orchestrator) processFrame(ctx context.Context) {
	frame, err := o.c.Source.GetFrame(ctx)
	if err != nil {
		o.handleFrameError(ctx, err)
		return
	}
	o.bump(func(s *Stats) { s.FramesProcessed++ })
	o.c.Observer.FrameProcessed()

	// The in-flight frame finishes even when ctx is canceled; inference calls
	// carry their own timeouts.
	fctx := services.WithFrameSeq(services.WithSourceID(context.WithoutCancel(ctx), o.sourceID), frame.Seq)
	logger := logging.WithContext(fctx, o.logger)
	work := &frameWork{frame: frame}
	for _, st := range o.stages() {
		if o.runStage(fctx, logger, st, work) != Continue {
			return
		}
	}
}

func (o *Orchestrator) handleFrameError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, source.ErrExhausted):
		o.RequestShutdown("source exhausted")
		return
	case ctx.Err() != nil:
		return
	case !errors.Is(err, services.ErrUnavailable):
		logging.WarnWithContext(o.logger, "frame read failed", "frame_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the camera stream"),
			logging.String(logging.FieldImpact, "frame skipped"),
		)
	}
	o.sleep(ctx, nil)
}

// checkStorage runs one guardian cycle. A breach of the hard ceiling that
// rotation cannot fix requests shutdown.
func (o *Orchestrator) checkStorage(ctx context.Context) StageResult {
	_, err := o.c.Guardian.Check(context.WithoutCancel(ctx))
	o.bump(func(s *Stats) { s.StorageChecks++ })
	if err == nil {
		return Continue
	}
	if errors.Is(err, services.ErrStorageExhausted) {
		o.requestShutdown("storage ceiling exceeded", err)
		return Fatal
	}
	logging.WarnWithContext(o.logger, "storage check failed", "storage_check_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check data directory permissions"),
		logging.String(logging.FieldImpact, "rotation is deferred to the next check"),
	)
	return Continue
}

func (o *Orchestrator) shutdown() error {
	o.state.Store(int32(StateShuttingDown))
	o.mu.Lock()
	reason, cause := o.reason, o.cause
	o.mu.Unlock()
	o.logger.Info("pipeline shutting down",
		logging.String(logging.FieldEventType, "pipeline_shutting_down"),
		logging.String("reason", reason),
	)

	o.c.Source.Disconnect()
	if err := o.c.Sinks.Flush(); err != nil {
		logging.WarnWithContext(o.logger, "sink flush failed during shutdown", "sink_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the data directory"),
			logging.String(logging.FieldImpact, "the last events may not be on disk"),
		)
	}
	if o.c.Publisher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), o.drainTimeout)
		if err := o.c.Publisher.Close(drainCtx); err != nil {
			logging.WarnWithContext(o.logger, "notification drain incomplete", "notify_drain_incomplete",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check subscriber endpoints"),
				logging.String(logging.FieldImpact, "queued notifications were discarded"),
			)
		}
		cancel()
	}
	if err := o.c.Sinks.Close(); err != nil {
		o.logger.Debug("sink close failed", logging.Error(err))
	}

	stats := o.Stats()
	o.logger.Info("pipeline stopped",
		logging.String(logging.FieldEventType, "pipeline_summary"),
		logging.String("reason", reason),
		logging.Uint64("frames_processed", stats.FramesProcessed),
		logging.Uint64("frames_admitted", stats.FramesAdmitted),
		logging.Uint64("events_created", stats.EventsCreated),
		logging.Uint64("events_suppressed", stats.EventsSuppressed),
		logging.Uint64("inference_skips", stats.InferenceSkips),
		logging.Uint64("persistence_failures", stats.PersistenceFailures),
		logging.Duration("uptime", stats.Uptime),
	)
	o.state.Store(int32(StateStopped))
	return cause
}
