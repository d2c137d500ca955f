package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/services"
	"vigil/internal/source"
)

// frameWork accumulates the results of each stage for one frame.
type frameWork struct {
	frame       *source.Frame
	score       float64
	detections  []event.Detection
	labels      []string
	description string
}

type stage struct {
	name string
	run  func(ctx context.Context, logger *slog.Logger, w *frameWork) StageResult
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{name: "admission", run: o.admit},
		{name: "detect", run: o.detect},
		{name: "describe", run: o.describe},
		{name: "suppress", run: o.suppress},
		{name: "persist", run: o.persist},
	}
}

// runStage executes st, converting a panic into Skip.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, st stage, w *frameWork) (result StageResult) {
	defer func() {
		if r := recover(); r != nil {
			o.bump(func(s *Stats) { s.StagePanics++ })
			o.c.Observer.StageError(st.name)
			logging.ErrorWithContext(logger, "stage panicked; frame skipped", "stage_panic",
				logging.String(logging.FieldStage, st.name),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report the stack trace; the pipeline keeps running"),
			)
			result = Skip
		}
	}()
	return st.run(services.WithStage(ctx, st.name), logger, w)
}

func (o *Orchestrator) admit(_ context.Context, logger *slog.Logger, w *frameWork) StageResult {
	decision, err := o.c.Admission.Admit(w.frame)
	if err != nil {
		logging.WarnWithContext(logger, "admission failed", "admission_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the frame may be corrupt"),
			logging.String(logging.FieldImpact, "frame skipped"),
		)
		return Skip
	}
	if !decision.Admitted {
		logger.Debug("frame not admitted",
			logging.String("reason", decision.Reason),
			logging.Float64("score", decision.Score),
		)
		return Skip
	}
	o.bump(func(s *Stats) { s.FramesAdmitted++ })
	o.c.Observer.FrameAdmitted()
	w.score = decision.Score
	return Continue
}

func (o *Orchestrator) detect(ctx context.Context, logger *slog.Logger, w *frameWork) StageResult {
	dets, latency, err := o.c.Inference.Detect(ctx, w.frame.JPEG)
	if err != nil {
		o.inferenceSkip(skipDetectorError)
		logging.WarnWithContext(logger, "object detection failed; frame skipped", "inference_skipped",
			logging.Error(err),
			logging.Duration("latency", latency),
			logging.String(logging.FieldErrorHint, "check the detector service"),
			logging.String(logging.FieldImpact, "no event for this frame"),
		)
		return Skip
	}
	if len(dets) == 0 {
		o.inferenceSkip(skipNoDetections)
		logging.WarnWithContext(logger, "no detections after filtering; frame skipped", "inference_skipped",
			logging.Duration("latency", latency),
			logging.String(logging.FieldErrorHint, "motion without recognized objects; review allow/deny labels and min_confidence"),
			logging.String(logging.FieldImpact, "no event for this frame"),
		)
		return Skip
	}
	w.detections = dets
	w.labels = event.UniqueLabels(dets)
	return Continue
}

func (o *Orchestrator) inferenceSkip(reason string) {
	o.bump(func(s *Stats) { s.InferenceSkips++ })
	o.c.Observer.InferenceSkipped(reason)
}

func (o *Orchestrator) describe(ctx context.Context, logger *slog.Logger, w *frameWork) StageResult {
	text, fallback := o.c.Inference.Describe(ctx, w.frame.JPEG, w.labels)
	if fallback {
		logger.Debug("using fallback description", logging.String("description", text))
	}
	w.description = text
	return Continue
}

func (o *Orchestrator) suppress(_ context.Context, logger *slog.Logger, w *frameWork) StageResult {
	if o.c.Suppressor.Evaluate(event.NewLabelSet(w.labels...)) {
		return Continue
	}
	o.bump(func(s *Stats) { s.EventsSuppressed++ })
	o.c.Observer.EventSuppressed()
	logger.Debug("event suppressed as near-duplicate",
		logging.String("labels", strings.Join(w.labels, ",")),
	)
	return Skip
}

func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, w *frameWork) StageResult {
	id := event.NewID()
	created := o.now().UTC()
	shard := created.Format(event.ShardLayout)
	logger = logger.With(logging.EventID(id))

	var imagePath string
	if o.saveImages {
		path, err := o.c.Images.Write(shard, id, w.frame.JPEG, nil, w.detections)
		if err != nil {
			o.bump(func(s *Stats) { s.PersistenceFailures++ })
			o.c.Sinks.ReportFailure(o.c.Images.Name(), id, err)
		} else {
			imagePath = path
		}
	}

	ev, err := event.New(event.Params{
		ID:          id,
		CreatedAt:   created,
		SourceID:    o.sourceID,
		Score:       w.score,
		Detections:  w.detections,
		Description: w.description,
		ImagePath:   imagePath,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "event construction failed", "event_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the detector returned values outside the accepted ranges"),
		)
		return Skip
	}

	failures := o.c.Sinks.Write(services.WithEventID(ctx, id), ev)
	o.bump(func(s *Stats) {
		s.EventsCreated++
		s.PersistenceFailures += uint64(len(failures))
	})
	o.c.Observer.EventAccepted()
	logger.Info("event recorded",
		logging.String(logging.FieldEventType, "event_recorded"),
		logging.Shard(shard),
		logging.String("labels", strings.Join(w.labels, ",")),
		logging.Float64("score", w.score),
		logging.String("description", w.description),
		logging.Int("failed_sinks", len(failures)),
	)
	if o.c.Publisher != nil {
		o.c.Publisher.Publish(ev)
	}

	o.mu.Lock()
	o.eventsSinceCheck++
	due := o.eventsSinceCheck >= o.checkEvery
	if due {
		o.eventsSinceCheck = 0
	}
	o.mu.Unlock()
	if due {
		return o.checkStorage(ctx)
	}
	return Continue
}
