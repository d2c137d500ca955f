package logging

import (
	"context"
	"log/slog"

	"vigil/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. frame_skipped, sink_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for WARN/ERROR lines.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the consequence of a warning.
	FieldImpact = "impact"
	// FieldSource identifies the camera a line relates to.
	FieldSource = "source"
	// FieldStage names the pipeline stage that produced the line.
	FieldStage = "stage"
	// FieldFrameSeq is the monotonically increasing frame sequence number.
	FieldFrameSeq = "frame_seq"
	// FieldEventID is the UUIDv7 of a recorded event.
	FieldEventID = "event_id"
	// FieldShard is a YYYY-MM-DD shard directory name.
	FieldShard = "shard"
	// FieldSink names a persistence sink.
	FieldSink = "sink"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SourceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSource, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if seq, ok := services.FrameSeqFromContext(ctx); ok {
		fields = append(fields, FrameSeq(seq))
	}
	if id, ok := services.EventIDFromContext(ctx); ok {
		fields = append(fields, EventID(id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
