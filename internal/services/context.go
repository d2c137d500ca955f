package services

import "context"

// Context keys are distinct types so values set here cannot collide with
// keys from other packages.
type (
	sourceIDKey struct{}
	stageKey    struct{}
	frameSeqKey struct{}
	eventIDKey  struct{}
)

func withString(ctx context.Context, key any, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key any) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithSourceID tags ctx with the camera the work belongs to.
func WithSourceID(ctx context.Context, id string) context.Context {
	return withString(ctx, sourceIDKey{}, id)
}

func SourceIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sourceIDKey{})
}

// WithStage tags ctx with the pipeline stage currently handling a frame.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey{}, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey{})
}

// WithFrameSeq tags ctx with the sequence number the source assigned to the
// frame. Zero is a valid sequence.
func WithFrameSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, frameSeqKey{}, seq)
}

func FrameSeqFromContext(ctx context.Context) (uint64, bool) {
	seq, ok := ctx.Value(frameSeqKey{}).(uint64)
	return seq, ok
}

// WithEventID tags ctx with the id of the event being assembled.
func WithEventID(ctx context.Context, id string) context.Context {
	return withString(ctx, eventIDKey{}, id)
}

func EventIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, eventIDKey{})
}
