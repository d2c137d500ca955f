package logging

import (
	"context"
	"log/slog"
)

// levelOverrideHandler enforces the effective minimum level while delegating
// output to the wrapped handler, which is configured with the most verbose
// level any component needs. When a component attribute with a configured
// override is attached, that component's level takes effect for the derived
// handler.
type levelOverrideHandler struct {
	next      slog.Handler
	level     slog.Level
	overrides map[string]slog.Level
}

func newLevelOverrideHandler(next slog.Handler, level slog.Level, overrides map[string]slog.Level) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	return &levelOverrideHandler{next: next, level: level, overrides: overrides}
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		if lvl, ok := h.overrides[attr.Value.String()]; ok {
			level = lvl
		}
	}
	return &levelOverrideHandler{
		next:      h.next.WithAttrs(attrs),
		level:     level,
		overrides: h.overrides,
	}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{
		next:      h.next.WithGroup(name),
		level:     h.level,
		overrides: h.overrides,
	}
}
