// Package logging assembles the structured slog loggers used across vigil.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline stages tag log
// lines with the source id, frame sequence and event id without threading
// attributes by hand. A no-op logger is provided for tests and for wiring
// code that cannot fail.
//
// WARN and ERROR lines are expected to carry an event_type, an error_hint and
// (for warnings) an impact; use WarnWithContext and ErrorWithContext rather
// than calling logger.Warn directly so operators always get the cause, the
// consequence and the next step.
package logging
