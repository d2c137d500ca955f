// Package pipeline runs the sequential frame loop that turns a camera stream
// into recorded events.
//
// Each iteration pulls one frame from the connection manager, passes it
// through admission, detection, description and suppression, and hands the
// resulting event to every persistence sink before publishing it to
// subscribers. Stages report an explicit StageResult; a panic inside a stage
// is recovered and treated as a skip.
//
// The orchestrator owns the lifecycle state machine:
//
//	Idle -> Running <-> Paused -> ShuttingDown -> Stopped
//
// Shutdown is requested by the caller (signals), by the storage guardian when
// the hard ceiling is breached, or by a fatal connectivity fault. Run returns
// an error wrapping the termination cause so the process exit code reflects
// it.
package pipeline
