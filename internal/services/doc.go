// Package services defines shared utilities consumed by the pipeline stages
// and the external integrations they call.
//
// Key responsibilities:
//   - Context helpers that stamp source ids, stage names, frame sequence
//     numbers and event ids for logging.
//   - The error taxonomy: sentinel markers, the Wrap helper, the
//     ConnectivityFatalError escalation and the mapping from a run's
//     terminating error to the process exit code.
//
// Stage-local failures are wrapped with ErrTransient or ErrTimeout and
// absorbed by the orchestrator; only ErrConnectivityFatal and
// ErrStorageExhausted end a run.
package services
