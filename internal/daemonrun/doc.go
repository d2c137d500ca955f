// Package daemonrun assembles and runs the vigil daemon process: it takes the
// single-instance lock, opens the run log, builds every pipeline component
// from configuration, runs preflight checks, and drives the orchestrator until
// a signal or a terminal fault stops it.
package daemonrun
