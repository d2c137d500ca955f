package preflight

import (
	"context"

	"vigil/internal/config"
	"vigil/internal/source"
	"vigil/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// HealthChecker is implemented by the inference collaborators.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is implemented by the event store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Targets carries the constructed collaborators to check. Nil fields are
// reported as failures except Describer, which may be disabled.
type Targets struct {
	Source    source.Source
	Detector  HealthChecker
	Describer HealthChecker
	Store     Pinger
	Guardian  *storage.Guardian
}

// RunAll executes every preflight check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, t Targets) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	results = append(results, CheckSourceDeps(cfg.Source)...)
	results = append(results,
		CheckSource(ctx, cfg.Source, t.Source),
		CheckDetector(ctx, t.Detector),
		CheckDescriber(ctx, cfg.Describer, t.Describer),
		CheckStore(ctx, t.Store),
		CheckStorage(t.Guardian),
	)
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
