package daemonrun

import (
	"context"
	"errors"

	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/logging"
	"vigil/internal/preflight"
	"vigil/internal/source"
	"vigil/internal/storage"
	"vigil/internal/store"
)

// Preflight builds the checked collaborators for cfg without starting the
// pipeline, runs every preflight check and releases them again. Construction
// failures are reported as failed results rather than errors.
func Preflight(ctx context.Context, cfg *config.Config) ([]preflight.Result, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	logger := logging.NewNop()

	var (
		t     preflight.Targets
		extra []preflight.Result
	)
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		extra = append(extra, preflight.Result{Name: "Event store", Detail: err.Error()})
	} else {
		defer st.Close()
		t.Store = st
	}
	if src, err := source.New(cfg.Source); err != nil {
		extra = append(extra, preflight.Result{Name: "Source", Detail: err.Error()})
	} else {
		t.Source = src
	}
	if det, err := inference.NewHTTPDetector(cfg.Detector); err != nil {
		extra = append(extra, preflight.Result{Name: "Detector", Detail: err.Error()})
	} else {
		t.Detector = det
	}
	if desc := inference.NewLLMDescriber(cfg.Describer); desc != nil {
		t.Describer = desc
	}
	if g, err := storage.NewGuardian(cfg.Paths.DataDir, cfg.Storage, logger); err != nil {
		extra = append(extra, preflight.Result{Name: "Storage", Detail: err.Error()})
	} else {
		t.Guardian = g
	}

	results := preflight.RunAll(ctx, cfg, t)
	if len(extra) == 0 {
		return results, nil
	}
	// A construction failure replaces the generic "not constructed" result.
	byName := make(map[string]preflight.Result, len(extra))
	for _, r := range extra {
		byName[r.Name] = r
	}
	for i, r := range results {
		if e, ok := byName[r.Name]; ok && !r.Passed {
			results[i] = e
		}
	}
	return results, nil
}
