package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/config"
)

// ConfigOption adjusts the config built by NewConfig. Options run after the
// directory layout is fixed, so they may write fixtures under it.
type ConfigOption func(*fixture)

type fixture struct {
	t    testing.TB
	root string
	cfg  *config.Config
}

func (f *fixture) path(elem ...string) string {
	return filepath.Join(append([]string{f.root}, elem...)...)
}

// NewConfig returns a config rooted in a fresh temp directory, tuned for
// tests: a replay source named test-cam, no warmup, no describer, no storage
// floor, millisecond polling and an ephemeral metrics port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	f := &fixture{t: t, root: t.TempDir(), cfg: &cfg}

	cfg.Paths = config.Paths{
		DataDir:  f.path("events"),
		StateDir: f.path("state"),
		LogDir:   f.path("logs"),
	}
	cfg.Source.ID = "test-cam"
	cfg.Source.URL = "file://" + f.path("frames")
	cfg.Source.PollIntervalMillis = 1
	cfg.Admission.WarmupFrames = 0
	cfg.Describer.Enabled = false
	cfg.Storage.MinFreeMiB = 0
	cfg.Storage.CheckIntervalSeconds = 0
	cfg.Pipeline.IdleSleepMillis = 1
	cfg.Pipeline.DrainTimeoutSeconds = 1
	cfg.Metrics.Bind = "127.0.0.1:0"
	cfg.Logging.Format = "json"

	for _, opt := range opts {
		opt(f)
	}
	return f.cfg
}

// WithDetectorURL points the detector client at url, usually an httptest
// server.
func WithDetectorURL(url string) ConfigOption {
	return func(f *fixture) { f.cfg.Detector.URL = url }
}

// WithReplayFrames fills the replay directory the source URL points at.
func WithReplayFrames(frames ...[]byte) ConfigOption {
	return func(f *fixture) { WriteFrames(f.t, f.path("frames"), frames...) }
}

// WithStubbedBinaries puts shell stubs for names (ffmpeg when empty) first on
// PATH for the rest of the test. The stubs print an ffmpeg banner and exit 0.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(f *fixture) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		bin := f.path("bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			f.t.Fatalf("create stub dir: %v", err)
		}
		stub := []byte("#!/bin/sh\necho 'ffmpeg version 7.0-stub'\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), stub, 0o755); err != nil {
				f.t.Fatalf("write %s stub: %v", name, err)
			}
		}
		f.t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory every path in cfg hangs off.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
