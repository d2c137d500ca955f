package daemonrun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/metrics"
	"vigil/internal/services"
	"vigil/internal/store"
	"vigil/internal/testsupport"
)

func detectorServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const personResponse = `{"objects":[{"label":"person","confidence":0.92,"bbox":{"x":2,"y":2,"w":20,"h":30}}]}`

func TestRunReplaysFramesUntilExhausted(t *testing.T) {
	det := detectorServer(t, personResponse)
	cfg := testsupport.NewConfig(t,
		testsupport.WithDetectorURL(det.URL),
		testsupport.WithReplayFrames(testsupport.AlternatingFrames(t, 4)...),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := Run(ctx, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, services.ExitOK, services.ExitCode(err))

	st, err := store.Open(cfg.DatabasePath())
	require.NoError(t, err)
	defer st.Close()
	count, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "repeated person detections collapse into one event")

	recent, err := st.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "test-cam", recent[0].SourceID())
	assert.Equal(t, []string{"person"}, recent[0].Labels().Sorted())

	_, err = os.Stat(cfg.PIDPath())
	assert.True(t, os.IsNotExist(err), "pid file removed on exit")

	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, "vigil.log"))
	if err == nil {
		assert.Contains(t, filepath.Base(target), "vigil-")
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	require.NoError(t, err)
	assert.True(t, locked, "lock released on exit")
	_ = lock.Unlock()
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	require.NoError(t, cfg.EnsureDirectories())

	held := flock.New(cfg.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	err = Run(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Equal(t, services.ExitStartup, services.ExitCode(err))
}

func TestRunFailsPreflightWhenDetectorDown(t *testing.T) {
	det := httptest.NewServer(http.NotFoundHandler())
	url := det.URL
	det.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithDetectorURL(url),
		testsupport.WithReplayFrames(testsupport.AlternatingFrames(t, 2)...),
	)
	cfg.Detector.TimeoutSeconds = 1
	cfg.Detector.RetryCount = 0

	err := Run(context.Background(), cfg, Options{})
	require.Error(t, err)
	var pf *PreflightError
	require.ErrorAs(t, err, &pf)
	names := make([]string, 0, len(pf.Failed))
	for _, r := range pf.Failed {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "Detector")
	assert.Equal(t, services.ExitStartup, services.ExitCode(err))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	det := detectorServer(t, `{"objects":[]}`)
	cfg := testsupport.NewConfig(t,
		testsupport.WithDetectorURL(det.URL),
		testsupport.WithReplayFrames(testsupport.AlternatingFrames(t, 2)...),
	)
	cfg.Source.Loop = true
	cfg.Source.PollIntervalMillis = 20

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, Options{}) }()

	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.pid")
	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, writePIDFile(path))
	pid, err = ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestEnsureCurrentLogPointerReplacesOld(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "vigil-1.log")
	second := filepath.Join(dir, "vigil-2.log")
	require.NoError(t, os.WriteFile(first, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("two"), 0o644))

	require.NoError(t, ensureCurrentLogPointer(dir, first))
	require.NoError(t, ensureCurrentLogPointer(dir, second))
	data, err := os.ReadFile(filepath.Join(dir, "vigil.log"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestBuildClosesStoreOnStartupError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.URL = "ftp://camera.local/stream"

	var opened *store.Store
	orig := openStore
	openStore = func(path string) (*store.Store, error) {
		st, err := orig(path)
		opened = st
		return st, err
	}
	t.Cleanup(func() { openStore = orig })

	rt, err := build(cfg, nil, metrics.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.Nil(t, rt)

	require.NotNil(t, opened, "the store opens before the source is built")
	_, err = opened.Count(context.Background())
	assert.ErrorContains(t, err, "database is closed")
}
