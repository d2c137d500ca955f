package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSourceUsesBasicAuthAndValidatesJPEG(t *testing.T) {
	frame := testJPEG(t, 90)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	}))
	defer server.Close()

	cfg := testSourceConfig()
	cfg.URL = strings.Replace(server.URL, "http://", "http://admin:secret@", 1) + "/snap.jpg"
	cfg.PollIntervalMillis = 1
	src, err := NewSnapshotSource(cfg)
	require.NoError(t, err)
	assert.NotContains(t, src.endpoint, "secret")

	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	data, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, frame, data)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSnapshotSourceRejectsNonImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer server.Close()

	cfg := testSourceConfig()
	cfg.URL = server.URL
	src, err := NewSnapshotSource(cfg)
	require.NoError(t, err)
	err = src.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JPEG")
}

func TestSnapshotSourceRetriesServerErrors(t *testing.T) {
	frame := testJPEG(t, 10)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(frame)
	}))
	defer server.Close()

	cfg := testSourceConfig()
	cfg.URL = server.URL
	cfg.SnapshotRetryCount = 1
	src, err := NewSnapshotSource(cfg)
	require.NoError(t, err)
	require.NoError(t, src.Open(context.Background()))
	assert.Equal(t, int32(2), hits.Load())
}

func TestSnapshotSourceEnforcesFrameLimit(t *testing.T) {
	frame := testJPEG(t, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(frame)
	}))
	defer server.Close()

	cfg := testSourceConfig()
	cfg.URL = server.URL
	cfg.MaxFrameBytes = 10
	src, err := NewSnapshotSource(cfg)
	require.NoError(t, err)
	err = src.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}
