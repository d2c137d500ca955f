package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/event"
)

// WriteShardFile drops a file of exactly size bytes into the day shard for
// day under the configured events directory and returns its path. Storage
// tests use it to give shards a known footprint.
func WriteShardFile(t testing.TB, cfg *config.Config, day time.Time, name string, size int) string {
	t.Helper()

	dir := filepath.Join(cfg.Paths.DataDir, day.UTC().Format(event.ShardLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create shard %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{'v'}, max(size, 0)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
