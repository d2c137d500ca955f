package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"vigil/internal/config"
)

// ReplaySource plays back a directory of JPEG files in name order. It stands
// in for a camera in tests and when re-processing recorded footage.
type ReplaySource struct {
	dir      string
	loop     bool
	interval time.Duration

	files []string
	next  int
	last  time.Time
}

// NewReplaySource resolves the directory named by a file:// URL.
func NewReplaySource(cfg config.Source) (*ReplaySource, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse replay url: %w", err)
	}
	dir := parsed.Path
	if parsed.Host != "" && parsed.Host != "localhost" {
		dir = filepath.Join(parsed.Host, parsed.Path)
	}
	if dir == "" {
		return nil, fmt.Errorf("replay url %q has no path", cfg.URL)
	}
	return &ReplaySource{
		dir:      filepath.Clean(dir),
		loop:     cfg.Loop,
		interval: millis(cfg.PollIntervalMillis),
	}, nil
}

// Open scans the directory. A path naming a single file replays that file.
func (r *ReplaySource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(r.dir)
	if err != nil {
		return fmt.Errorf("replay source: %w", err)
	}
	if !info.IsDir() {
		r.files = []string{r.dir}
		r.next = 0
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("replay source: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(r.dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("replay source: no .jpg files in %s", r.dir)
	}
	sort.Strings(files)
	r.files = files
	r.next = 0
	return nil
}

// Read returns the next file, or ErrExhausted once every file was played and
// looping is disabled.
func (r *ReplaySource) Read(ctx context.Context) ([]byte, error) {
	if len(r.files) == 0 {
		return nil, fmt.Errorf("replay source not open")
	}
	if r.next >= len(r.files) {
		if !r.loop {
			return nil, ErrExhausted
		}
		r.next = 0
	}
	if err := pace(ctx, r.last, r.interval); err != nil {
		return nil, err
	}
	path := r.files[r.next]
	r.next++
	r.last = time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay frame: %w", err)
	}
	return data, nil
}

// Close forgets the scanned file list.
func (r *ReplaySource) Close() error {
	r.files = nil
	return nil
}
