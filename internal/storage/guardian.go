package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/services"
)

const trashPrefix = ".trash-"

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Shard describes one day directory.
type Shard struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

// Stats is one usage measurement. It is never cached beyond the check that
// produced it.
type Stats struct {
	TotalBytes   int64   `json:"total_bytes"`
	CeilingBytes int64   `json:"ceiling_bytes"`
	Percent      float64 `json:"percent"`
	OverLimit    bool    `json:"over_limit"`
	Shards       []Shard `json:"shards"`
	FreeBytes    uint64  `json:"fs_free_bytes"`
	FSTotalBytes uint64  `json:"fs_total_bytes"`
}

// Option customizes a Guardian.
type Option func(*Guardian)

// WithClock replaces time.Now when deciding which shard is current.
func WithClock(now func() time.Time) Option {
	return func(g *Guardian) {
		if now != nil {
			g.now = now
		}
	}
}

// WithOnRotate registers a callback run after each shard is deleted, used to
// purge that day's rows from the event store.
func WithOnRotate(fn func(ctx context.Context, shard string) error) Option {
	return func(g *Guardian) { g.onRotate = fn }
}

// WithObserver registers a callback receiving every measurement.
func WithObserver(fn func(Stats)) Option {
	return func(g *Guardian) { g.observe = fn }
}

func withStatfs(fn statfsFunc) Option {
	return func(g *Guardian) { g.statfs = fn }
}

// Guardian measures and rotates the data root.
type Guardian struct {
	root          string
	ceiling       int64
	rotatePercent float64
	minRetention  int
	minFree       uint64
	logger        *slog.Logger
	now           func() time.Time
	statfs        statfsFunc
	onRotate      func(ctx context.Context, shard string) error
	observe       func(Stats)

	mu sync.Mutex
}

// NewGuardian builds a guardian for cfg.Paths.DataDir.
func NewGuardian(dataDir string, cfg config.Storage, logger *slog.Logger, opts ...Option) (*Guardian, error) {
	root := strings.TrimSpace(dataDir)
	if root == "" {
		return nil, errors.New("storage guardian requires a data directory")
	}
	if cfg.CeilingBytes() <= 0 {
		return nil, errors.New("storage ceiling must be positive")
	}
	g := &Guardian{
		root:          root,
		ceiling:       cfg.CeilingBytes(),
		rotatePercent: cfg.RotatePercent,
		minRetention:  max(cfg.MinRetentionDays, 1),
		minFree:       cfg.MinFreeBytes(),
		logger:        logging.NewComponentLogger(logger, "storage"),
		now:           time.Now,
		statfs:        realStatfs,
	}
	if g.rotatePercent <= 0 || g.rotatePercent > 100 {
		g.rotatePercent = 80
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Root returns the data directory.
func (g *Guardian) Root() string {
	return g.root
}

// CheckUsage measures the data root.
func (g *Guardian) CheckUsage() (Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.measureLocked()
}

// IsOverLimit measures and reports whether usage is at or above the ceiling.
func (g *Guardian) IsOverLimit() bool {
	stats, err := g.CheckUsage()
	if err != nil {
		g.logger.Debug("usage check failed", logging.Error(err))
		return false
	}
	return stats.OverLimit
}

// HeadroomOK reports whether the filesystem keeps the configured free space.
func (g *Guardian) HeadroomOK(stats Stats) bool {
	return g.minFree == 0 || stats.FSTotalBytes == 0 || stats.FreeBytes >= g.minFree
}

// Rotate deletes the oldest shards until usage is below the rotation
// threshold or the retention floor is reached.
func (g *Guardian) Rotate(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotateLocked(ctx)
}

// Check runs one measure-and-rotate cycle. It returns an error wrapping
// ErrStorageExhausted when usage is still at or above the ceiling after
// rotation.
func (g *Guardian) Check(ctx context.Context) (Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.purgeTrashLocked()
	stats, err := g.measureLocked()
	if err != nil {
		return stats, err
	}
	if stats.Percent >= g.rotatePercent {
		logging.WarnWithContext(g.logger, "storage usage above rotation threshold", "storage_rotation_needed",
			logging.Int64("total_bytes", stats.TotalBytes),
			logging.Int64("ceiling_bytes", stats.CeilingBytes),
			logging.Float64("percent", stats.Percent),
			logging.String(logging.FieldErrorHint, "raise storage.max_gib or lower storage.min_retention_days"),
			logging.String(logging.FieldImpact, "oldest day directories will be deleted"),
		)
		if _, err := g.rotateLocked(ctx); err != nil {
			return stats, err
		}
		if stats, err = g.measureLocked(); err != nil {
			return stats, err
		}
	}
	if stats.OverLimit {
		logging.ErrorWithContext(g.logger, "storage ceiling reached and nothing left to rotate", "storage_exhausted",
			logging.Int64("total_bytes", stats.TotalBytes),
			logging.Int64("ceiling_bytes", stats.CeilingBytes),
			logging.Int("shards", len(stats.Shards)),
			logging.String(logging.FieldErrorHint, "free disk space or raise storage.max_gib"),
			logging.String(logging.FieldImpact, "recording stops"),
		)
		return stats, services.Wrap(services.ErrStorageExhausted, "storage", "check",
			fmt.Sprintf("%d of %d bytes used", stats.TotalBytes, stats.CeilingBytes), nil)
	}
	return stats, nil
}

func (g *Guardian) measureLocked() (Stats, error) {
	stats := Stats{CeilingBytes: g.ceiling}
	total, err := treeSize(g.root)
	if err != nil {
		return stats, fmt.Errorf("storage: measure %s: %w", g.root, err)
	}
	shards, err := g.shards()
	if err != nil {
		return stats, err
	}
	stats.TotalBytes = total
	stats.Shards = shards
	stats.Percent = float64(total) / float64(g.ceiling) * 100
	stats.OverLimit = total >= g.ceiling
	if fsTotal, free, err := g.statfs(g.root); err == nil {
		stats.FSTotalBytes, stats.FreeBytes = fsTotal, free
	} else {
		g.logger.Debug("statfs failed", logging.Error(err))
	}
	if g.observe != nil {
		g.observe(stats)
	}
	return stats, nil
}

func (g *Guardian) rotateLocked(ctx context.Context) (int64, error) {
	current := g.now().UTC().Format(event.ShardLayout)
	var freed int64
	for {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		total, err := treeSize(g.root)
		if err != nil {
			return freed, fmt.Errorf("storage: measure %s: %w", g.root, err)
		}
		if float64(total)/float64(g.ceiling)*100 < g.rotatePercent {
			return freed, nil
		}
		shards, err := g.shards()
		if err != nil {
			return freed, err
		}
		if len(shards) <= g.minRetention {
			g.logger.Info("rotation stopped at retention floor",
				logging.String(logging.FieldEventType, "storage_rotation_floor"),
				logging.Int("shards", len(shards)),
				logging.Int("min_retention_days", g.minRetention),
			)
			return freed, nil
		}
		oldest := shards[0]
		if oldest.Name >= current {
			return freed, nil
		}
		if err := g.removeShard(oldest.Name); err != nil {
			return freed, err
		}
		freed += oldest.Bytes
		g.logger.Info("rotated shard",
			logging.String(logging.FieldEventType, "storage_shard_rotated"),
			logging.Shard(oldest.Name),
			logging.Int64("bytes", oldest.Bytes),
		)
		if g.onRotate != nil {
			if err := g.onRotate(ctx, oldest.Name); err != nil {
				logging.WarnWithContext(g.logger, "rotated shard cleanup callback failed", "storage_rotate_callback_failed",
					logging.Shard(oldest.Name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run 'vigil storage check' after resolving the store error"),
					logging.String(logging.FieldImpact, "store may list events whose files were deleted"),
				)
			}
		}
	}
}

// removeShard renames the shard out of the way before deleting it.
func (g *Guardian) removeShard(name string) error {
	path := filepath.Join(g.root, name)
	trash := filepath.Join(g.root, trashPrefix+name+"-"+strconv.FormatInt(g.now().UnixNano(), 10))
	if err := os.Rename(path, trash); err != nil {
		return fmt.Errorf("storage: stage %s for removal: %w", name, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return fmt.Errorf("storage: remove %s: %w", name, err)
	}
	return nil
}

func (g *Guardian) purgeTrashLocked() {
	entries, err := os.ReadDir(g.root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), trashPrefix) {
			continue
		}
		path := filepath.Join(g.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logging.WarnWithContext(g.logger, "failed to purge leftover trash", "storage_trash_purge_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data directory permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}
}

// shards lists day directories in lexicographic (chronological) order.
func (g *Guardian) shards() ([]Shard, error) {
	entries, err := os.ReadDir(g.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", g.root, err)
	}
	shards := make([]Shard, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !IsShardName(entry.Name()) {
			continue
		}
		size, err := treeSize(filepath.Join(g.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: measure shard %s: %w", entry.Name(), err)
		}
		shards = append(shards, Shard{Name: entry.Name(), Bytes: size})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Name < shards[j].Name })
	return shards, nil
}

// IsShardName reports whether name is a YYYY-MM-DD day directory.
func IsShardName(name string) bool {
	if len(name) != len(event.ShardLayout) {
		return false
	}
	_, err := time.Parse(event.ShardLayout, name)
	return err == nil
}

// treeSize sums regular file sizes under root. Files vanishing mid-walk are
// ignored; a missing root is empty.
func treeSize(root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
