package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory and a glob of run logs to prune. Exclude
// lists files that must survive regardless of age, such as the current run
// log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs deletes files matched by targets that were last modified
// more than retentionDays ago and returns how many were removed. Zero or
// negative retention keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := excludedPaths(targets)

	removed := 0
	for _, target := range targets {
		for _, path := range expiredFiles(target, cutoff) {
			if _, ok := keep[path]; ok {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of paths.log_dir"),
					String(FieldImpact, "old run log stays on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("old run logs pruned",
			String(FieldEventType, "log_pruned"),
			Int("files", removed),
			Int("retention_days", retentionDays),
		)
	}
	return removed
}

func excludedPaths(targets []RetentionTarget) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path != "" {
				keep[absPath(path)] = struct{}{}
			}
		}
	}
	return keep
}

// expiredFiles lists regular files in target.Dir matching target.Pattern with
// a modification time before cutoff. Unreadable directories yield nothing.
func expiredFiles(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, absPath(filepath.Join(dir, entry.Name())))
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
