package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ResolveFFmpeg reports the FFmpeg binary the RTSP source will execute.
//
// An explicitly configured path wins. A bare "ffmpeg" prefers a binary sitting
// next to the vigil executable (static bundles ship it that way) and falls
// back to PATH.
func ResolveFFmpeg(configured string) Status {
	result := Status{Requirement: ffmpegRequirement}

	name := strings.TrimSpace(configured)
	if name == "" {
		name = executableName("ffmpeg")
	}

	if strings.ContainsRune(name, os.PathSeparator) {
		info, err := os.Stat(name)
		if err != nil || !isExecutable(info) {
			result.Command = name
			result.Detail = fmt.Sprintf("configured ffmpeg %q is not executable", name)
			return result
		}
		result.Command = name
		result.Available = true
		return result
	}

	if self, err := os.Executable(); err == nil {
		if candidate, ok := sidecarCandidate(self, name); ok {
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = name
	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

// FFmpegVersion runs "ffmpeg -version" and returns the version token from the
// banner, e.g. "6.1.1".
func FFmpegVersion(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", command, err)
	}
	return parseFFmpegVersion(string(out))
}

func parseFFmpegVersion(output string) (string, error) {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			return fields[i+1], nil
		}
	}
	return "", fmt.Errorf("unrecognized ffmpeg version banner %q", strings.TrimSpace(line))
}

func sidecarCandidate(selfPath, name string) (string, bool) {
	if selfPath == "" {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(selfPath); err == nil {
		selfPath = resolved
	}
	return filepath.Join(filepath.Dir(selfPath), name), true
}

func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
