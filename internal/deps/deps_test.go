package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeStub(t, present, "#!/bin/sh\nexit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestSourceRequirementsOnlyForRTSP(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"rtsp://cam/stream", 1},
		{"RTSPS://cam/stream", 1},
		{"http://cam/snapshot.jpg", 0},
		{"file:///var/frames", 0},
	}
	for _, tt := range tests {
		if got := len(SourceRequirements(tt.url, "ffmpeg")); got != tt.want {
			t.Fatalf("SourceRequirements(%q) = %d requirements, want %d", tt.url, got, tt.want)
		}
	}
}

func TestResolveFFmpegConfiguredPath(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	writeStub(t, ffmpegPath, "#!/bin/sh\nexit 0\n")

	status := ResolveFFmpeg(ffmpegPath)
	if !status.Available || status.Command != ffmpegPath {
		t.Fatalf("expected configured ffmpeg to resolve, got %#v", status)
	}

	if err := os.Chmod(ffmpegPath, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	status = ResolveFFmpeg(ffmpegPath)
	if status.Available {
		t.Fatal("non-executable configured ffmpeg must not resolve")
	}
}

func TestResolveFFmpegPathFallback(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	writeStub(t, ffmpegPath, "#!/bin/sh\nexit 0\n")
	t.Setenv("PATH", binDir)

	status := ResolveFFmpeg("ffmpeg")
	if !status.Available {
		t.Fatalf("expected ffmpeg fallback to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
}

func TestResolveFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveFFmpeg("")
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffmpeg is unavailable")
	}
}

func TestFFmpegVersion(t *testing.T) {
	ffmpegPath := filepath.Join(t.TempDir(), "ffmpeg")
	writeStub(t, ffmpegPath, "#!/bin/sh\necho 'ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023'\necho 'built with gcc 13'\n")

	version, err := FFmpegVersion(context.Background(), ffmpegPath)
	if err != nil {
		t.Fatalf("FFmpegVersion: %v", err)
	}
	if version != "6.1.1-3ubuntu5" {
		t.Fatalf("unexpected version %q", version)
	}

	if _, err := parseFFmpegVersion("garbage"); err == nil {
		t.Fatal("expected error for unrecognized banner")
	}
}
