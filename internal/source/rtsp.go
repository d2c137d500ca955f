package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vigil/internal/config"
	"vigil/internal/deps"
)

const stderrTailBytes = 2048

// RTSPSource decodes an RTSP stream with an ffmpeg child process that writes
// MJPEG frames to stdout at the configured poll rate.
type RTSPSource struct {
	ffmpeg      string
	url         string
	redacted    string
	fps         string
	readTimeout time.Duration
	maxBytes    int

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	frames  chan []byte
	done    chan error
	pending []byte
}

// NewRTSPSource resolves the ffmpeg binary and prepares the decoder command.
func NewRTSPSource(cfg config.Source) (*RTSPSource, error) {
	status := deps.ResolveFFmpeg(cfg.FFmpegPath)
	if !status.Available {
		return nil, fmt.Errorf("rtsp source needs ffmpeg: %s", status.Detail)
	}
	fps := 1000.0 / float64(max(cfg.PollIntervalMillis, 1))
	return &RTSPSource{
		ffmpeg:      status.Command,
		url:         cfg.URL,
		redacted:    RedactURL(cfg.URL),
		fps:         strconv.FormatFloat(fps, 'f', 3, 64),
		readTimeout: seconds(cfg.ReadTimeoutSeconds),
		maxBytes:    cfg.MaxFrameBytes,
	}, nil
}

func (r *RTSPSource) args() []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(strings.ToLower(r.url), "rtsp") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-i", r.url,
		"-an",
		"-vf", "fps="+r.fps,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// Open starts ffmpeg and waits (bounded by ctx) for the first frame, which is
// kept for the next Read.
func (r *RTSPSource) Open(ctx context.Context) error {
	r.Close()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, r.ffmpeg, r.args()...)
	cmd.WaitDelay = 2 * time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("rtsp %s: stdout pipe: %w", r.redacted, err)
	}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("rtsp %s: start ffmpeg: %w", r.redacted, err)
	}

	frames := make(chan []byte, 1)
	done := make(chan error, 1)
	go r.pump(stdout, frames, done, cmd, stderr)

	r.mu.Lock()
	r.cmd, r.cancel, r.frames, r.done = cmd, cancel, frames, done
	r.mu.Unlock()

	select {
	case frame, ok := <-frames:
		if !ok {
			err := <-done
			r.Close()
			return err
		}
		r.mu.Lock()
		r.pending = frame
		r.mu.Unlock()
		return nil
	case <-ctx.Done():
		r.Close()
		return fmt.Errorf("rtsp %s: no frame before connect timeout: %w", r.redacted, ctx.Err())
	}
}

// pump splits stdout into JPEG frames. The channel holds only the newest
// frame so a slow consumer always sees fresh images.
func (r *RTSPSource) pump(stdout io.Reader, frames chan []byte, done chan<- error, cmd *exec.Cmd, stderr *tailBuffer) {
	scanner := bufio.NewScanner(stdout)
	limit := r.maxBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	scanner.Buffer(make([]byte, 0, 256<<10), limit)
	scanner.Split(splitJPEG)
	for scanner.Scan() {
		frame := bytes.Clone(scanner.Bytes())
		select {
		case frames <- frame:
		default:
			select {
			case <-frames:
			default:
			}
			frames <- frame
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	close(frames)
	switch {
	case scanErr != nil:
		done <- fmt.Errorf("rtsp %s: read frames: %w", r.redacted, scanErr)
	case waitErr != nil:
		done <- fmt.Errorf("rtsp %s: ffmpeg exited: %w: %s", r.redacted, waitErr, strings.ReplaceAll(stderr.String(), r.url, r.redacted))
	default:
		done <- fmt.Errorf("rtsp %s: stream ended", r.redacted)
	}
}

// Read returns the newest decoded frame, waiting up to the read timeout.
func (r *RTSPSource) Read(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	frames, done, pending := r.frames, r.done, r.pending
	r.pending = nil
	r.mu.Unlock()
	if pending != nil {
		return pending, nil
	}
	if frames == nil {
		return nil, errors.New("rtsp source not open")
	}
	timer := time.NewTimer(r.readTimeout)
	defer timer.Stop()
	select {
	case frame, ok := <-frames:
		if !ok {
			return nil, <-done
		}
		return frame, nil
	case <-timer.C:
		return nil, fmt.Errorf("rtsp %s: no frame within %s", r.redacted, r.readTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops ffmpeg. Safe to call repeatedly.
func (r *RTSPSource) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cmd, r.cancel, r.frames, r.done, r.pending = nil, nil, nil, nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// splitJPEG is a bufio.SplitFunc yielding one SOI..EOI JPEG per token. Bytes
// before the first SOI marker are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF that could begin the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
