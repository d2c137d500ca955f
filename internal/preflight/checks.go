package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vigil/internal/config"
	"vigil/internal/deps"
	"vigil/internal/source"
	"vigil/internal/storage"
)

const (
	sourceCheckTimeout = 15 * time.Second
	healthCheckTimeout = 10 * time.Second
)

// CheckSource verifies the camera answers. RTSP addresses get an OPTIONS
// handshake; other sources are opened and must deliver one frame.
func CheckSource(ctx context.Context, cfg config.Source, src source.Source) Result {
	const name = "Source"
	redacted := source.RedactURL(cfg.URL)
	if strings.TrimSpace(cfg.URL) == "" {
		return Result{Name: name, Detail: "url not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, sourceCheckTimeout)
	defer cancel()

	if u, err := url.Parse(cfg.URL); err == nil && strings.HasPrefix(strings.ToLower(u.Scheme), "rtsp") {
		timeout := time.Duration(cfg.ConnectTimeout) * time.Second
		if err := source.ProbeRTSP(checkCtx, cfg.URL, timeout); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", redacted, summarizeError(err))}
		}
		return Result{Name: name, Passed: true, Detail: redacted + " (RTSP OPTIONS ok)"}
	}

	if src == nil {
		return Result{Name: name, Detail: redacted + " (source not constructed)"}
	}
	if err := src.Open(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (connect failed: %s)", redacted, summarizeError(err))}
	}
	defer src.Close()
	frame, err := src.Read(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no frame: %s)", redacted, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (frame %s)", redacted, humanize.IBytes(uint64(len(frame))))}
}

// CheckSourceDeps reports the external binaries the configured source needs.
func CheckSourceDeps(cfg config.Source) []Result {
	statuses := deps.CheckBinaries(deps.SourceRequirements(cfg.URL, cfg.FFmpegPath))
	results := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		r := Result{Name: st.Name, Passed: st.Available, Detail: st.Command}
		if !st.Available {
			r.Detail = st.Detail
		}
		results = append(results, r)
	}
	return results
}

// CheckDetector calls the detection service health endpoint.
func CheckDetector(ctx context.Context, hc HealthChecker) Result {
	const name = "Detector"
	if hc == nil {
		return Result{Name: name, Detail: "detector not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := hc.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "service reachable"}
}

// CheckDescriber verifies the description API is reachable and the key is
// valid. A disabled describer passes.
func CheckDescriber(ctx context.Context, cfg config.Describer, hc HealthChecker) Result {
	const name = "Describer"
	if !cfg.Enabled {
		return Result{Name: name, Passed: true, Detail: "disabled (fallback descriptions)"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	if hc == nil {
		return Result{Name: name, Detail: "describer not constructed"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 3*healthCheckTimeout)
	defer cancel()
	if err := hc.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable (" + cfg.Model + ")"}
}

// CheckStore pings the event database.
func CheckStore(ctx context.Context, p Pinger) Result {
	const name = "Event store"
	if p == nil {
		return Result{Name: name, Detail: "store not open"}
	}
	if err := p.Ping(ctx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckStorage reports usage against the ceiling and filesystem headroom.
func CheckStorage(g *storage.Guardian) Result {
	const name = "Storage"
	if g == nil {
		return Result{Name: name, Detail: "guardian not constructed"}
	}
	stats, err := g.CheckUsage()
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	usage := fmt.Sprintf("%s of %s (%.1f%%)",
		humanize.IBytes(uint64(stats.TotalBytes)), humanize.IBytes(uint64(stats.CeilingBytes)), stats.Percent)
	if stats.OverLimit {
		return Result{Name: name, Detail: usage + ", over the ceiling"}
	}
	if !g.HeadroomOK(stats) {
		return Result{Name: name, Detail: fmt.Sprintf("%s, only %s free on the filesystem", usage, humanize.IBytes(stats.FreeBytes))}
	}
	return Result{Name: name, Passed: true, Detail: usage}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError produces a short human-readable reason.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
