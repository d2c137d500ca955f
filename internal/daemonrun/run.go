package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/preflight"
	"vigil/internal/services"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath enables hot reload of label filters when non-empty.
	ConfigPath    string
	LogLevel      string
	Development   bool
	SkipPreflight bool
}

// PreflightError reports the checks that failed before the loop started.
type PreflightError struct {
	Failed []preflight.Result
}

func (e *PreflightError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return "preflight failed: " + strings.Join(parts, "; ")
}

func (e *PreflightError) Unwrap() error { return services.ErrConfiguration }

// Run starts the vigil daemon and blocks until it stops. The returned error
// maps to the process exit code through services.ExitCode.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "prepare directories", "", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrConfiguration, "daemon", "acquire lock",
			"another vigil daemon instance is already running", nil)
	}
	defer func() { _ = lock.Unlock() }()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vigil-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:           firstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:          cfg.Logging.Format,
		OutputPaths:     []string{"stdout", logPath},
		Development:     opts.Development,
		ComponentLevels: cfg.Logging.ComponentLevels,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vigil.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "vigil-*.log", Exclude: []string{logPath}},
	)

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	rt, err := build(cfg, logger, m)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon startup failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration with 'vigil validate'"),
		)
		return err
	}
	defer rt.close()

	if !opts.SkipPreflight {
		if err := runPreflight(signalCtx, cfg, rt, logger); err != nil {
			return err
		}
	}

	server, err := metrics.Listen(cfg.Metrics.Bind, m, rt.orchestrator, logger)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "listen", cfg.Metrics.Bind, err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	if opts.ConfigPath != "" {
		watcher := config.NewWatcher(opts.ConfigPath, rt.applyConfig, logger)
		go watcher.Run(signalCtx)
	}
	if err := rt.devices.Start(signalCtx); err != nil {
		logger.Debug("device watcher unavailable", logging.Error(err))
	}
	defer rt.devices.Stop()

	go func() {
		<-signalCtx.Done()
		rt.orchestrator.RequestShutdown("signal received")
	}()

	if err := rt.manager.Connect(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("initial connect failed; retrying in the frame loop", logging.Error(err))
	}

	logger.Info("vigil daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String(logging.FieldSource, rt.manager.Redacted()),
		logging.String("lock", cfg.LockPath()),
		logging.String("metrics_addr", server.Addr()),
		logging.String("run_log", logPath),
	)
	runErr := rt.orchestrator.Run(context.Background())
	logger.Info("vigil daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
		logging.Int("exit_code", services.ExitCode(runErr)),
	)
	return runErr
}

func runPreflight(ctx context.Context, cfg *config.Config, rt *runtime, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg, rt.preflightTargets())
	failed := preflight.Failed(results)
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the failing check; 'vigil validate' shows the full report"),
		)
	}
	if len(failed) > 0 {
		return &PreflightError{Failed: failed}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
