package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"vigil/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// ComponentLevels overrides the minimum level for loggers tagged with a
	// given component (see NewComponentLogger).
	ComponentLevels map[string]string
	// NoColor disables ANSI colour even when a console output is a terminal.
	NoColor bool
}

// New constructs a slog logger using the provided options. Every output gets
// its own handler so terminal colour never leaks into log files.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	overrides := parseOverrides(opts.ComponentLevels)

	// Inner handlers run at the most verbose level any component needs; the
	// override handler applies the effective per-component threshold.
	floor := level
	for _, lvl := range overrides {
		if lvl < floor {
			floor = lvl
		}
	}
	floorVar := new(slog.LevelVar)
	floorVar.Set(floor)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	outputs, err := openWriters(defaultSlice(opts.OutputPaths, []string{"stdout"}))
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug
	handlers := make([]slog.Handler, 0, len(outputs))
	for _, out := range outputs {
		switch format {
		case "json":
			handlers = append(handlers, newJSONHandler(out.writer, floorVar, addSource))
		default:
			color := out.terminal && !opts.NoColor
			handlers = append(handlers, newPrettyHandler(out.writer, floorVar, addSource, color))
		}
	}

	handler := newFanoutHandler(handlers...)
	return slog.New(newLevelOverrideHandler(handler, level, overrides)), nil
}

// NewFromConfig creates a logger using application config defaults. When
// runLogPath is non-empty the run log receives a copy of every line.
func NewFromConfig(cfg *config.Config, runLogPath string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", OutputPaths: []string{"stdout"}})
	}

	outputPaths := []string{"stdout"}
	if path := strings.TrimSpace(runLogPath); path != "" {
		outputPaths = append(outputPaths, path)
	}

	return New(Options{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		OutputPaths:     outputPaths,
		ComponentLevels: cfg.Logging.ComponentLevels,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func parseOverrides(values map[string]string) map[string]slog.Level {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]slog.Level, len(values))
	for component, lvl := range values {
		name := strings.TrimSpace(component)
		if name == "" {
			continue
		}
		out[name] = parseLevel(lvl)
	}
	return out
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		cp := make([]string, len(fallback))
		copy(cp, fallback)
		return cp
	}
	cp := make([]string, len(value))
	copy(cp, value)
	return cp
}

type output struct {
	writer   io.Writer
	terminal bool
}

func openWriters(paths []string) ([]output, error) {
	seen := map[string]struct{}{}
	var outputs []output

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			outputs = append(outputs, output{writer: os.Stdout, terminal: isTerminal(os.Stdout)})
		case "stderr":
			outputs = append(outputs, output{writer: os.Stderr, terminal: isTerminal(os.Stderr)})
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			outputs = append(outputs, output{writer: file})
		}
	}

	if len(outputs) == 0 {
		outputs = append(outputs, output{writer: os.Stdout, terminal: isTerminal(os.Stdout)})
	}
	return outputs, nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newJSONHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "msg"
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	}
	return slog.NewJSONHandler(w, &opts)
}
