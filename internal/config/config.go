package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Source describes the upstream camera and the reconnect policy applied to it.
type Source struct {
	ID                 string `toml:"id"`
	URL                string `toml:"url"`
	Device             string `toml:"device"`
	FFmpegPath         string `toml:"ffmpeg_path"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	ConnectTimeout     int    `toml:"connect_timeout"`
	BackoffBaseSeconds int    `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int    `toml:"backoff_max_seconds"`
	MaxAttempts        int    `toml:"max_attempts"`
	RetryForever       bool   `toml:"retry_forever"`
	Loop               bool   `toml:"loop"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
	SnapshotRetryCount int    `toml:"snapshot_retry_count"`
	MaxFrameBytes      int    `toml:"max_frame_bytes"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Admission configures the frame admission filter and the built-in
// frame-difference motion detector.
type Admission struct {
	WarmupFrames      int     `toml:"warmup_frames"`
	MinScore          float64 `toml:"min_score"`
	MinIntervalMillis int     `toml:"min_interval_ms"`
	PixelThreshold    int     `toml:"pixel_threshold"`
	AreaRatio         float64 `toml:"area_ratio"`
	SampleWidth       int     `toml:"sample_width"`
}

// Detector configures the object detection service and detection filters.
type Detector struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	RetryCount     int      `toml:"retry_count"`
	MinConfidence  float64  `toml:"min_confidence"`
	AllowLabels    []string `toml:"allow_labels"`
	DenyLabels     []string `toml:"deny_labels"`
}

// Describer configures the natural-language description model.
type Describer struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Prompt         string `toml:"prompt"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Suppression configures the label-overlap suppression window.
type Suppression struct {
	Window    int     `toml:"window"`
	Threshold float64 `toml:"threshold"`
}

// Storage configures the storage guardian.
type Storage struct {
	MaxGiB               float64 `toml:"max_gib"`
	RotatePercent        float64 `toml:"rotate_percent"`
	MinRetentionDays     int     `toml:"min_retention_days"`
	CheckEveryEvents     int     `toml:"check_every_events"`
	CheckIntervalSeconds int     `toml:"check_interval_seconds"`
	MinFreeMiB           int     `toml:"min_free_mib"`
}

// Pipeline configures orchestrator timing and artifact output.
type Pipeline struct {
	IdleSleepMillis     int  `toml:"idle_sleep_ms"`
	DrainTimeoutSeconds int  `toml:"drain_timeout_seconds"`
	SaveImages          bool `toml:"save_images"`
	AnnotateImages      bool `toml:"annotate_images"`
	JPEGQuality         int  `toml:"jpeg_quality"`
}

// Notify configures the event hook subscribers. Each subscriber is disabled
// while its address is empty.
type Notify struct {
	QueueSize          int    `toml:"queue_size"`
	RequestTimeout     int    `toml:"request_timeout"`
	NATSURL            string `toml:"nats_url"`
	NATSSubjectPrefix  string `toml:"nats_subject_prefix"`
	MQTTBroker         string `toml:"mqtt_broker"`
	MQTTTopicPrefix    string `toml:"mqtt_topic_prefix"`
	MQTTClientID       string `toml:"mqtt_client_id"`
	MQTTUsername       string `toml:"mqtt_username"`
	MQTTPassword       string `toml:"mqtt_password"`
	MQTTQoS            int    `toml:"mqtt_qos"`
	NtfyTopic          string `toml:"ntfy_topic"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Metrics configures the operational HTTP server.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for vigil.
//
// Configuration sections by subsystem:
//   - Paths: event data, state (database, lock, pid) and log directories
//   - Source: camera address and reconnect policy
//   - Admission: warm-up, score and rate thinning of candidate frames
//   - Detector / Describer: inference collaborators and label filters
//   - Suppression: overlap threshold and window size
//   - Storage: ceiling, rotation threshold and retention floor
//   - Pipeline: idle sleep, drain timeout and image artifacts
//   - Notify: NATS, MQTT and ntfy event hook subscribers
//   - Metrics: operational HTTP bind address
//   - Logging: log format, level, retention and per-component levels
type Config struct {
	Paths       Paths       `toml:"paths"`
	Source      Source      `toml:"source"`
	Admission   Admission   `toml:"admission"`
	Detector    Detector    `toml:"detector"`
	Describer   Describer   `toml:"describer"`
	Suppression Suppression `toml:"suppression"`
	Storage     Storage     `toml:"storage"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Notify      Notify      `toml:"notify"`
	Metrics     Metrics     `toml:"metrics"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg, err := loadFile(resolvedPath, exists)
	if err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

func loadFile(path string, exists bool) (*Config, error) {
	cfg := Default()
	if exists {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vigil.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the event store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "vigil.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vigil.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "vigil.pid")
}

// CeilingBytes converts storage.max_gib to bytes.
func (s Storage) CeilingBytes() int64 {
	return int64(s.MaxGiB * float64(1<<30))
}

// MinFreeBytes converts storage.min_free_mib to bytes.
func (s Storage) MinFreeBytes() uint64 {
	if s.MinFreeMiB <= 0 {
		return 0
	}
	return uint64(s.MinFreeMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
