package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if err := c.validateSuppression(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSource() error {
	if c.Source.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("source.url is required. Set VIGIL_SOURCE_URL or edit %s (create with 'vigil config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Source.URL)
	if err != nil {
		return fmt.Errorf("source.url is not a valid URL: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "file", "rtsp", "rtsps":
	default:
		return fmt.Errorf("source.url scheme %q is not supported (use http, https, rtsp, rtsps or file)", parsed.Scheme)
	}
	if err := ensurePositiveMap(map[string]int{
		"source.poll_interval_ms":     c.Source.PollIntervalMillis,
		"source.connect_timeout":      c.Source.ConnectTimeout,
		"source.backoff_base_seconds": c.Source.BackoffBaseSeconds,
		"source.backoff_max_seconds":  c.Source.BackoffMaxSeconds,
		"source.max_attempts":         c.Source.MaxAttempts,
		"source.read_timeout_seconds": c.Source.ReadTimeoutSeconds,
		"source.max_frame_bytes":      c.Source.MaxFrameBytes,
	}); err != nil {
		return err
	}
	if c.Source.BackoffMaxSeconds < c.Source.BackoffBaseSeconds {
		return errors.New("source.backoff_max_seconds must be >= source.backoff_base_seconds")
	}
	if c.Source.SnapshotRetryCount < 0 {
		return errors.New("source.snapshot_retry_count must be >= 0")
	}
	return nil
}

func (c *Config) validateAdmission() error {
	a := c.Admission
	if a.WarmupFrames < 0 {
		return errors.New("admission.warmup_frames must be >= 0")
	}
	if a.MinScore < 0 || a.MinScore > 1 {
		return errors.New("admission.min_score must be between 0 and 1")
	}
	if a.MinIntervalMillis < 0 {
		return errors.New("admission.min_interval_ms must be >= 0")
	}
	if a.PixelThreshold < 0 || a.PixelThreshold > 255 {
		return errors.New("admission.pixel_threshold must be between 0 and 255")
	}
	if a.AreaRatio <= 0 || a.AreaRatio > 1 {
		return errors.New("admission.area_ratio must be greater than 0 and at most 1")
	}
	if a.SampleWidth < 8 {
		return errors.New("admission.sample_width must be at least 8")
	}
	return nil
}

func (c *Config) validateInference() error {
	if c.Detector.URL == "" {
		return errors.New("detector.url is required")
	}
	if c.Detector.TimeoutSeconds <= 0 {
		return errors.New("detector.timeout_seconds must be positive")
	}
	if c.Detector.RetryCount < 0 {
		return errors.New("detector.retry_count must be >= 0")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	var both []string
	for _, label := range c.Detector.AllowLabels {
		if slices.Contains(c.Detector.DenyLabels, label) {
			both = append(both, label)
		}
	}
	if len(both) > 0 {
		sort.Strings(both)
		return fmt.Errorf("detector labels %s appear in both allow_labels and deny_labels", strings.Join(both, ", "))
	}
	if c.Describer.Enabled && c.Describer.APIKey == "" {
		return errors.New("describer.api_key must be set when describer.enabled is true (or set VIGIL_DESCRIBER_API_KEY)")
	}
	return nil
}

func (c *Config) validateSuppression() error {
	if c.Suppression.Window <= 0 {
		return errors.New("suppression.window must be positive")
	}
	if c.Suppression.Threshold <= 0 || c.Suppression.Threshold > 1 {
		return errors.New("suppression.threshold must be greater than 0 and at most 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.MaxGiB <= 0 {
		return errors.New("storage.max_gib must be positive")
	}
	if c.Storage.RotatePercent <= 0 || c.Storage.RotatePercent > 100 {
		return errors.New("storage.rotate_percent must be greater than 0 and at most 100")
	}
	if c.Storage.MinFreeMiB < 0 {
		return errors.New("storage.min_free_mib must be >= 0")
	}
	// 0 turns off the timed check; the every-N-events check still runs.
	if c.Storage.CheckIntervalSeconds < 0 {
		return errors.New("storage.check_interval_seconds must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"storage.min_retention_days": c.Storage.MinRetentionDays,
		"storage.check_every_events": c.Storage.CheckEveryEvents,
	})
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.idle_sleep_ms":         c.Pipeline.IdleSleepMillis,
		"pipeline.drain_timeout_seconds": c.Pipeline.DrainTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		return errors.New("pipeline.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if err := ensurePositiveMap(map[string]int{
		"notify.queue_size":      c.Notify.QueueSize,
		"notify.request_timeout": c.Notify.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Notify.MQTTQoS < 0 || c.Notify.MQTTQoS > 2 {
		return errors.New("notify.mqtt_qos must be 0, 1 or 2")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
