package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeDetector()
	c.normalizeDescriber()
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.URL = strings.TrimSpace(c.Source.URL)
	if c.Source.URL == "" {
		if value, ok := os.LookupEnv("VIGIL_SOURCE_URL"); ok {
			c.Source.URL = strings.TrimSpace(value)
		}
	}
	c.Source.ID = strings.TrimSpace(c.Source.ID)
	if c.Source.ID == "" {
		c.Source.ID = defaultSourceID
	}
	c.Source.Device = strings.TrimSpace(c.Source.Device)
	c.Source.FFmpegPath = strings.TrimSpace(c.Source.FFmpegPath)
	if c.Source.FFmpegPath == "" {
		c.Source.FFmpegPath = defaultFFmpegPath
	}
}

func (c *Config) normalizeDetector() {
	c.Detector.URL = strings.TrimSpace(c.Detector.URL)
	c.Detector.APIKey = strings.TrimSpace(c.Detector.APIKey)
	c.Detector.AllowLabels = normalizeLabels(c.Detector.AllowLabels)
	c.Detector.DenyLabels = normalizeLabels(c.Detector.DenyLabels)
}

func (c *Config) normalizeDescriber() {
	c.Describer.APIKey = strings.TrimSpace(c.Describer.APIKey)
	if c.Describer.APIKey == "" {
		if value, ok := os.LookupEnv("VIGIL_DESCRIBER_API_KEY"); ok {
			c.Describer.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Describer.APIKey = strings.TrimSpace(value)
		}
	}
	c.Describer.BaseURL = strings.TrimSpace(c.Describer.BaseURL)
	if c.Describer.BaseURL == "" {
		c.Describer.BaseURL = defaultDescriberBaseURL
	}
	c.Describer.Model = strings.TrimSpace(c.Describer.Model)
	if c.Describer.Model == "" {
		c.Describer.Model = defaultDescriberModel
	}
	c.Describer.Prompt = strings.TrimSpace(c.Describer.Prompt)
	if c.Describer.Prompt == "" {
		c.Describer.Prompt = defaultDescriberPrompt
	}
	if c.Describer.TimeoutSeconds <= 0 {
		c.Describer.TimeoutSeconds = defaultDescriberTimeout
	}
}

func (c *Config) normalizeNotify() {
	c.Notify.NATSURL = strings.TrimSpace(c.Notify.NATSURL)
	if c.Notify.NATSURL == "" {
		if value, ok := os.LookupEnv("VIGIL_NATS_URL"); ok {
			c.Notify.NATSURL = strings.TrimSpace(value)
		}
	}
	c.Notify.NATSSubjectPrefix = strings.Trim(strings.TrimSpace(c.Notify.NATSSubjectPrefix), ".")
	if c.Notify.NATSSubjectPrefix == "" {
		c.Notify.NATSSubjectPrefix = defaultNATSSubjectPrefix
	}
	c.Notify.MQTTBroker = strings.TrimSpace(c.Notify.MQTTBroker)
	c.Notify.MQTTTopicPrefix = strings.Trim(strings.TrimSpace(c.Notify.MQTTTopicPrefix), "/")
	if c.Notify.MQTTTopicPrefix == "" {
		c.Notify.MQTTTopicPrefix = defaultMQTTTopicPrefix
	}
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.DedupWindowSeconds < 0 {
		c.Notify.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// normalizeLabels lower-cases, trims and de-duplicates label lists while
// preserving first-seen order.
func normalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		normalized := strings.ToLower(strings.TrimSpace(label))
		if normalized == "" || slices.Contains(out, normalized) {
			continue
		}
		out = append(out, normalized)
	}
	return out
}
