package config

const (
	defaultConfigPath             = "~/.config/vigil/config.toml"
	defaultDataDir                = "~/.local/share/vigil/events"
	defaultStateDir               = "~/.local/state/vigil"
	defaultLogDir                 = "~/.local/share/vigil/logs"
	defaultSourceID               = "camera-1"
	defaultFFmpegPath             = "ffmpeg"
	defaultPollIntervalMillis     = 500
	defaultConnectTimeout         = 10
	defaultBackoffBaseSeconds     = 1
	defaultBackoffMaxSeconds      = 8
	defaultMaxAttempts            = 5
	defaultReadTimeoutSeconds     = 15
	defaultSnapshotRetryCount     = 1
	defaultMaxFrameBytes          = 8 << 20
	defaultWarmupFrames           = 100
	defaultMinScore               = 0.0
	defaultPixelThreshold         = 25
	defaultAreaRatio              = 0.01
	defaultSampleWidth            = 160
	defaultDetectorURL            = "http://127.0.0.1:8500/detect"
	defaultDetectorTimeoutSeconds = 5
	defaultDetectorRetryCount     = 1
	defaultMinConfidence          = 0.5
	defaultDescriberBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultDescriberModel         = "google/gemini-2.5-flash"
	defaultDescriberPrompt        = "Describe what is happening in this security camera frame in one short sentence."
	defaultDescriberReferer       = "https://github.com/vigil-nvr/vigil"
	defaultDescriberTitle         = "vigil"
	defaultDescriberTimeout       = 10
	defaultSuppressionWindow      = 5
	defaultSuppressionThreshold   = 0.80
	defaultStorageMaxGiB          = 50
	defaultRotatePercent          = 80
	defaultMinRetentionDays       = 7
	defaultCheckEveryEvents       = 100
	defaultCheckIntervalSeconds   = 300
	defaultMinFreeMiB             = 512
	defaultIdleSleepMillis        = 200
	defaultDrainTimeoutSeconds    = 15
	defaultJPEGQuality            = 85
	defaultNotifyQueueSize        = 64
	defaultNotifyRequestTimeout   = 10
	defaultNATSSubjectPrefix      = "vigil.events"
	defaultMQTTTopicPrefix        = "vigil"
	defaultMQTTClientID           = "vigil"
	defaultMQTTQoS                = 1
	defaultDedupWindowSeconds     = 300
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Source: Source{
			ID:                 defaultSourceID,
			FFmpegPath:         defaultFFmpegPath,
			PollIntervalMillis: defaultPollIntervalMillis,
			ConnectTimeout:     defaultConnectTimeout,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
			MaxAttempts:        defaultMaxAttempts,
			ReadTimeoutSeconds: defaultReadTimeoutSeconds,
			SnapshotRetryCount: defaultSnapshotRetryCount,
			MaxFrameBytes:      defaultMaxFrameBytes,
		},
		Admission: Admission{
			WarmupFrames:   defaultWarmupFrames,
			MinScore:       defaultMinScore,
			PixelThreshold: defaultPixelThreshold,
			AreaRatio:      defaultAreaRatio,
			SampleWidth:    defaultSampleWidth,
		},
		Detector: Detector{
			URL:            defaultDetectorURL,
			TimeoutSeconds: defaultDetectorTimeoutSeconds,
			RetryCount:     defaultDetectorRetryCount,
			MinConfidence:  defaultMinConfidence,
		},
		Describer: Describer{
			Enabled:        true,
			BaseURL:        defaultDescriberBaseURL,
			Model:          defaultDescriberModel,
			Prompt:         defaultDescriberPrompt,
			Referer:        defaultDescriberReferer,
			Title:          defaultDescriberTitle,
			TimeoutSeconds: defaultDescriberTimeout,
		},
		Suppression: Suppression{
			Window:    defaultSuppressionWindow,
			Threshold: defaultSuppressionThreshold,
		},
		Storage: Storage{
			MaxGiB:               defaultStorageMaxGiB,
			RotatePercent:        defaultRotatePercent,
			MinRetentionDays:     defaultMinRetentionDays,
			CheckEveryEvents:     defaultCheckEveryEvents,
			CheckIntervalSeconds: defaultCheckIntervalSeconds,
			MinFreeMiB:           defaultMinFreeMiB,
		},
		Pipeline: Pipeline{
			IdleSleepMillis:     defaultIdleSleepMillis,
			DrainTimeoutSeconds: defaultDrainTimeoutSeconds,
			SaveImages:          true,
			AnnotateImages:      true,
			JPEGQuality:         defaultJPEGQuality,
		},
		Notify: Notify{
			QueueSize:          defaultNotifyQueueSize,
			RequestTimeout:     defaultNotifyRequestTimeout,
			NATSSubjectPrefix:  defaultNATSSubjectPrefix,
			MQTTTopicPrefix:    defaultMQTTTopicPrefix,
			MQTTClientID:       defaultMQTTClientID,
			MQTTQoS:            defaultMQTTQoS,
			DedupWindowSeconds: defaultDedupWindowSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
