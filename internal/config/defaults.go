package config

const (
	defaultConfigPath           = "~/.config/clipforge/config.toml"
	defaultStagingDir           = "~/.local/share/clipforge/staging"
	defaultStateDir             = "~/.local/share/clipforge"
	defaultLogDir               = "~/.local/share/clipforge/logs"
	defaultObjectDir            = "~/.local/share/clipforge/objects"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultLLMProvider          = "http"
	defaultLLMBaseURL           = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultVisionModel          = "qwen-vl-plus"
	defaultPlanModel            = "qwen-plus"
	defaultLLMReferer           = "https://github.com/clipforge/clipforge"
	defaultLLMTitle             = "clipforge"
	defaultLLMTimeoutSeconds    = 120
	defaultLLMTemperature       = 0.3
	defaultMaxPromptTokens      = 6000
	defaultWorkerCount          = 4
	defaultMaxConcurrentJobs    = 1
	defaultMaxItemsPerJob       = 10
	maxItemsPerJobCeiling       = 20
	defaultMaxItemDuration      = 600
	defaultMaxTargetDuration    = 600
	defaultQueuePollInterval    = 5
	defaultRetentionHours       = 168
	defaultMaintenanceInterval  = 3600
	defaultQualityThreshold     = 0.65
	defaultPriorityThreshold    = 5
	defaultCompressionProfile   = "balanced"
	defaultMediaCommandTimeout  = 1800
	defaultTempPrefix           = "tmp"
	defaultArtifactPrefix       = "artifacts"
	defaultTempExpiryHours      = 24
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		LLM: LLM{
			Provider:        defaultLLMProvider,
			BaseURL:         defaultLLMBaseURL,
			VisionModel:     defaultVisionModel,
			PlanModel:       defaultPlanModel,
			Referer:         defaultLLMReferer,
			Title:           defaultLLMTitle,
			TimeoutSeconds:  defaultLLMTimeoutSeconds,
			Temperature:     defaultLLMTemperature,
			MaxPromptTokens: defaultMaxPromptTokens,
		},
		Workflow: Workflow{
			WorkerCount:         defaultWorkerCount,
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
			MaxItemsPerJob:      defaultMaxItemsPerJob,
			MaxItemDuration:     defaultMaxItemDuration,
			MaxTargetDuration:   defaultMaxTargetDuration,
			QueuePollInterval:   defaultQueuePollInterval,
			RetentionHours:      defaultRetentionHours,
			MaintenanceInterval: defaultMaintenanceInterval,
		},
		Retry: Retry{
			Prepare:      RetryStage{MaxAttempts: 4, DelaySeconds: 60},
			Transform:    RetryStage{MaxAttempts: 3, DelaySeconds: 120},
			Analyze:      RetryStage{MaxAttempts: 3, DelaySeconds: 60},
			PlanGenerate: RetryStage{MaxAttempts: 3, DelaySeconds: 5, Backoff: true, MaxDelaySeconds: 60},
			Execute:      RetryStage{MaxAttempts: 3, DelaySeconds: 10, Backoff: true, MaxDelaySeconds: 120},
			Finalize:     RetryStage{MaxAttempts: 3, DelaySeconds: 5, Backoff: true, MaxDelaySeconds: 60},
		},
		Quality: Quality{
			Threshold:         defaultQualityThreshold,
			PriorityThreshold: defaultPriorityThreshold,
			Weights: QualityWeights{
				Coverage:        0.30,
				DurationFit:     0.25,
				Diversity:       0.20,
				PriorityQuality: 0.15,
				Reasoning:       0.10,
			},
		},
		Media: Media{
			FFmpegBinary:          "ffmpeg",
			FFprobeBinary:         "ffprobe",
			CompressionProfile:    defaultCompressionProfile,
			CommandTimeoutSeconds: defaultMediaCommandTimeout,
		},
		Storage: Storage{
			RootDir:         defaultObjectDir,
			TempPrefix:      defaultTempPrefix,
			ArtifactPrefix:  defaultArtifactPrefix,
			TempExpiryHours: defaultTempExpiryHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
