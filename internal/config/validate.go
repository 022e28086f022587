package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
)

// weightTolerance bounds floating point drift when checking that weights sum to 1.
const weightTolerance = 1e-6

var compressionProfiles = map[string]struct{}{
	"aggressive":   {},
	"balanced":     {},
	"conservative": {},
	"dynamic":      {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "http", "openai":
	default:
		return fmt.Errorf("llm.provider must be one of http, openai (got %q)", c.LLM.Provider)
	}
	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("llm.base_url is not a valid URL: %w", err)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxPromptTokens < 256 {
		return errors.New("llm.max_prompt_tokens must be at least 256")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.worker_count":         c.Workflow.WorkerCount,
		"workflow.max_concurrent_jobs":  c.Workflow.MaxConcurrentJobs,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.retention_hours":      c.Workflow.RetentionHours,
		"workflow.maintenance_interval": c.Workflow.MaintenanceInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxItemsPerJob < 1 || c.Workflow.MaxItemsPerJob > maxItemsPerJobCeiling {
		return fmt.Errorf("workflow.max_items_per_job must be between 1 and %d", maxItemsPerJobCeiling)
	}
	if c.Workflow.MaxItemDuration <= 0 {
		return errors.New("workflow.max_item_duration must be positive (seconds)")
	}
	if c.Workflow.MaxTargetDuration <= 0 {
		return errors.New("workflow.max_target_duration must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateRetry() error {
	stages := c.Retry.stages()
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stage := stages[name]
		if stage.MaxAttempts < 1 {
			return fmt.Errorf("retry.%s.max_attempts must be at least 1", name)
		}
		if stage.DelaySeconds < 0 {
			return fmt.Errorf("retry.%s.delay_seconds must be >= 0", name)
		}
		if stage.MaxDelaySeconds < 0 {
			return fmt.Errorf("retry.%s.max_delay_seconds must be >= 0", name)
		}
		if stage.Backoff && stage.MaxDelaySeconds > 0 && stage.MaxDelaySeconds < stage.DelaySeconds {
			return fmt.Errorf("retry.%s.max_delay_seconds must be >= delay_seconds", name)
		}
	}
	return nil
}

func (c *Config) validateQuality() error {
	if c.Quality.Threshold < 0 || c.Quality.Threshold > 1 {
		return errors.New("quality.threshold must be between 0 and 1")
	}
	if c.Quality.PriorityThreshold < 0 || c.Quality.PriorityThreshold > 10 {
		return errors.New("quality.priority_threshold must be between 0 and 10")
	}
	return ValidateWeights(c.Quality.Weights)
}

// ValidateWeights checks each weight lies in [0,1] and that they sum to 1.
func ValidateWeights(w QualityWeights) error {
	for name, value := range map[string]float64{
		"coverage":         w.Coverage,
		"duration_fit":     w.DurationFit,
		"diversity":        w.Diversity,
		"priority_quality": w.PriorityQuality,
		"reasoning":        w.Reasoning,
	} {
		if value < 0 || value > 1 || math.IsNaN(value) {
			return fmt.Errorf("quality.weights.%s must be between 0 and 1", name)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("quality.weights must sum to 1.0 (got %.6f)", sum)
	}
	return nil
}

func (c *Config) validateMedia() error {
	if _, ok := compressionProfiles[c.Media.CompressionProfile]; !ok {
		return fmt.Errorf("media.compression_profile must be one of aggressive, balanced, conservative, dynamic (got %q)", c.Media.CompressionProfile)
	}
	if c.Media.CommandTimeoutSeconds <= 0 {
		return errors.New("media.command_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.RootDir) == "" {
		return errors.New("storage.root_dir must be set")
	}
	if c.Storage.TempPrefix == c.Storage.ArtifactPrefix {
		return errors.New("storage.temp_prefix and storage.artifact_prefix must differ")
	}
	if c.Storage.TempExpiryHours < 1 || c.Storage.TempExpiryHours > 168 {
		return errors.New("storage.temp_expiry_hours must be between 1 and 168")
	}
	if c.Storage.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Storage.PublicBaseURL); err != nil {
			return fmt.Errorf("storage.public_base_url is not a valid URL: %w", err)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.WebhookURL != "" && !IsHTTPURL(c.Notifications.WebhookURL) {
		return errors.New("notifications.webhook_url must start with http:// or https://")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

// IsHTTPURL reports whether value is an absolute http(s) URL.
func IsHTTPURL(value string) bool {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return false
	}
	parsed, err := url.Parse(value)
	return err == nil && parsed.Host != ""
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
