package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	EnvFile    string `toml:"env_file"`
}

// LLM contains the inference service connection used by analyze and plan-generate.
type LLM struct {
	Provider        string  `toml:"provider"`
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	VisionModel     string  `toml:"vision_model"`
	PlanModel       string  `toml:"plan_model"`
	Referer         string  `toml:"referer"`
	Title           string  `toml:"title"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	Temperature     float64 `toml:"temperature"`
	MaxPromptTokens int     `toml:"max_prompt_tokens"`
}

// Workflow contains orchestrator sizing, limits, and maintenance intervals.
type Workflow struct {
	WorkerCount         int     `toml:"worker_count"`
	MaxConcurrentJobs   int     `toml:"max_concurrent_jobs"`
	MaxItemsPerJob      int     `toml:"max_items_per_job"`
	MaxItemDuration     float64 `toml:"max_item_duration"`
	MaxTargetDuration   float64 `toml:"max_target_duration"`
	QueuePollInterval   int     `toml:"queue_poll_interval"`
	RetentionHours      int     `toml:"retention_hours"`
	MaintenanceInterval int     `toml:"maintenance_interval"`
}

// RetryStage configures the retry policy of one pipeline stage.
type RetryStage struct {
	MaxAttempts     int     `toml:"max_attempts"`
	DelaySeconds    float64 `toml:"delay_seconds"`
	Backoff         bool    `toml:"backoff"`
	MaxDelaySeconds float64 `toml:"max_delay_seconds"`
}

// Retry holds per-stage retry policies. Aggregate and score-gate are pure and never retry.
type Retry struct {
	Prepare      RetryStage `toml:"prepare"`
	Transform    RetryStage `toml:"transform"`
	Analyze      RetryStage `toml:"analyze"`
	PlanGenerate RetryStage `toml:"plan_generate"`
	Execute      RetryStage `toml:"execute"`
	Finalize     RetryStage `toml:"finalize"`
}

// QualityWeights are the sub-score weights of the quality gate; they must sum to 1.
type QualityWeights struct {
	Coverage        float64 `toml:"coverage"`
	DurationFit     float64 `toml:"duration_fit"`
	Diversity       float64 `toml:"diversity"`
	PriorityQuality float64 `toml:"priority_quality"`
	Reasoning       float64 `toml:"reasoning"`
}

// Quality configures the decision quality gate.
type Quality struct {
	Threshold         float64        `toml:"threshold"`
	PriorityThreshold int            `toml:"priority_threshold"`
	Weights           QualityWeights `toml:"weights"`
}

// Media configures the ffmpeg/ffprobe adapters.
type Media struct {
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
	CompressionProfile    string `toml:"compression_profile"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

// Storage configures the object store holding temporary objects and artifacts.
type Storage struct {
	RootDir         string `toml:"root_dir"`
	PublicBaseURL   string `toml:"public_base_url"`
	TempPrefix      string `toml:"temp_prefix"`
	ArtifactPrefix  string `toml:"artifact_prefix"`
	TempExpiryHours int    `toml:"temp_expiry_hours"`
}

// Notifications contains ntfy and completion webhook settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	WebhookURL     string `toml:"webhook_url"`
	WebhookSecret  string `toml:"webhook_secret"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: staging, state, and log directories plus the API bind address
//   - LLM: inference service used for per-item analysis and plan generation
//   - Workflow: worker pool size, job limits, retention
//   - Retry: per-stage retry policies
//   - Quality: gate threshold and sub-score weights
//   - Media: ffmpeg/ffprobe binaries and compression profile
//   - Storage: object store root and key prefixes
//   - Notifications: ntfy topic and completion webhook
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	Quality       Quality       `toml:"quality"`
	Media         Media         `toml:"media"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	dotenv map[string]string
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.loadDotenv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
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
	projectPath, err := filepath.Abs("clipforge.toml")
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

// loadDotenv reads paths.env_file, or a .env next to the config file, into a
// private lookup table. The process environment is never modified and always
// wins over values from the file.
func (c *Config) loadDotenv(configPath string) error {
	envPath := strings.TrimSpace(c.Paths.EnvFile)
	explicit := envPath != ""
	if !explicit {
		if configPath == "" {
			return nil
		}
		envPath = filepath.Join(filepath.Dir(configPath), ".env")
	}
	expanded, err := expandPath(envPath)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	values, err := godotenv.Read(expanded)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %s: %w", expanded, err)
	}
	c.dotenv = values
	return nil
}

func (c *Config) lookupEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		if value, ok := c.dotenv[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir, c.Storage.RootDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the progress store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "clipforge.db")
}

// SocketPath returns the IPC socket used by the CLI.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "clipforge.sock")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "clipforge.lock")
}

// PIDPath returns the file the daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "clipforge.pid")
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
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
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

// ForStage returns the retry settings of a named stage.
func (r Retry) ForStage(stage string) (RetryStage, bool) {
	switch stage {
	case "prepare":
		return r.Prepare, true
	case "transform":
		return r.Transform, true
	case "analyze":
		return r.Analyze, true
	case "plan-generate":
		return r.PlanGenerate, true
	case "execute":
		return r.Execute, true
	case "finalize":
		return r.Finalize, true
	default:
		return RetryStage{}, false
	}
}

func (r *Retry) stages() map[string]*RetryStage {
	return map[string]*RetryStage{
		"prepare":       &r.Prepare,
		"transform":     &r.Transform,
		"analyze":       &r.Analyze,
		"plan_generate": &r.PlanGenerate,
		"execute":       &r.Execute,
		"finalize":      &r.Finalize,
	}
}

// Sum returns the total of all quality weights.
func (w QualityWeights) Sum() float64 {
	return w.Coverage + w.DurationFit + w.Diversity + w.PriorityQuality + w.Reasoning
}
