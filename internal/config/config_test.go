package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"clipforge/internal/config"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CLIPFORGE_LLM_API_KEY", "DASHSCOPE_API_KEY", "OPENAI_API_KEY", "CLIPFORGE_API_TOKEN", "CLIPFORGE_WEBHOOK_SECRET", "CLIPFORGE_NTFY_TOPIC"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearLLMEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantStaging := filepath.Join(tempHome, ".local", "share", "clipforge", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "clipforge", "clipforge.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LLM.VisionModel != "qwen-vl-plus" || cfg.LLM.PlanModel != "qwen-plus" {
		t.Fatalf("unexpected model defaults: %+v", cfg.LLM)
	}
	if cfg.Workflow.MaxItemsPerJob != 10 || cfg.Workflow.MaxItemDuration != 600 {
		t.Fatalf("unexpected workflow limits: %+v", cfg.Workflow)
	}
	if cfg.Retry.Prepare.MaxAttempts != 4 || cfg.Retry.Prepare.DelaySeconds != 60 {
		t.Fatalf("unexpected prepare retry defaults: %+v", cfg.Retry.Prepare)
	}
}

func TestLoadReadsTOMLOverrides(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[llm]
api_key = "file-key"

[workflow]
worker_count = 2

[retry.analyze]
max_attempts = 5

[quality]
threshold = 0.7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s, got %s exists=%v", path, resolved, exists)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Workflow.WorkerCount != 2 {
		t.Fatalf("worker count = %d", cfg.Workflow.WorkerCount)
	}
	if cfg.Retry.Analyze.MaxAttempts != 5 || cfg.Retry.Analyze.DelaySeconds != 60 {
		t.Fatalf("expected partial retry override to keep default delay, got %+v", cfg.Retry.Analyze)
	}
	if cfg.Quality.Threshold != 0.7 {
		t.Fatalf("threshold = %v", cfg.Quality.Threshold)
	}
}

func TestLoadRejectsWeightsNotSummingToOne(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[quality.weights]
coverage = 0.5
duration_fit = 0.25
diversity = 0.20
priority_quality = 0.15
reasoning = 0.10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "sum to 1.0") {
		t.Fatalf("expected weight sum error, got %v", err)
	}
}

func TestValidateWeights(t *testing.T) {
	if err := config.ValidateWeights(config.Default().Quality.Weights); err != nil {
		t.Fatalf("default weights rejected: %v", err)
	}
	bad := config.QualityWeights{Coverage: -0.1, DurationFit: 0.35, Diversity: 0.35, PriorityQuality: 0.3, Reasoning: 0.1}
	if err := config.ValidateWeights(bad); err == nil {
		t.Fatal("expected negative weight to be rejected")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"items ceiling", func(c *config.Config) { c.Workflow.MaxItemsPerJob = 21 }, "workflow.max_items_per_job"},
		{"worker count", func(c *config.Config) { c.Workflow.WorkerCount = 0 }, "workflow.worker_count"},
		{"threshold", func(c *config.Config) { c.Quality.Threshold = 1.5 }, "quality.threshold"},
		{"profile", func(c *config.Config) { c.Media.CompressionProfile = "lossless" }, "media.compression_profile"},
		{"retry attempts", func(c *config.Config) { c.Retry.Execute.MaxAttempts = 0 }, "retry.execute.max_attempts"},
		{"temp expiry", func(c *config.Config) { c.Storage.TempExpiryHours = 200 }, "storage.temp_expiry_hours"},
		{"provider", func(c *config.Config) { c.LLM.Provider = "grpc" }, "llm.provider"},
		{"webhook", func(c *config.Config) { c.Notifications.WebhookURL = "ftp://host/hook" }, "notifications.webhook_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.RootDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadReadsDotenvWithoutOverridingEnvironment(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envContent := "CLIPFORGE_LLM_API_KEY=from-dotenv\nCLIPFORGE_API_TOKEN=dotenv-token\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envContent), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("CLIPFORGE_API_TOKEN", "from-env")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "from-dotenv" {
		t.Fatalf("expected dotenv api key, got %q", cfg.LLM.APIKey)
	}
	if cfg.Paths.APIToken != "from-env" {
		t.Fatalf("expected environment to win over dotenv, got %q", cfg.Paths.APIToken)
	}
	if _, ok := os.LookupEnv("CLIPFORGE_LLM_API_KEY"); ok && os.Getenv("CLIPFORGE_LLM_API_KEY") == "from-dotenv" {
		t.Fatal("dotenv values must not leak into the process environment")
	}
}

func TestLoadMissingExplicitEnvFileFails(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[paths]\nenv_file = \"" + filepath.ToSlash(filepath.Join(t.TempDir(), "missing.env")) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestRetryForStage(t *testing.T) {
	retry := config.Default().Retry
	stage, ok := retry.ForStage("plan-generate")
	if !ok || !stage.Backoff {
		t.Fatalf("expected plan-generate backoff policy, got %+v ok=%v", stage, ok)
	}
	if _, ok := retry.ForStage("score-gate"); ok {
		t.Fatal("score-gate must not have a retry policy")
	}
}
