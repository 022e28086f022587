package preflight

import (
	"context"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/deps"
)

// MinFreeBytes is the free space the staging and storage volumes need.
const MinFreeBytes uint64 = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, dir := range []struct{ name, path string }{
		{"Staging directory", cfg.Paths.StagingDir},
		{"State directory", cfg.Paths.StateDir},
		{"Storage root", cfg.Storage.RootDir},
	} {
		check := CheckDirectoryAccess(dir.name, dir.path)
		results = append(results, check)
		if check.Passed {
			results = append(results, CheckFreeSpace(dir.name+" free space", dir.path, MinFreeBytes))
		}
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromDependency(status))
	}

	results = append(results, CheckLLM(ctx, "Vision model", cfg.LLM, cfg.LLM.VisionModel))
	if strings.TrimSpace(cfg.LLM.PlanModel) != strings.TrimSpace(cfg.LLM.VisionModel) {
		results = append(results, CheckLLM(ctx, "Planning model", cfg.LLM, cfg.LLM.PlanModel))
	}
	return results
}

// CheckSystemDeps resolves the media binaries and reads their versions.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.MediaRequirements(cfg.Media))
	for i := range statuses {
		statuses[i] = deps.ProbeVersion(ctx, statuses[i])
	}
	return statuses
}

// FromDependency converts a dependency status into a check result.
func FromDependency(s deps.Status) Result {
	if !s.Available {
		return Result{Name: s.Name, Passed: s.Optional, Detail: s.Detail}
	}
	detail := s.Command
	if s.Version != "" {
		detail += " (version " + s.Version + ")"
	}
	return Result{Name: s.Name, Passed: true, Detail: detail}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
