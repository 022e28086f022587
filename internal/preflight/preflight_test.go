package preflight

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/deps"
	"clipforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
	if empty := CheckDirectoryAccess("test", " "); empty.Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a one byte minimum, got: %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, math.MaxUint64)
	if result.Passed || !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected failure naming the requirement, got %+v", result)
	}
	if missing := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); missing.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func healthyLLMServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckLLM(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.BaseURL = healthyLLMServer(t).URL

	result := CheckLLM(context.Background(), "Vision model", cfg.LLM, "qwen-vl-plus")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	bad := cfg.LLM
	bad.APIKey = "wrong"
	if result := CheckLLM(context.Background(), "Vision model", bad, "qwen-vl-plus"); result.Passed {
		t.Fatal("expected failure for rejected key")
	}
	bad.APIKey = ""
	if result := CheckLLM(context.Background(), "Vision model", bad, "qwen-vl-plus"); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
	if result := CheckLLM(context.Background(), "Vision model", cfg.LLM, ""); result.Passed {
		t.Fatal("expected failure without a model")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAllCoversPathsBinariesAndModels(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.LLM.BaseURL = healthyLLMServer(t).URL
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"Staging directory", "State directory", "Storage root", "FFmpeg", "FFprobe", "Vision model"} {
		r, ok := byName[name]
		if !ok {
			t.Fatalf("missing check %q in %v", name, results)
		}
		if !r.Passed {
			t.Fatalf("check %q failed: %s", name, r.Detail)
		}
	}
	if cfg.LLM.PlanModel != cfg.LLM.VisionModel {
		if _, ok := byName["Planning model"]; !ok {
			t.Fatal("expected a planning model check for a distinct model")
		}
	}
}

func TestFromDependency(t *testing.T) {
	ok := FromDependency(deps.Status{Name: "FFmpeg", Command: "/usr/bin/ffmpeg", Available: true, Version: "6.1"})
	if !ok.Passed || ok.Detail != "/usr/bin/ffmpeg (version 6.1)" {
		t.Fatalf("unexpected result: %+v", ok)
	}
	optional := FromDependency(deps.Status{Name: "extra", Optional: true, Detail: "missing"})
	if !optional.Passed {
		t.Fatal("optional dependencies never fail preflight")
	}
	missing := FromDependency(deps.Status{Name: "FFprobe", Detail: `binary "ffprobe" not found`})
	if missing.Passed {
		t.Fatal("expected required dependency failure")
	}
	if got := Failed([]Result{ok, missing}); len(got) != 1 || got[0].Name != "FFprobe" {
		t.Fatalf("unexpected failed list: %+v", got)
	}
}
