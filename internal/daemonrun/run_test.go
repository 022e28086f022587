package daemonrun

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"clipforge/internal/logging"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

func TestBuildStagesConfiguresEveryStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	set, err := BuildStages(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("BuildStages: %v", err)
	}
	mgr, err := workflow.NewManager(cfg, store, logging.NewNop(), workflow.WithJobLogs(false))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.ConfigureStages(set); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	if _, ok := set.Finalizer.(workflow.TempSweeper); !ok {
		t.Fatal("expected finalizer to sweep temporary objects")
	}
}

func TestBuildStagesRejectsUnknownProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.Provider = "carrier-pigeon"
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := BuildStages(cfg, store, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestPruneRunLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	var newest string
	for i := 0; i < keepRunLogs+3; i++ {
		newest = filepath.Join(dir, fmt.Sprintf("clipforge-20260101T0000%02d.000Z.log", i))
		if err := os.WriteFile(newest, []byte("x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	pruneRunLogs(logging.NewNop(), dir, newest)

	matches, _ := filepath.Glob(filepath.Join(dir, "clipforge-*.log"))
	if len(matches) != keepRunLogs {
		t.Fatalf("expected %d logs, got %d", keepRunLogs, len(matches))
	}
	if _, err := os.Stat(filepath.Join(dir, "clipforge-20260101T000000.000Z.log")); !os.IsNotExist(err) {
		t.Fatal("expected oldest log to be pruned")
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "clipforge-run.log")
	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	current := filepath.Join(dir, "clipforge.log")
	for range 2 {
		if err := ensureCurrentLogPointer(current, target); err != nil {
			t.Fatalf("ensureCurrentLogPointer: %v", err)
		}
	}
	data, err := os.ReadFile(current)
	if err != nil || string(data) != "hello\n" {
		t.Fatalf("expected pointer to resolve to run log, got %q %v", data, err)
	}
}
