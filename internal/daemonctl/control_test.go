package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/daemonctl"
	"clipforge/internal/ipc"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.APIBind = ""
	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg
}

func serveDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr, err := workflow.NewManager(cfg, store, logger, workflow.WithJobLogs(false))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.ConfigureStages(testsupport.NoopStages()); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return d
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := newConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	testsupport.NewJob(t, store, "job-a", 2)
	testsupport.NewJob(t, store, "job-b", 1)
	store.Close()

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Running {
		t.Fatal("expected offline snapshot to report not running")
	}
	if got := snapshot.Workflow.QueueStats[string(queue.JobQueued)]; got != 2 {
		t.Fatalf("expected 2 queued jobs, got %d (%v)", got, snapshot.Workflow.QueueStats)
	}
	if len(snapshot.Workflow.QueueStats) != 5 {
		t.Fatalf("expected every status counted, got %v", snapshot.Workflow.QueueStats)
	}
	if snapshot.QueueDBPath != cfg.DatabasePath() || snapshot.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected paths: %+v", snapshot)
	}
	if len(snapshot.Dependencies) != 2 {
		t.Fatalf("expected ffmpeg and ffprobe dependencies, got %+v", snapshot.Dependencies)
	}
	for _, dep := range snapshot.Dependencies {
		if !dep.Available {
			t.Fatalf("expected stubbed %s to be available: %s", dep.Name, dep.Detail)
		}
	}
	if len(snapshot.Checks) == 0 {
		t.Fatal("expected preflight checks when requested")
	}
}

func TestBuildStatusSnapshotWithoutDatabase(t *testing.T) {
	cfg := newConfig(t)

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if _, statErr := os.Stat(cfg.DatabasePath()); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("snapshot must not create the database, stat err=%v", statErr)
	}
	if snapshot.Workflow.QueueStats[string(queue.JobQueued)] != 0 {
		t.Fatalf("expected empty queue stats, got %v", snapshot.Workflow.QueueStats)
	}
	if len(snapshot.Checks) != 0 {
		t.Fatalf("expected no checks, got %+v", snapshot.Checks)
	}
}

func TestBuildStatusSnapshotRequiresConfig(t *testing.T) {
	if _, err := daemonctl.BuildStatusSnapshot(context.Background(), nil, false); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuildStatusSnapshotFromRunningDaemon(t *testing.T) {
	cfg := newConfig(t)
	d := serveDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snapshot.Running || snapshot.PID != os.Getpid() {
		t.Fatalf("expected live daemon status, got running=%v pid=%d", snapshot.Running, snapshot.PID)
	}
	if len(snapshot.Workflow.StageHealth) != 7 {
		t.Fatalf("expected stage health from daemon, got %+v", snapshot.Workflow.StageHealth)
	}
}

func TestControllerStartAgainstServingDaemon(t *testing.T) {
	cfg := newConfig(t)
	d := serveDaemon(t, cfg)

	ctl, err := daemonctl.New(cfg, "/nonexistent/clipforge", daemonctl.LaunchOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := ctl.Start(time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.State != daemonctl.StartStateStarted || result.Launched {
		t.Fatalf("expected in-place start, got %+v", result)
	}
	if !d.Running() {
		t.Fatal("expected daemon to be running")
	}

	result, err = ctl.Start(time.Second)
	if err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("expected already running, got %+v", result)
	}
}

func TestControllerStopWithoutDaemon(t *testing.T) {
	ctl, err := daemonctl.New(newConfig(t), "", daemonctl.LaunchOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctl.Stop(100 * time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestControllerStopDrainsWorkflowBeforeKill(t *testing.T) {
	cfg := newConfig(t)
	d := serveDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctl, err := daemonctl.New(cfg, "", daemonctl.LaunchOptions{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The in-process daemon keeps serving its socket and its pid is the test
	// binary, so the forced kill must be refused after the workflow stops.
	_, err = ctl.Stop(500 * time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "refusing to kill current process") {
		t.Fatalf("expected kill refusal, got %v", err)
	}
	if d.Running() {
		t.Fatal("expected daemon workflow to be stopped")
	}
}

func TestControllerRequiresConfig(t *testing.T) {
	if _, err := daemonctl.New(nil, "", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestLaunchRejectsEmptyExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestReadPID(t *testing.T) {
	cfg := newConfig(t)
	pid, err := daemonctl.ReadPID(cfg.PIDPath())
	if err != nil || pid != 0 {
		t.Fatalf("missing pid file: pid=%d err=%v", pid, err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err = daemonctl.ReadPID(cfg.PIDPath()); err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d err=%v", pid, err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, _ = daemonctl.ReadPID(cfg.PIDPath()); pid != 0 {
		t.Fatalf("expected garbage pid to read as 0, got %d", pid)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	cfg := newConfig(t)
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), 0); err == nil {
		t.Fatal("expected refusal to kill the test process")
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("pid file should remain after refusal: %v", err)
	}
}

func TestForceKillWithoutPID(t *testing.T) {
	cfg := newConfig(t)
	if _, err := daemonctl.ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), 0); err == nil {
		t.Fatal("expected error when pid is unknown")
	}
}
