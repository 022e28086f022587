package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipforge/internal/api"
	"clipforge/internal/config"
	"clipforge/internal/ipc"
	"clipforge/internal/preflight"
	"clipforge/internal/queue"
)

// ErrDaemonNotRunning indicates nothing answers on the daemon socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// LaunchOptions are forwarded to `clipforge daemon run` when the controller
// spawns a daemon process.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Controller drives one daemon instance identified by its configuration:
// the socket, pid file and lock file all derive from cfg.
type Controller struct {
	cfg        *config.Config
	executable string
	opts       LaunchOptions
}

// New returns a controller. executable is only needed when Start may have
// to spawn a process.
func New(cfg *config.Config, executable string, opts LaunchOptions) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	return &Controller{cfg: cfg, executable: strings.TrimSpace(executable), opts: opts}, nil
}

// Start makes sure a daemon process is serving the socket and that its
// workflow is running. A missing daemon is launched detached and awaited
// for up to wait.
func (c *Controller) Start(wait time.Duration) (StartResult, error) {
	launched := false
	client, err := ipc.Dial(c.cfg.SocketPath())
	if err != nil {
		if err := Launch(c.executable, c.opts); err != nil {
			return StartResult{}, err
		}
		launched = true
		if client, err = dialWithin(c.cfg.SocketPath(), wait); err != nil {
			return StartResult{}, fmt.Errorf("daemon failed to start: %w", err)
		}
	}
	defer client.Close()

	if status, err := client.Status(false); err == nil && status != nil && status.Running {
		if launched {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	result := StartResult{State: StartStateRequested, Launched: launched, Message: "Start request sent"}
	if resp == nil {
		return result, nil
	}
	message := strings.TrimSpace(resp.Message)
	switch {
	case resp.Started:
		result.State = StartStateStarted
	case strings.EqualFold(message, "daemon already running") && !launched:
		result.State = StartStateAlreadyRunning
	case strings.EqualFold(message, "daemon already running"):
		result.State = StartStateStarted
	}
	if message != "" {
		result.Message = message
	}
	return result, nil
}

// Stop asks the daemon to stop its workflow, waits up to grace for it to
// drain, then kills the process named by the pid file if the socket still
// answers.
func (c *Controller) Stop(grace time.Duration) (StopResult, error) {
	socketPath := c.cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}

	var result StopResult
	lockPath := c.cfg.LockPath()
	if status, err := client.Status(false); err == nil && status != nil {
		result.PID = status.PID
		if status.LockFilePath != "" {
			lockPath = status.LockFilePath
		}
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result.StopAcknowledged = resp != nil && resp.Stopped

	// The workflow drains first; a process still serving the socket is then
	// terminated.
	c.awaitShutdown(grace)
	if !c.answering() {
		return result, nil
	}
	pid, err := ForceKillProcess(c.cfg.PIDPath(), lockPath, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// Restart stops a running daemon, then starts a fresh one.
func (c *Controller) Restart(grace, wait time.Duration) (RestartResult, error) {
	stopped, err := c.Stop(grace)
	wasRunning := err == nil
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return RestartResult{}, err
	}
	started, err := c.Start(wait)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{WasRunning: wasRunning, Stop: stopped, Start: started}, nil
}

// awaitShutdown polls until the socket stops answering, the daemon reports
// its workflow stopped, or timeout passes.
func (c *Controller) awaitShutdown(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(c.cfg.SocketPath())
		if err != nil {
			if isDaemonUnavailable(err) {
				return
			}
		} else {
			status, statusErr := client.Status(false)
			_ = client.Close()
			if statusErr == nil && status != nil && !status.Running {
				return
			}
		}
		time.Sleep(pollInterval)
	}
}

func (c *Controller) answering() bool {
	client, err := ipc.Dial(c.cfg.SocketPath())
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// Launch spawns `executable daemon run` in its own session and detaches.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon", "run"}
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

func dialWithin(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(pollInterval)
	}
}

// ReadPID returns the pid recorded at pidPath. A missing or unparsable file
// reads as 0.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// ForceKillProcess kills the daemon named by the pid file, or fallbackPID when
// the file is empty, and removes the pid and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// BuildStatusSnapshot returns the daemon's own status when it answers.
// Otherwise queue counts are read from the job store (if one exists) and
// dependencies are probed locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config, withChecks bool) (api.DaemonStatus, error) {
	if cfg == nil {
		return api.DaemonStatus{}, errors.New("configuration not available")
	}

	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		resp, statusErr := client.Status(withChecks)
		_ = client.Close()
		if statusErr == nil && resp != nil {
			return *resp, nil
		}
	}

	snapshot := api.DaemonStatus{
		QueueDBPath:  cfg.DatabasePath(),
		LockFilePath: cfg.LockPath(),
		StorageRoot:  cfg.Storage.RootDir,
		Workflow:     api.WorkflowStatus{QueueStats: api.MergeQueueStats(nil)},
	}
	if pid, err := ReadPID(cfg.PIDPath()); err == nil {
		snapshot.PID = pid
	}
	if stats, ok := offlineQueueStats(ctx, cfg); ok {
		snapshot.Workflow.QueueStats = api.MergeQueueStats(stats)
	}

	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		snapshot.Dependencies = append(snapshot.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	if withChecks {
		for _, check := range preflight.RunAll(ctx, cfg) {
			snapshot.Checks = append(snapshot.Checks, api.CheckResult{
				Name:   check.Name,
				Passed: check.Passed,
				Detail: check.Detail,
			})
		}
	}
	return snapshot, nil
}

// offlineQueueStats counts jobs by status without creating the database.
func offlineQueueStats(ctx context.Context, cfg *config.Config) (map[queue.JobStatus]int, bool) {
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		return nil, false
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, false
	}
	defer store.Close()
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return nil, false
	}
	return stats, true
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
