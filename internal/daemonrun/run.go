package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/ipc"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/preflight"
	"clipforge/internal/queue"
	"clipforge/internal/workflow"
)

// keepRunLogs is how many per-run daemon logs survive startup pruning.
const keepRunLogs = 10

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the clipforge daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("clipforge-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	currentLog := filepath.Join(cfg.Paths.LogDir, daemon.LogFileName)
	if err := ensureCurrentLogPointer(currentLog, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", daemon.LogFileName, err)
	}
	pruneRunLogs(logger, cfg.Paths.LogDir, logPath)
	logPreflight(signalCtx, logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job store", "store_open_failed", logging.Error(err))
		return err
	}

	mgr, err := workflow.NewManager(cfg, store, logger, workflow.WithNotifier(notifications.NewService(cfg)))
	if err != nil {
		store.Close()
		return fmt.Errorf("create workflow manager: %w", err)
	}
	set, err := BuildStages(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	if err := mgr.ConfigureStages(set); err != nil {
		store.Close()
		return err
	}

	d, err := daemon.New(cfg, store, logger, mgr, daemon.WithLogPath(currentLog))
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("clipforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logPreflight records every preflight result. Failures are warnings; the
// daemon still starts so operators can inspect it over IPC.
func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_check"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_check_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run clipforge health for the full report"),
			logging.String(logging.FieldImpact, "jobs depending on "+result.Name+" will fail"),
		)
	}
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(filepath.Base(target), current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// pruneRunLogs removes all but the newest keepRunLogs run logs. Names embed a
// sortable UTC timestamp.
func pruneRunLogs(logger *slog.Logger, dir, current string) {
	matches, err := filepath.Glob(filepath.Join(dir, "clipforge-*.log"))
	if err != nil || len(matches) <= keepRunLogs {
		return
	}
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-keepRunLogs] {
		if path == current {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Debug("failed to prune run log", logging.String("path", path), logging.Error(err))
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
