package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/textutil"
)

// JobLogger manages dedicated log files for job runs. While a job runs its
// stage logs go only to its own file; the daemon log records where it is.
type JobLogger struct {
	baseDir string
	level   string
	format  string
}

// NewJobLogger returns a JobLogger rooted at <log_dir>/jobs, or nil when no
// log directory is configured.
func NewJobLogger(cfg *config.Config) *JobLogger {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return nil
	}
	level := "info"
	format := "json"
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		level = cfg.Logging.Level
	}
	if strings.TrimSpace(cfg.Logging.Format) != "" {
		format = cfg.Logging.Format
	}
	return &JobLogger{
		baseDir: filepath.Join(cfg.Paths.LogDir, "jobs"),
		level:   level,
		format:  format,
	}
}

// Path returns the log file of a job.
func (j *JobLogger) Path(jobID string) string {
	return filepath.Join(j.baseDir, textutil.SanitizeToken(jobID)+".log")
}

// Open creates or appends to the job's log file. The returned closer must be
// called when the run ends.
func (j *JobLogger) Open(jobID string) (*slog.Logger, string, io.Closer, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, "", nil, fmt.Errorf("job id is empty")
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	path := j.Path(jobID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open job log: %w", err)
	}
	logger, err := logging.NewWithWriter(file, logging.Options{Level: j.level, Format: j.format})
	if err != nil {
		_ = file.Close()
		return nil, "", nil, err
	}
	return logger, path, file, nil
}

// Remove deletes the log files of purged jobs.
func (j *JobLogger) Remove(jobIDs []string) {
	for _, id := range jobIDs {
		_ = os.Remove(j.Path(id))
	}
}
