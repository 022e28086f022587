// Package staging lays out the per-job working directories under the staging
// root and removes the ones left behind by finished or crashed jobs.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipforge/internal/logging"
)

const jobDirPrefix = "job-"

// JobDir returns the working directory of a job.
func JobDir(root, jobID string) string {
	return filepath.Join(root, jobDirPrefix+jobID)
}

// ItemDir returns the working directory of one item of a job.
func ItemDir(root, jobID, itemID string) string {
	return filepath.Join(JobDir(root, jobID), "items", itemID)
}

// OutputDir returns the directory execute renders segments and the
// assembled artifact into.
func OutputDir(root, jobID string) string {
	return filepath.Join(JobDir(root, jobID), "output")
}

// RemoveJob deletes a job's working directory. A missing directory is fine.
func RemoveJob(root, jobID string) error {
	if strings.TrimSpace(root) == "" || strings.TrimSpace(jobID) == "" {
		return nil
	}
	return os.RemoveAll(JobDir(root, jobID))
}

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job directories last modified before olderThan, except
// those belonging to active jobs.
func CleanStale(ctx context.Context, root string, olderThan time.Time, active map[string]struct{}, logger *slog.Logger) CleanResult {
	var result CleanResult
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), jobDirPrefix) {
			continue
		}
		if _, ok := active[strings.TrimPrefix(entry.Name(), jobDirPrefix)]; ok {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale staging directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale staging directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
