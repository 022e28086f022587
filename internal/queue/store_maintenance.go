package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// InterruptedMessage is recorded on attempts that were running when the
// daemon stopped.
const InterruptedMessage = "daemon stopped during attempt"

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the progress database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path, SchemaVersion: schemaVersion}
	if s.path == "" {
		return health, errors.New("progress database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat progress database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("progress database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping progress database: %w", err)
	}
	health.DatabaseReadable = true
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM jobs").Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count jobs: %w", err)
	}
	return health, nil
}

// RequeueInterrupted recovers jobs a previous daemon left running. Jobs
// with a pending cancel become cancelled; the rest go back to queued.
// Open attempt records are closed as failed. It returns the number of jobs
// re-queued.
func (s *Store) RequeueInterrupted(ctx context.Context) (int, error) {
	var requeued int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(s.now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE stage_results SET status = ?, error_kind = ?, error_message = ?, updated_at = ?
			 WHERE status IN (?, ?) AND job_id IN (SELECT id FROM jobs WHERE status = ?)`,
			StageFailed, "interrupted", InterruptedMessage, now,
			StageRunning, StagePending, JobRunning); err != nil {
			return fmt.Errorf("close open attempts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, reason = ?, updated_at = ?, completed_at = ?
			 WHERE status = ? AND cancel_requested = 1`,
			JobCancelled, "cancelled", now, now, JobRunning); err != nil {
			return fmt.Errorf("finish cancelled jobs: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET status = ?, current_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
			 WHERE job_id IN (SELECT id FROM jobs WHERE status = ?)`,
			ItemPending, now, JobRunning); err != nil {
			return fmt.Errorf("reset items: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, reason = ?, current_stage = NULL, updated_at = ? WHERE status = ?`,
			JobQueued, "interrupted", now, JobRunning)
		if err != nil {
			return fmt.Errorf("requeue jobs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		requeued = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return requeued, nil
}

// PurgeExpired deletes terminal jobs last updated before cutoff, together
// with their items and stage results. It returns the purged job ids.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var purged []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		purged = nil
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM jobs WHERE status IN (?, ?, ?) AND updated_at < ?`,
			JobCompleted, JobFailed, JobCancelled, formatTime(cutoff))
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			purged = append(purged, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		for _, id := range purged {
			for _, stmt := range []string{
				"DELETE FROM stage_results WHERE job_id = ?",
				"DELETE FROM items WHERE job_id = ?",
				"DELETE FROM jobs WHERE id = ?",
			} {
				if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
					return fmt.Errorf("purge job %s: %w", id, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("purge expired jobs: %w", err)
	}
	return purged, nil
}
