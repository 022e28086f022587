package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CreateJob inserts a job and its items in one transaction. Status and
// timestamps are filled in when unset.
func (s *Store) CreateJob(ctx context.Context, job *Job, items []*Item) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	if len(items) == 0 {
		return errors.New("job requires at least one item")
	}
	now := s.now()
	if job.Status == "" {
		job.Status = JobQueued
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("encode job options: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, status, target_duration, quality_threshold, options_json, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.Status, job.TargetDuration, job.QualityThreshold, string(options),
			formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		for i, item := range items {
			item.JobID = job.ID
			item.Position = i
			if item.Status == "" {
				item.Status = ItemPending
			}
			item.CreatedAt = now
			item.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items (id, job_id, position, source_kind, source_location, status, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, item.JobID, item.Position, item.SourceKind, item.SourceLocation, item.Status,
				formatTime(now), formatTime(now),
			); err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetJob returns the job with id, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
// A limit of zero returns every match.
func (s *Store) ListJobs(ctx context.Context, limit int, statuses ...JobStatus) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJob persists the mutable job fields. CancelRequested is owned by
// RequestCancel and is never cleared here.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = s.now()
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, current_stage = ?, reason = ?, error_message = ?, decision_json = ?,
		 quality_json = ?, artifact_location = ?, updated_at = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		job.Status,
		nullableString(job.CurrentStage),
		nullableString(job.Reason),
		nullableString(job.ErrorMessage),
		nullableString(job.DecisionJSON),
		nullableString(job.QualityJSON),
		nullableString(job.ArtifactLocation),
		formatTime(job.UpdatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNextQueued moves the oldest queued job to running and returns it, or
// nil when nothing is queued.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		row := tx.QueryRowContext(ctx,
			"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1", JobQueued)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now()
		res, err := tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, reason = NULL, started_at = ?, updated_at = ? WHERE id = ? AND status = ?",
			JobRunning, formatTime(now), formatTime(now), job.ID, JobQueued)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		job.Status = JobRunning
		job.Reason = ""
		job.StartedAt = &now
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim queued job: %w", err)
	}
	return claimed, nil
}

// RequestCancel cancels a queued job immediately and flags a running job
// for cooperative cancellation. Terminal jobs are left untouched.
func (s *Store) RequestCancel(ctx context.Context, id string) (CancelOutcome, error) {
	var outcome CancelOutcome
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		outcome = CancelOutcome{}
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		outcome.Found = true
		outcome.Status = JobStatus(status)
		now := formatTime(s.now())
		switch outcome.Status {
		case JobQueued:
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, reason = ?, cancel_requested = 1, updated_at = ?, completed_at = ?
				 WHERE id = ?`,
				JobCancelled, "cancelled", now, now, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE items SET status = ?, updated_at = ? WHERE job_id = ? AND status = ?",
				ItemFailed, now, id, ItemPending); err != nil {
				return err
			}
			outcome.Status = JobCancelled
			outcome.Immediate = true
		case JobRunning:
			if _, err := tx.ExecContext(ctx,
				"UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?", now, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CancelOutcome{}, fmt.Errorf("cancel job %s: %w", id, err)
	}
	return outcome, nil
}

// IsCancelRequested reports whether a cancel was recorded for the job.
func (s *Store) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT cancel_requested FROM jobs WHERE id = ?", id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}
