package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UpsertStageResult writes one attempt record atomically. It reports false
// when the existing row for the same (subject, stage, attempt) is already
// terminal, in which case nothing changes.
func (s *Store) UpsertStageResult(ctx context.Context, res StageResult) (bool, error) {
	if strings.TrimSpace(res.SubjectID) == "" || strings.TrimSpace(res.Stage) == "" {
		return false, errors.New("stage result requires subject and stage")
	}
	if res.Attempt < 1 {
		return false, fmt.Errorf("stage result attempt must be positive, got %d", res.Attempt)
	}
	now := s.now()
	if res.StartedAt.IsZero() {
		res.StartedAt = now
	}
	var payload any
	if len(res.Payload) > 0 {
		payload = string(res.Payload)
	}
	result, err := s.execWithRetry(ctx,
		`INSERT INTO stage_results (subject_id, job_id, stage, attempt, status, payload_json, error_kind, error_message, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id, stage, attempt) DO UPDATE SET
		   status = excluded.status,
		   payload_json = excluded.payload_json,
		   error_kind = excluded.error_kind,
		   error_message = excluded.error_message,
		   updated_at = excluded.updated_at
		 WHERE stage_results.status NOT IN (?, ?, ?)`,
		res.SubjectID, res.JobID, res.Stage, res.Attempt, res.Status, payload,
		nullableString(res.ErrorKind), nullableString(res.ErrorMessage),
		formatTime(res.StartedAt), formatTime(now),
		StageSucceeded, StageFailed, StageRetrying,
	)
	if err != nil {
		return false, fmt.Errorf("upsert stage result %s/%s#%d: %w", res.SubjectID, res.Stage, res.Attempt, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NextAttempt returns one past the highest recorded attempt for the subject
// and stage, so numbering continues across restarts.
func (s *Store) NextAttempt(ctx context.Context, subjectID, stage string) (int, error) {
	var highest int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COALESCE(MAX(attempt), 0) FROM stage_results WHERE subject_id = ? AND stage = ?",
		subjectID, stage).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("next attempt: %w", err)
	}
	return highest + 1, nil
}

// StageResults returns every attempt recorded for a job, ordered by start.
func (s *Store) StageResults(ctx context.Context, jobID string) ([]StageResult, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+resultColumns+" FROM stage_results WHERE job_id = ? ORDER BY started_at, subject_id, stage, attempt",
		jobID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// LatestResults keeps the highest attempt per (subject, stage).
func LatestResults(results []StageResult) map[string]map[string]StageResult {
	latest := make(map[string]map[string]StageResult)
	for _, res := range results {
		byStage, ok := latest[res.SubjectID]
		if !ok {
			byStage = make(map[string]StageResult)
			latest[res.SubjectID] = byStage
		}
		if current, ok := byStage[res.Stage]; !ok || res.Attempt > current.Attempt {
			byStage[res.Stage] = res
		}
	}
	return latest
}
