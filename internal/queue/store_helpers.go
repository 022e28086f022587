package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const jobColumns = "id, status, target_duration, quality_threshold, options_json, current_stage, reason, error_message, decision_json, quality_json, artifact_location, cancel_requested, created_at, updated_at, started_at, completed_at"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		status       string
		options      sql.NullString
		currentStage sql.NullString
		reason       sql.NullString
		errorMessage sql.NullString
		decision     sql.NullString
		quality      sql.NullString
		artifact     sql.NullString
		cancel       int64
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&status,
		&job.TargetDuration,
		&job.QualityThreshold,
		&options,
		&currentStage,
		&reason,
		&errorMessage,
		&decision,
		&quality,
		&artifact,
		&cancel,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	if options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &job.Options); err != nil {
			return nil, err
		}
	}
	job.CurrentStage = currentStage.String
	job.Reason = reason.String
	job.ErrorMessage = errorMessage.String
	job.DecisionJSON = decision.String
	job.QualityJSON = quality.String
	job.ArtifactLocation = artifact.String
	job.CancelRequested = cancel != 0
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	return &job, nil
}

const itemColumns = "id, job_id, position, source_kind, source_location, status, current_stage, duration, error_kind, error_message, created_at, updated_at"

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		item         Item
		status       string
		currentStage sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.JobID,
		&item.Position,
		&item.SourceKind,
		&item.SourceLocation,
		&status,
		&currentStage,
		&item.Duration,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	item.Status = ItemStatus(status)
	item.CurrentStage = currentStage.String
	item.ErrorKind = errorKind.String
	item.ErrorMessage = errorMessage.String
	item.CreatedAt, _ = parseTimeString(createdRaw)
	item.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &item, nil
}

const resultColumns = "subject_id, job_id, stage, attempt, status, payload_json, error_kind, error_message, started_at, updated_at"

func scanResult(scanner rowScanner) (StageResult, error) {
	var (
		res          StageResult
		status       string
		payload      sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		startedRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&res.SubjectID,
		&res.JobID,
		&res.Stage,
		&res.Attempt,
		&status,
		&payload,
		&errorKind,
		&errorMessage,
		&startedRaw,
		&updatedRaw,
	); err != nil {
		return StageResult{}, err
	}
	res.Status = StageStatus(status)
	if payload.String != "" {
		res.Payload = json.RawMessage(payload.String)
	}
	res.ErrorKind = errorKind.String
	res.ErrorMessage = errorMessage.String
	res.StartedAt, _ = parseTimeString(startedRaw)
	res.UpdatedAt, _ = parseTimeString(updatedRaw)
	return res, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
