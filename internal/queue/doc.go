// Package queue is the progress store: it persists jobs, their items, and
// one record per (subject, stage, attempt) in SQLite.
//
// Stage results are written with an atomic upsert keyed by subject id, stage
// name and attempt number. Once a row reaches a terminal status (succeeded,
// failed, retrying) later writes to the same key are ignored, so concurrent
// branches never overwrite each other's attempts; a new attempt always gets a
// new row. Job-level stages record under the job id as their subject.
//
// The database holds in-flight and recently finished jobs rather than a
// permanent archive. Schema changes bump schemaVersion; users delete the
// database to adopt the new schema.
package queue
