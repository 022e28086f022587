// Package logs reads the daemon and per-job log files for the CLI and the
// IPC LogTail endpoint.
//
// Reads are offset based: a negative offset returns the last N lines and the
// offset to resume from, a non-negative offset returns everything appended
// since. Follow mode polls until new lines arrive or the wait expires. Lines
// can be narrowed with a Filter; JobFilter matches structured records by
// their job_id attribute so one job can be watched in the shared daemon log.
package logs
