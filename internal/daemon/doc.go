// Package daemon coordinates the long-running clipforge process.
//
// It wires configuration, the job store, and the workflow manager into a
// single lifecycle guarded by a flock so only one instance drives a state
// directory. The daemon also owns the optional HTTP API (submit, describe,
// list, cancel, status, health), test notifications, and the dependency and
// preflight snapshots reported to operators.
//
// Keep orchestration here: pipeline stages live in their own packages while
// the daemon focuses on startup, shutdown, and exposing the job service.
package daemon
