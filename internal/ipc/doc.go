// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// The server registers a single "Clipforge" service whose methods wrap the
// daemon and its api.JobService, so CLI responses carry the same DTOs as the
// HTTP API. The client dials with a short timeout so commands fail fast when
// the daemon is offline.
//
// Add new endpoints as a Request/Response pair in types.go, a service method
// in server.go, and a client wrapper in client.go.
package ipc
