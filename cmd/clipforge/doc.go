// Package main hosts the clipforge CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: job submission, status inspection, cancellation, log
// tailing, health checks, and daemon lifecycle control. `clipforge daemon run`
// hosts the daemon itself in the foreground; `clipforge start` launches that
// same binary detached.
//
// Keep this package lean: behaviour belongs in the internal packages, and
// commands here only resolve configuration, dial the socket, and render.
package main
