// Package ingest implements the first two per-item stages.
//
// Prepare resolves the item source into a local file, inspects it with
// ffprobe and records duration and frame size. Transform compresses that
// file into an analysis proxy and uploads it as a temporary object owned by
// the item until finalize releases it.
package ingest
