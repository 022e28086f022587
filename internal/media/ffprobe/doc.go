// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs the binary and decodes streams and format metadata; helpers
// on Result extract the duration, dimensions and frame rate the prepare
// stage records per item.
package ffprobe
