// Package ffmpeg runs the ffmpeg operations the pipeline needs: proxy
// compression for analysis, segment extraction by offset, and ordered
// concatenation into the final artifact.
//
// Arguments are built per operation and executed by Runner, which captures
// stderr and classifies failures: unreadable input is item-fatal, a missing
// binary is a configuration error, a deadline is a timeout and everything
// else is an external tool error that stage policies may retry.
package ffmpeg
