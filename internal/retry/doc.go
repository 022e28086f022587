// Package retry wraps a unit of work with bounded attempts, a fixed or
// exponential delay, and a classifier that separates retryable errors from
// fatal ones.
//
// Fatal errors (services.IsFatal, or a custom Classify) end the loop on the
// attempt that produced them. Every other error is retried until MaxAttempts
// is reached. Delays honour context cancellation.
package retry
