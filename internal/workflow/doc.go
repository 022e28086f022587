// Package workflow runs submitted jobs through the clip pipeline.
//
// The Manager claims queued jobs from the progress store and fans each job's
// items out into independent branches (prepare, transform, analyze) executed
// on a bounded worker pool shared by every running job. A countdown barrier
// collects the settled branches and releases exactly once, handing the full
// set of results to the job-level stages: aggregate, plan-generate,
// score-gate, execute and finalize.
//
// Every stage invocation goes through stageexec, so attempts are recorded in
// the store and retried according to the configured policy. Item failures stay
// on the item; the job only fails outright when no item survives, when the
// decision text cannot be recovered, when the quality gate rejects the plan,
// or when execute or finalize exhaust their retries.
//
// Cancellation is cooperative. Cancel flags the job in memory and in the
// store; branches and job stages check the flag between stage boundaries and
// before every retry attempt, letting in-flight invocations finish.
// Stopping the Manager leaves running jobs untouched in the store so the next
// Start re-queues them.
package workflow
