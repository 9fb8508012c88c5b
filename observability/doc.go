// Package observability provides an OpenTelemetry-based metrics extension
// for VoteFlow. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job enqueue, completion, rejection, failure,
// retry, vote commit, and janitor sweep events.
//
// For per-execution tracing and timing, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
