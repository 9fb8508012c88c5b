// Package faillog records jobs that exhausted their retry budget.
//
// When a job's transient-fault attempts run out, the executor calls
// [Service.Push] to preserve the original payload, the final error
// message, and the attempt counts. Entries are write-only from the
// pipeline's perspective; reading them is operator tooling.
//
// A failure log write must never become a point of job-processing
// failure: the executor logs a failed push to its own error stream and
// does not feed it back into retry accounting.
//
// The janitor purges old entries on a schedule via
// [Store.PurgeFailures].
package faillog
