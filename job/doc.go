// Package job holds the job entity and its state machine, the typed
// definition and registry used to attach handlers, and the persistence
// contract stores implement.
//
// # Job Entity
//
// A [Job] represents a unit of work. It carries a typed payload (JSON),
// a deduplication key, and progresses through a state machine:
//
//	pending → running → completed
//	pending → running → rejected
//	pending → running → retrying → running …
//	pending → running → failed (after MaxAttempts)
//
// Completed, rejected, and failed are terminal. Rejected means the handler
// classified the job as a business-level rejection (the request can never
// succeed); failed means the transient-fault retry budget ran out and the
// job was recorded in the failure log.
//
// Fields of note:
//   - Key: dedup key; while a job with a key is active, enqueuing another
//     job with the same key coalesces into the existing one
//   - Queue: which queue the job belongs to (default: "votes")
//   - MaxAttempts / Attempts: controls the retry budget
//   - RunAt: the job is invisible to dequeue before this time
//   - Timeout: cap on one execution; zero runs unbounded
//
// # Defining a Job
//
// A [Definition] binds a name to a handler over a concrete payload type.
// Payloads travel as JSON and are decoded before the handler sees them:
//
//	var ProcessVote = job.NewDefinition("vote.process",
//	    func(ctx context.Context, intent vote.Intent) error {
//	        return processor.Process(ctx, intent)
//	    },
//	)
//
// # Registry
//
// A [Registry] resolves job names to [HandlerFunc] values at execution
// time. Install definitions during startup:
//
//	job.RegisterDefinition(registry, ProcessVote)
//
// Most callers go through engine.Register and engine.Enqueue instead of
// touching the registry directly.
package job
