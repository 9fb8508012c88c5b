// Package ext lets callers observe the pipeline. An extension registers
// once and receives the lifecycle events it has interfaces for: job
// transitions, committed votes, janitor sweeps, shutdown.
//
// Hooks are split into one interface per event so an extension only
// implements what it needs.
package ext

import (
	"context"
	"time"

	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// Extension is the minimal contract: a stable name for log attribution.
type Extension interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued fires after a job is persisted in pending state.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted fires when a worker leases the job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted fires on successful completion, with the handler's
// wall-clock duration.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRejected fires when business validation turns the job away. A
// rejected job is settled: no retry, no failure log entry.
type JobRejected interface {
	OnJobRejected(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying fires when a transient fault schedules another attempt.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobFailed fires when the job runs out of attempts.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Domain hooks
// ──────────────────────────────────────────────────

// VoteCommitted fires after a vote is durably written, alongside the
// tally notification.
type VoteCommitted interface {
	OnVoteCommitted(ctx context.Context, v *vote.Vote) error
}

// SweepCompleted fires when a janitor task finishes a sweep.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, task string, removed int64) error
}

// Shutdown fires once during graceful pipeline shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
