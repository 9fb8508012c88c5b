package job

import (
	"context"
	"time"

	"github.com/voteflow/voteflow/id"
)

// ListOpts narrows and pages job list queries.
type ListOpts struct {
	Limit  int // zero lists everything
	Offset int
	Queue  string // empty matches all queues
}

// CountOpts narrows job count queries.
type CountOpts struct {
	Queue string // empty matches all queues
	State State  // empty matches all states
}

// Store is the persistence contract for jobs. Implementations must make
// DequeueJobs safe under concurrent workers: a job is handed to exactly
// one caller.
type Store interface {
	// EnqueueJob persists a new pending job. When j.Key is set and an
	// active job (pending, running, or retrying) already holds that key,
	// nothing is written and voteflow.ErrDuplicateJob comes back: the
	// submission coalesces into the in-flight one.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs claims up to limit due jobs from the queues, marks
	// them running, and returns them, highest priority first and then
	// earliest RunAt.
	DequeueJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)

	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetJobByKey finds the most recent job carrying the dedup key.
	GetJobByKey(ctx context.Context, key string) (*Job, error)

	UpdateJob(ctx context.Context, j *Job) error

	DeleteJob(ctx context.Context, jobID id.JobID) error

	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// HeartbeatJob refreshes the liveness timestamp on a running job so
	// the reaper leaves it alone.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns running jobs whose heartbeat is older than
	// threshold, meaning their worker likely died.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// PurgeJobs drops settled jobs (completed, rejected, failed) whose
	// CompletedAt precedes before, reporting how many went.
	PurgeJobs(ctx context.Context, before time.Time) (int64, error)

	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
