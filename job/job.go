package job

import (
	"time"

	"github.com/voteflow/voteflow/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be leased by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateRejected means the handler rejected the job as a business-level
	// terminal outcome (unknown poll, insufficient points, duplicate vote).
	// Rejected jobs are acknowledged without retry and without a failure
	// log entry.
	StateRejected State = "rejected"
	// StateRetrying means the job hit a transient fault and is scheduled
	// for another attempt.
	StateRetrying State = "retrying"
	// StateFailed means the job exhausted its attempts and was recorded
	// in the failure log.
	StateFailed State = "failed"
)

// Active reports whether the state still occupies the dedup key: a new job
// with the same key is coalesced while one is pending, running, or retrying.
func (s State) Active() bool {
	return s == StatePending || s == StateRunning || s == StateRetrying
}

// Job represents a unit of work to be processed by a worker.
//
// Key is the deduplication key. For vote jobs it is derived from the poll
// and participant, so a participant has at most one outstanding vote job
// per poll; repeated submissions coalesce at enqueue time.
type Job struct {
	ID           id.JobID      `json:"id"`
	Key          string        `json:"key,omitempty"`
	Name         string        `json:"name"`
	Queue        string        `json:"queue"`
	Payload      []byte        `json:"payload"`
	State        State         `json:"state"`
	Priority     int           `json:"priority"`
	MaxAttempts  int           `json:"max_attempts"`
	Attempts     int           `json:"attempts"`
	LastError    string        `json:"last_error,omitempty"`
	ScopeEventID string        `json:"scope_event_id,omitempty"`
	WorkerID     id.WorkerID   `json:"worker_id,omitempty"`
	RunAt        time.Time     `json:"run_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt  *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
