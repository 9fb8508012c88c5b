package faillog

import (
	"time"

	"github.com/voteflow/voteflow/id"
)

// Entry is the durable record of a job that exhausted its retry budget.
// It preserves the payload, the final error, and the attempt counts for
// offline inspection; the read path is operator tooling, not this
// pipeline.
type Entry struct {
	ID          id.FailureID `json:"id"`
	JobID       id.JobID     `json:"job_id"`
	JobName     string       `json:"job_name"`
	Queue       string       `json:"queue"`
	Payload     []byte       `json:"payload"`
	Error       string       `json:"error"`
	Attempts    int          `json:"attempts"`
	MaxAttempts int          `json:"max_attempts"`
	FailedAt    time.Time    `json:"failed_at"`
	CreatedAt   time.Time    `json:"created_at"`
}
