package voteflow

import "time"

// Config holds configuration for the Pipeline.
type Config struct {
	// Concurrency caps how many jobs run at once across all queues.
	Concurrency int

	// Queues is the list of queues this pipeline will poll.
	Queues []string

	// PollInterval sets how frequently idle workers check for ready jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight jobs to
	// drain during graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval sets the cadence of liveness updates for
	// in-flight jobs.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long before a running job without a
	// heartbeat is considered orphaned by a crashed worker.
	StaleJobThreshold time.Duration
}

// VoteQueue is the queue name vote-intent jobs are enqueued to.
const VoteQueue = "votes"

// DefaultConfig returns a Config with sensible defaults. The concurrency of
// five matches the vote worker's processing budget: enough parallelism to
// absorb a burst of submissions without hammering the balance store.
func DefaultConfig() Config {
	return Config{
		Concurrency:       5,
		Queues:            []string{VoteQueue},
		PollInterval:      500 * time.Millisecond,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 30 * time.Second,
	}
}
