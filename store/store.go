// Package store defines the composite persistence contract for VoteFlow.
// A backend implements every subsystem store interface (jobs, votes,
// balances, polls, failure log, idempotency flags) plus lifecycle
// operations. Backends live in subpackages: memory (tests and
// single-process use), bun (Postgres), redis (flags and queues).
package store

import (
	"context"

	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// Store is the full persistence contract. The engine type-asserts the
// pipeline's configured store against the subsystem interfaces it needs,
// so partial backends can be composed; a Store implements all of them.
type Store interface {
	job.Store
	faillog.Store
	vote.PollStore
	vote.BalanceStore
	vote.Ledger
	vote.Committer
	vote.FlagStore

	// Migrate creates or updates the backing schema.
	Migrate(ctx context.Context) error

	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}
