package vote

import (
	"context"
	"time"

	"github.com/voteflow/voteflow/id"
)

// PollStore is the read-only view of the poll catalog this pipeline needs.
// The catalog itself is owned by the platform's CRUD layer.
type PollStore interface {
	// GetPoll returns the poll or voteflow.ErrPollNotFound.
	GetPoll(ctx context.Context, pollID id.PollID) (*Poll, error)
}

// BalanceStore holds per-participant remaining points, keyed by
// (event, participant). The decrement is conditional: implementations
// must refuse to take the balance below zero.
type BalanceStore interface {
	// GetBalance returns the balance or voteflow.ErrBalanceNotFound.
	GetBalance(ctx context.Context, eventID id.EventID, p Participant) (*Balance, error)

	// SetBalance creates or replaces a balance row. Used by event setup
	// and by tests; the pipeline itself never calls it.
	SetBalance(ctx context.Context, b *Balance) error
}

// Ledger is the append-only record of committed votes.
type Ledger interface {
	// FindVote returns this participant's vote on the poll, or
	// voteflow.ErrVoteNotFound. Used by the public-poll one-shot guard.
	FindVote(ctx context.Context, pollID id.PollID, p Participant) (*Vote, error)

	// ListVotes returns all committed votes for a poll, oldest first.
	ListVotes(ctx context.Context, pollID id.PollID) ([]*Vote, error)
}

// Decrement describes the conditional balance mutation that accompanies a
// vote commit. Scoped to the poll's event so a participant enrolled in
// several events cannot leak points across them.
type Decrement struct {
	EventID     id.EventID
	Participant Participant
	Points      int
}

// Committer executes the commit step: insert the vote row and, for
// non-public polls, apply the conditional decrement — both inside one
// transaction. A nil dec means no balance is touched (public polls).
//
// Implementations return voteflow.ErrInsufficientPoints when the
// decrement condition fails; the vote insert must roll back with it.
type Committer interface {
	CommitVote(ctx context.Context, v *Vote, dec *Decrement) error
}

// FlagStore holds the short-lived "participant has an accepted vote on
// this poll" idempotency flags. Flags are a post-commit optimization:
// they let duplicate submissions short-circuit cheaply, and losing one
// only costs an extra ledger query.
type FlagStore interface {
	// MarkVoted sets the flag with the given horizon.
	MarkVoted(ctx context.Context, pollID id.PollID, p Participant, ttl time.Duration) error

	// HasVoted reports whether a live flag exists.
	HasVoted(ctx context.Context, pollID id.PollID, p Participant) (bool, error)
}

// FlagTTL is the idempotency flag horizon. Long enough to absorb UI
// double-submits and queue redelivery, short enough not to outlive a
// typical voting session.
const FlagTTL = time.Hour

// Notifier announces a poll's changed tally after a successful commit.
// Fire-and-forget: a missed notification is recovered by the viewer's
// own periodic result refresh.
type Notifier interface {
	EmitVoteUpdate(pollID id.PollID, optionID id.OptionID)
}
